package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"scribe/internal/deps"
	"scribe/internal/history"
	"scribe/internal/jobs"
	"scribe/internal/language"
	"scribe/internal/logging"
	"scribe/internal/preflight"
	"scribe/internal/services"
	"scribe/internal/services/whisperx"
)

const defaultLogLimit = 200

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports capabilities, dependency availability and workflow
// counters. The status is "degraded" when a required binary is missing or a
// preflight check fails.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg
	languages := make([]LanguageInfo, 0, len(cfg.Transcription.Languages))
	for _, code := range cfg.Transcription.Languages {
		languages = append(languages, LanguageInfo{Code: code, Name: language.DisplayName(code)})
	}
	backend := "whisperx"
	if strings.TrimSpace(cfg.Diarization.PyannoteURL) != "" {
		backend = "pyannote"
	}

	dependencies := preflight.CheckSystemDeps(cfg)
	checks := preflight.RunAll(r.Context(), cfg)
	state := "healthy"
	if len(deps.MissingRequired(dependencies)) > 0 || len(preflight.Failed(checks)) > 0 {
		state = "degraded"
	}

	device, computeType := whisperx.NewService(whisperx.ConfigFrom(cfg)).Device()
	resp := StatusResponse{
		Status:          state,
		Version:         s.version,
		Timestamp:       s.now(),
		PID:             os.Getpid(),
		CUDAEnabled:     device == whisperx.CUDADevice,
		Device:          device,
		ComputeType:     computeType,
		Models:          append([]string(nil), cfg.Transcription.Models...),
		DefaultModel:    cfg.Transcription.DefaultModel,
		Languages:       languages,
		DefaultLanguage: cfg.Transcription.DefaultLanguage,
		Extensions:      append([]string(nil), cfg.Media.Extensions...),
		MaxFileSizeMB:   cfg.Media.MaxFileSizeMB,
		Diarization: DiarizationStatus{
			Default: cfg.Transcription.DiarizationDefault,
			Backend: backend,
		},
		Workflow:     s.manager.Status(),
		Dependencies: dependencies,
		Checks:       checks,
		LockPath:     cfg.LockPath(),
	}
	if s.history != nil {
		resp.HistoryPath = s.history.Path()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, HistoryResponse{Records: []history.Record{}, Stats: history.Stats{ByStatus: map[string]int{}}})
		return
	}
	query := r.URL.Query()
	filter := history.Filter{}
	for _, raw := range query["status"] {
		for _, value := range strings.Split(raw, ",") {
			if strings.TrimSpace(value) == "" {
				continue
			}
			status, err := jobs.ParseStatus(value)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	var err error
	if filter.Limit, err = intParam(query.Get("limit"), defaultListLimit); err != nil {
		s.writeError(w, r, err)
		return
	}
	if filter.Offset, err = intParam(query.Get("offset"), 0); err != nil {
		s.writeError(w, r, err)
		return
	}
	if raw := strings.TrimSpace(query.Get("since")); raw != "" {
		since, parseErr := parseSince(raw, s.now())
		if parseErr != nil {
			s.writeError(w, r, parseErr)
			return
		}
		filter.Since = since
	}

	records, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrIO, "history", "list", "could not read history", err))
		return
	}
	stats, err := s.history.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrIO, "history", "stats", "could not read history", err))
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Records: records, Stats: stats})
}

// parseSince accepts an RFC 3339 timestamp or a Go duration counted back
// from now.
func parseSince(raw string, now time.Time) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("%w: since must be RFC 3339 or a positive duration, got %q", services.ErrValidation, raw)
	}
	return now.Add(-d), nil
}

// handleLogs pages through the in-memory log buffer. follow=1 long-polls
// until new events arrive; tail=1 returns the newest events.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, LogStreamResponse{Events: []logging.LogEvent{}})
		return
	}
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	follow := boolParam(query.Get("follow"))
	tail := boolParam(query.Get("tail"))
	jobID := strings.TrimSpace(query.Get("job"))
	component := strings.TrimSpace(query.Get("component"))

	var (
		events []logging.LogEvent
		next   uint64
	)
	if tail && since == 0 && !follow {
		events, next = s.logs.Tail(limit)
	} else {
		var err error
		events, next, err = s.logs.Fetch(r.Context(), since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, r, err)
			return
		}
	}

	filtered := logging.EventFilter{JobID: jobID, Component: component}.Filter(events)
	writeJSON(w, http.StatusOK, LogStreamResponse{Events: filtered, Next: next})
}

func boolParam(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}
