package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"scribe/internal/fileutil"
	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/output"
	"scribe/internal/services"
	"scribe/internal/workflow"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	// multipartOverhead covers form field and boundary bytes around the file.
	multipartOverhead = 1 << 20
)

// handleSubmit streams a multipart upload into the upload directory and
// queues it. Form fields: file (required), model, language, diarization.
// Query parameters are accepted for the options as well.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxFileSizeBytes()
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: expected multipart/form-data upload: %v", services.ErrValidation, err))
		return
	}

	fields := map[string]string{}
	for _, key := range []string{"model", "language", "diarization"} {
		if v := strings.TrimSpace(r.URL.Query().Get(key)); v != "" {
			fields[key] = v
		}
	}
	var (
		uploadPath string
		filename   string
		size       int64
		digest     string
	)
	cleanup := func() {
		if uploadPath != "" {
			_ = fileutil.RemoveIfExists(uploadPath)
		}
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			cleanup()
			s.writeError(w, r, fmt.Errorf("%w: read upload: %w", services.ErrValidation, err))
			return
		}
		name := part.FormName()
		if name != "file" {
			value, readErr := io.ReadAll(io.LimitReader(part, 4096))
			_ = part.Close()
			if readErr != nil {
				cleanup()
				s.writeError(w, r, fmt.Errorf("%w: read field %s: %w", services.ErrValidation, name, readErr))
				return
			}
			if v := strings.TrimSpace(string(value)); v != "" && name != "" {
				fields[name] = v
			}
			continue
		}
		if uploadPath != "" {
			_ = part.Close()
			cleanup()
			s.writeError(w, r, fmt.Errorf("%w: only one file may be uploaded per job", services.ErrValidation))
			return
		}

		filename = filepath.Base(strings.TrimSpace(part.FileName()))
		ext := strings.ToLower(filepath.Ext(filename))
		if filename == "" || filename == "." || !s.cfg.AllowedExtension(ext) {
			_ = part.Close()
			s.writeError(w, r, fmt.Errorf("%w: file extension %q is not accepted", services.ErrUnsupportedFormat, ext))
			return
		}
		uploadPath = filepath.Join(s.cfg.Paths.UploadDir, uuid.NewString()+ext)
		size, digest, err = fileutil.SaveStream(part, uploadPath, limit)
		_ = part.Close()
		if err != nil {
			uploadPath = ""
			if !errors.Is(err, fileutil.ErrTooLarge) {
				var maxErr *http.MaxBytesError
				if !errors.As(err, &maxErr) {
					err = services.Wrap(services.ErrIO, "upload", "save", "could not store upload", err)
				}
			}
			s.writeError(w, r, err)
			return
		}
	}
	if uploadPath == "" {
		s.writeError(w, r, fmt.Errorf("%w: multipart field \"file\" is required", services.ErrValidation))
		return
	}

	req := workflow.Request{
		SourcePath:   uploadPath,
		Filename:     filename,
		Model:        fields["model"],
		Language:     fields["language"],
		SourceSize:   size,
		SourceDigest: digest,
	}
	if raw, ok := fields["diarization"]; ok {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			cleanup()
			s.writeError(w, r, fmt.Errorf("%w: diarization must be a boolean, got %q", services.ErrValidation, raw))
			return
		}
		req.Diarization = &enabled
	}

	job, err := s.manager.Submit(r.Context(), req)
	if err != nil {
		cleanup()
		s.writeError(w, r, err)
		return
	}
	logging.WithContext(r.Context(), s.logger).Info("upload accepted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("filename", filename),
		logging.Int64("size_bytes", size),
		logging.String(logging.FieldEventType, "upload_accepted"),
	)
	w.Header().Set("Location", "/api/jobs/"+job.ID)
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list := s.manager.List(filter)
	for i := range list {
		list[i].Result = nil
	}
	writeJSON(w, http.StatusOK, JobListResponse{Jobs: list, Counts: s.manager.Store().Counts()})
}

func parseListFilter(r *http.Request) (jobs.Filter, error) {
	query := r.URL.Query()
	filter := jobs.Filter{Limit: defaultListLimit}
	for _, raw := range query["status"] {
		for _, value := range strings.Split(raw, ",") {
			if strings.TrimSpace(value) == "" {
				continue
			}
			status, err := jobs.ParseStatus(value)
			if err != nil {
				return jobs.Filter{}, err
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	var err error
	if filter.Limit, err = intParam(query.Get("limit"), defaultListLimit); err != nil {
		return jobs.Filter{}, err
	}
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset, err = intParam(query.Get("offset"), 0); err != nil {
		return jobs.Filter{}, err
	}
	if filter.Offset < 0 {
		return jobs.Filter{}, fmt.Errorf("%w: offset must not be negative", services.ErrValidation)
	}
	return filter, nil
}

func intParam(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", services.ErrValidation, raw)
	}
	return v, nil
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, err := s.manager.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := s.manager.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDownload serves one rendered transcript. Files written at completion
// are preferred; a missing file is re-rendered from the stored result.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	format, err := output.ParseFormat(r.PathValue("format"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if job.Status != jobs.StatusCompleted || job.Result == nil {
		s.writeError(w, r, fmt.Errorf("%w: job %s is %s, transcript not available", services.ErrInvalidTransition, job.ID, job.Status))
		return
	}

	name := output.DownloadName(job.Filename, format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	if path := job.OutputFiles[string(format)]; path != "" {
		if f, openErr := os.Open(path); openErr == nil {
			defer f.Close()
			modTime := time.Time{}
			if info, statErr := f.Stat(); statErr == nil {
				modTime = info.ModTime()
			}
			http.ServeContent(w, r, name, modTime, f)
			return
		}
	}
	data, err := output.Render(*job.Result, format)
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrIO, "download", "render", "could not render transcript", err))
		return
	}
	modTime := time.Time{}
	if job.CompletedAt != nil {
		modTime = *job.CompletedAt
	}
	http.ServeContent(w, r, name, modTime, bytes.NewReader(data))
}
