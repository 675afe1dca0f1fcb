package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"scribe/internal/fileutil"
	"scribe/internal/jobs"
	"scribe/internal/language"
	"scribe/internal/logging"
	"scribe/internal/services"
)

// Request describes a transcription submission.
type Request struct {
	SourcePath string
	// Filename is the name shown to users. Defaults to the base of SourcePath.
	Filename string
	Model    string
	Language string
	// Diarization falls back to transcription.diarization_default when nil.
	Diarization *bool
	// SourceSize and SourceDigest are computed from the file when zero.
	SourceSize   int64
	SourceDigest string
}

// Submit validates req, records a QUEUED job and schedules it. The job waits
// for a free slot; submissions are never rejected for lack of capacity.
func (m *Manager) Submit(ctx context.Context, req Request) (jobs.Job, error) {
	job, err := m.buildJob(req)
	if err != nil {
		return jobs.Job{}, err
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return jobs.Job{}, fmt.Errorf("%w: manager is shutting down", services.ErrCancelled)
	}
	created, err := m.store.Create(job)
	if err != nil {
		m.mu.Unlock()
		return jobs.Job{}, err
	}
	m.scheduleLocked(created.ID)
	m.mu.Unlock()

	logging.WithContext(services.WithJobID(ctx, created.ID), m.logger).Info("job queued",
		logging.String(logging.FieldEventType, "job_queued"),
		logging.String("filename", created.Filename),
		logging.String("model", created.Model),
		logging.String("language", created.Language),
		logging.Bool("diarization", created.Diarization),
		logging.Int64("source_size", created.SourceSize),
	)
	return created, nil
}

func (m *Manager) buildJob(req Request) (jobs.Job, error) {
	source := strings.TrimSpace(req.SourcePath)
	if source == "" {
		return jobs.Job{}, fmt.Errorf("%w: source path is required", services.ErrValidation)
	}
	if abs, err := filepath.Abs(source); err == nil {
		source = abs
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = filepath.Base(source)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !m.cfg.AllowedExtension(ext) {
		return jobs.Job{}, fmt.Errorf("%w: file extension %q is not accepted", services.ErrUnsupportedFormat, ext)
	}

	model := strings.ToLower(strings.TrimSpace(req.Model))
	if model == "" {
		model = m.cfg.Transcription.DefaultModel
	}
	if !m.cfg.AllowedModel(model) {
		return jobs.Job{}, fmt.Errorf("%w: model %q is not available", services.ErrUnsupportedFormat, model)
	}

	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = m.cfg.Transcription.DefaultLanguage
	}
	if code := language.ToISO2(lang); code != "" {
		lang = code
	}
	if !m.cfg.AllowedLanguage(lang) {
		return jobs.Job{}, fmt.Errorf("%w: language %q is not supported", services.ErrUnsupportedFormat, lang)
	}

	diarize := m.cfg.Transcription.DiarizationDefault
	if req.Diarization != nil {
		diarize = *req.Diarization
	}

	size := req.SourceSize
	digest := strings.TrimSpace(req.SourceDigest)
	if info, err := os.Stat(source); err == nil && !info.IsDir() {
		if size <= 0 {
			size = info.Size()
		}
		if limit := m.cfg.MaxFileSizeBytes(); limit > 0 && size > limit {
			return jobs.Job{}, fmt.Errorf("%w: file is %d bytes, limit is %d", services.ErrValidation, size, limit)
		}
		if digest == "" {
			if sum, err := fileutil.Digest(source); err == nil {
				digest = sum
			} else {
				m.logger.Debug("source digest failed", logging.String("path", source), logging.Error(err))
			}
		}
	}

	return jobs.Job{
		ID:           m.newID(),
		Status:       jobs.StatusQueued,
		CreatedAt:    m.now(),
		Filename:     filename,
		SourcePath:   source,
		SourceSize:   size,
		SourceDigest: digest,
		Model:        model,
		Language:     lang,
		Diarization:  diarize,
		Message:      "Queued",
	}, nil
}
