package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"scribe/internal/config"
	"scribe/internal/fileutil"
	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/output"
	"scribe/internal/services"
	"scribe/internal/transcript"
	"scribe/internal/transcription"
)

// Runner executes a single job from QUEUED to a terminal state.
type Runner struct {
	cfg         *config.Config
	store       *jobs.Store
	transcriber transcription.Transcriber
	logger      *slog.Logger
	now         func() time.Time
	onTerminal  func(ctx context.Context, job jobs.Job)

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Execute runs job id to completion. Failures of the job itself, including
// panics, end as FAILED (or CANCELLED) records and are not returned. An error
// is returned only when the job cannot be started at all: it is unknown, not
// QUEUED, or already executing. Those refusals have no side effects.
func (r *Runner) Execute(ctx context.Context, id string) error {
	if !r.claim(id) {
		return fmt.Errorf("%w: job %s is already executing", jobs.ErrInvalidTransition, id)
	}
	defer r.release(id)

	job, err := r.store.Get(id)
	if err != nil {
		return err
	}
	if job.Status != jobs.StatusQueued {
		return fmt.Errorf("%w: job %s is %s, not %s", jobs.ErrInvalidTransition, id, job.Status, jobs.StatusQueued)
	}

	ctx = services.WithJobID(ctx, id)
	logger := logging.WithContext(ctx, r.logger)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("job panicked",
				logging.String(logging.FieldEventType, "job_panic"),
				logging.String(logging.FieldErrorHint, "report the stack trace; the job was marked failed"),
				logging.String("panic", fmt.Sprint(rec)),
				logging.String("stack", string(debug.Stack())),
			)
			r.fail(ctx, logger, id, fmt.Errorf("internal error: %v", rec))
		}
	}()

	if err := r.preflight(job); err != nil {
		r.fail(ctx, logger, id, err)
		return nil
	}

	started, err := r.store.Transition(id, jobs.StatusProcessing, r.now(), jobs.Payload{Message: "Processing"})
	if err != nil {
		// Cancelled or deleted between admission and start.
		logger.Debug("job left queue before start", logging.Error(err))
		return nil
	}
	r.store.UpdateProgress(id, 5, "Validating input")
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_started"),
		logging.String("filename", started.Filename),
		logging.String("model", started.Model),
		logging.String("language", started.Language),
		logging.Bool("diarization", started.Diarization),
	)

	result, files, err := r.process(ctx, logger, started)
	if err != nil {
		r.fail(ctx, logger, id, err)
		return nil
	}

	completed, err := r.store.Transition(id, jobs.StatusCompleted, r.now(), jobs.Payload{
		Message:     "Completed",
		Result:      &result,
		OutputFiles: files,
	})
	if err != nil {
		logger.Info("job left processing before completion; discarding outputs",
			logging.String(logging.FieldEventType, "job_outputs_discarded"),
			logging.Error(err),
		)
		r.discard(logger, files)
		return nil
	}

	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_completed"),
		logging.Int("segments", len(result.Segments)),
		logging.Int("speakers", result.Metadata.SpeakerCount),
		logging.Int("words", result.Metadata.WordCount),
		logging.Float64("processing_seconds", result.Metadata.ProcessingTime),
	)
	r.terminal(ctx, completed)
	return nil
}

// preflight validates the source before the job starts processing.
func (r *Runner) preflight(job jobs.Job) error {
	info, err := os.Stat(job.SourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrInputNotFound, "preflight", "stat source", job.SourcePath, nil)
		}
		return services.Wrap(services.ErrIO, "preflight", "stat source", job.SourcePath, err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrInputNotFound, "preflight", "stat source", job.SourcePath+" is a directory", nil)
	}
	ext := strings.ToLower(filepath.Ext(job.SourcePath))
	if !r.cfg.AllowedExtension(ext) {
		return services.Wrap(services.ErrUnsupportedFormat, "preflight", "check extension", fmt.Sprintf("%q is not accepted", ext), nil)
	}
	if limit := r.cfg.MaxFileSizeBytes(); limit > 0 && info.Size() > limit {
		return services.Wrap(services.ErrValidation, "preflight", "check size", fmt.Sprintf("%d bytes exceeds limit of %d", info.Size(), limit), nil)
	}
	return nil
}

func (r *Runner) process(ctx context.Context, logger *slog.Logger, job jobs.Job) (transcript.Result, map[string]string, error) {
	workDir := filepath.Join(r.cfg.Paths.WorkDir, job.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return transcript.Result{}, nil, services.Wrap(services.ErrIO, "prepare", "create work directory", workDir, err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logging.WarnWithContext(logger, "work directory cleanup failed", "workdir_cleanup_failed",
				logging.String("path", workDir),
				logging.Error(err),
				logging.String(logging.FieldImpact, "intermediate audio left on disk"),
			)
		}
	}()

	timeout := r.cfg.JobTimeout()
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	sink := r.progressSink(logger, job.ID)
	out, err := r.transcriber.Transcribe(services.WithStage(runCtx, "transcription"), transcription.Request{
		SourcePath: job.SourcePath,
		WorkDir:    workDir,
		Model:      job.Model,
		Language:   job.Language,
		Diarize:    job.Diarization,
	}, sink)
	if err != nil {
		return transcript.Result{}, nil, classifyRunError(ctx, runCtx, timeout, err)
	}
	if err := ctx.Err(); err != nil {
		return transcript.Result{}, nil, services.Wrap(services.ErrCancelled, "transcription", "", "job cancelled", err)
	}

	r.store.UpdateProgress(job.ID, 95, "Processing results")

	size := job.SourceSize
	if info, err := os.Stat(job.SourcePath); err == nil {
		size = info.Size()
	}
	lang := strings.TrimSpace(out.Language)
	if lang == "" {
		lang = job.Language
	}
	var elapsed time.Duration
	if job.StartedAt != nil {
		elapsed = r.now().Sub(*job.StartedAt)
	}

	aligned := transcript.Align(out.Segments, out.Turns)
	result := transcript.Assemble(aligned, transcript.RunInfo{
		Model:          job.Model,
		Language:       lang,
		Diarization:    job.Diarization,
		ProcessingTime: elapsed,
		FileSizeBytes:  size,
		Duration:       out.Duration,
	})

	formats, err := output.ParseFormats(r.cfg.Jobs.Formats)
	if err != nil {
		return transcript.Result{}, nil, fmt.Errorf("%w: jobs.formats: %w", services.ErrConfiguration, err)
	}
	written, err := output.WriteAll(r.cfg.Paths.OutputDir, job.ID, result, formats)
	files := make(map[string]string, len(written))
	for format, path := range written {
		files[string(format)] = path
	}
	if err != nil {
		r.discard(logger, files)
		return transcript.Result{}, nil, err
	}
	return result, files, nil
}

// progressSink forwards transcriber progress into the store and logs a
// sampled subset of it.
func (r *Runner) progressSink(logger *slog.Logger, id string) func(float64, string) {
	sampler := logging.NewProgressSampler(10)
	var mu sync.Mutex
	return func(percent float64, message string) {
		if !r.store.UpdateProgress(id, percent, message) {
			return
		}
		mu.Lock()
		emit := sampler.ShouldLog(percent, message)
		mu.Unlock()
		if emit {
			logger.Info("job progress",
				logging.String(logging.FieldEventType, "job_progress"),
				logging.Float64("percent", percent),
				logging.String("message", message),
			)
		}
	}
}

func classifyRunError(parent, run context.Context, timeout time.Duration, err error) error {
	switch {
	case parent.Err() != nil:
		return services.Wrap(services.ErrCancelled, "transcription", "", "job cancelled", err)
	case errors.Is(run.Err(), context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "transcription", "", fmt.Sprintf("timed out after %s", timeout), err)
	}
	return err
}

// fail records err as the terminal state of job id. Cancellation errors end
// as CANCELLED, everything else as FAILED with its kind.
func (r *Runner) fail(ctx context.Context, logger *slog.Logger, id string, err error) {
	kind := services.KindOf(err)
	to := jobs.StatusFailed
	payload := jobs.Payload{Error: services.Message(err), ErrorKind: string(kind)}
	if kind == services.KindCancelled {
		to = jobs.StatusCancelled
		payload = jobs.Payload{Message: "Cancelled"}
	}

	job, terr := r.store.Transition(id, to, r.now(), payload)
	if terr != nil {
		// Already terminal: Cancel or Delete got there first.
		logger.Debug("failure not recorded", logging.Error(err), logging.String("reason", terr.Error()))
		return
	}

	if to == jobs.StatusCancelled {
		logger.Info("job cancelled", logging.String(logging.FieldEventType, "job_cancelled"))
	} else {
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.ErrorKind(err),
			logging.String(logging.FieldErrorHint, failureHint(kind)),
			logging.Error(err),
		)
	}
	r.terminal(ctx, job)
}

func (r *Runner) terminal(ctx context.Context, job jobs.Job) {
	if r.onTerminal != nil {
		r.onTerminal(context.WithoutCancel(ctx), job)
	}
}

func (r *Runner) discard(logger *slog.Logger, files map[string]string) {
	for _, path := range files {
		if err := fileutil.RemoveIfExists(path); err != nil {
			logger.Debug("output discard failed", logging.String("path", path), logging.Error(err))
		}
	}
}

func (r *Runner) claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[id]; busy {
		return false
	}
	r.inflight[id] = struct{}{}
	return true
}

func (r *Runner) release(id string) {
	r.mu.Lock()
	delete(r.inflight, id)
	r.mu.Unlock()
}

// Active reports how many jobs are executing right now.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}
