package workflow

import (
	"context"
	"errors"
	"fmt"

	"scribe/internal/fileutil"
	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/output"
	"scribe/internal/services"
)

// Get returns a snapshot of job id.
func (m *Manager) Get(id string) (jobs.Job, error) {
	return m.store.Get(id)
}

// List returns jobs matching filter, newest first.
func (m *Manager) List(filter jobs.Filter) []jobs.Job {
	return m.store.List(filter)
}

// Cancel moves a QUEUED or PROCESSING job to CANCELLED and stops its
// transcriber. Terminal jobs yield ErrInvalidTransition.
func (m *Manager) Cancel(ctx context.Context, id string) (jobs.Job, error) {
	job, err := m.store.Get(id)
	if err != nil {
		return jobs.Job{}, err
	}
	if job.Status.Terminal() {
		return jobs.Job{}, fmt.Errorf("%w: job %s is already %s", jobs.ErrInvalidTransition, id, job.Status)
	}
	cancelled, err := m.store.Transition(id, jobs.StatusCancelled, m.now(), jobs.Payload{Message: "Cancelled by request"})
	if err != nil {
		return jobs.Job{}, err
	}

	m.mu.Lock()
	stop := m.cancels[id]
	m.mu.Unlock()
	if stop != nil {
		stop()
	}

	logging.WithContext(services.WithJobID(ctx, id), m.logger).Info("job cancelled",
		logging.String(logging.FieldEventType, "job_cancelled"),
		logging.String("previous_status", string(job.Status)),
	)
	m.finalize(context.WithoutCancel(ctx), cancelled)
	return cancelled, nil
}

// Delete removes job id. An active job is cancelled first. Removing the
// record is authoritative; removing output files, the uploaded source and
// the history row is best-effort and only logged.
func (m *Manager) Delete(ctx context.Context, id string) (jobs.Job, error) {
	if job, err := m.store.Get(id); err == nil && !job.Status.Terminal() {
		if _, err := m.Cancel(ctx, id); err != nil && !errors.Is(err, jobs.ErrInvalidTransition) {
			return jobs.Job{}, err
		}
	}
	job, err := m.store.Delete(id)
	if err != nil {
		return jobs.Job{}, err
	}

	logger := logging.WithContext(services.WithJobID(ctx, id), m.logger)
	output.RemoveAll(m.cfg.Paths.OutputDir, id, logger)
	for format, path := range job.OutputFiles {
		if err := fileutil.RemoveIfExists(path); err != nil {
			logging.WarnWithContext(logger, "output file removal failed", "output_remove_failed",
				logging.String("format", format),
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale transcript file left on disk"),
			)
		}
	}
	if fileutil.Within(m.cfg.Paths.UploadDir, job.SourcePath) {
		if err := fileutil.RemoveIfExists(job.SourcePath); err != nil {
			logging.WarnWithContext(logger, "upload removal failed", "upload_remove_failed",
				logging.String("path", job.SourcePath),
				logging.Error(err),
				logging.String(logging.FieldImpact, "uploaded media left in paths.upload_dir"),
			)
		}
	}
	if m.archive != nil {
		if _, err := m.archive.Delete(context.WithoutCancel(ctx), id); err != nil {
			logging.WarnWithContext(logger, "history removal failed", "history_delete_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "job still listed in scribe history"),
			)
		}
	}

	logger.Info("job deleted",
		logging.String(logging.FieldEventType, "job_deleted"),
		logging.String("status", string(job.Status)),
	)
	return job, nil
}
