package workflow

import (
	"context"
	"errors"
	"strconv"
	"time"

	"scribe/internal/history"
	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/notifications"
	"scribe/internal/services"
)

// finalize archives a terminal job and announces it. Both steps are
// best-effort.
func (m *Manager) finalize(ctx context.Context, job jobs.Job) {
	logger := logging.WithContext(services.WithJobID(ctx, job.ID), m.logger)
	m.setLastJob(job.ID)

	if m.archive != nil {
		if rec, ok := history.FromJob(job); ok {
			if err := m.archive.Save(ctx, rec); err != nil {
				logging.WarnWithContext(logger, "history archive failed", "history_save_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check the history database under paths.state_dir"),
					logging.String(logging.FieldImpact, "job will be missing from scribe history"),
				)
			}
		}
	}

	event, payload, ok := notificationFor(job)
	if !ok || m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send job notification")
			return
		}
		logger.Debug("job notification failed", logging.Error(err))
	}
}

func notificationFor(job jobs.Job) (notifications.Event, notifications.Payload, bool) {
	switch job.Status {
	case jobs.StatusCompleted:
		payload := notifications.Payload{"filename": job.Filename}
		if job.Result != nil {
			payload["speakers"] = strconv.Itoa(job.Result.Metadata.SpeakerCount)
			seconds := job.Result.Metadata.TotalDuration
			payload["duration"] = (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
		}
		return notifications.EventJobCompleted, payload, true
	case jobs.StatusFailed:
		return notifications.EventJobFailed, notifications.Payload{
			"filename": job.Filename,
			"error":    job.ErrorMessage,
			"kind":     job.ErrorKind,
		}, true
	}
	return "", nil, false
}
