package workflow

import (
	"context"
	"errors"
	"time"

	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/services"
)

// Start launches the expiry sweeper. Jobs are admitted whether or not the
// manager was started; Start only enables background maintenance.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return errors.New("workflow manager already stopped")
	}
	if m.running {
		return errors.New("workflow already running")
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	m.sweepStop = cancel
	m.running = true
	m.startedAt = m.now()
	m.sweepWG.Add(1)
	go m.sweep(sweepCtx)
	return nil
}

// Stop cancels every queued and running job and waits for them to settle.
// Submissions after Stop are refused.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.running = false
	sweepStop := m.sweepStop
	m.sweepStop = nil
	m.mu.Unlock()

	if sweepStop != nil {
		sweepStop()
	}
	m.baseCancel()
	m.wg.Wait()
	m.sweepWG.Wait()
}

// Wait blocks until every scheduled job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// scheduleLocked starts the dispatcher for id. Callers hold m.mu.
func (m *Manager) scheduleLocked(id string) {
	ctx, cancel := context.WithCancel(services.WithJobID(m.baseCtx, id))
	m.cancels[id] = cancel
	m.wg.Add(1)
	go m.dispatch(ctx, id)
}

func (m *Manager) dispatch(ctx context.Context, id string) {
	defer m.wg.Done()
	defer m.forget(id)

	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		m.abandon(ctx, id)
		return
	}
	defer func() { <-m.slots }()

	if ctx.Err() != nil {
		m.abandon(ctx, id)
		return
	}
	if err := m.runner.Execute(ctx, id); err != nil {
		// Cancelled or deleted while waiting for a slot.
		if !errors.Is(err, jobs.ErrInvalidTransition) && !errors.Is(err, jobs.ErrJobNotFound) {
			m.setLastError(err)
		}
		logging.WithContext(ctx, m.logger).Debug("job not executed", logging.Error(err))
	}
}

// abandon cancels a job that never got a slot.
func (m *Manager) abandon(ctx context.Context, id string) {
	job, err := m.store.Transition(id, jobs.StatusCancelled, m.now(), jobs.Payload{Message: "Cancelled before start"})
	if err != nil {
		return
	}
	logging.WithContext(ctx, m.logger).Info("queued job cancelled",
		logging.String(logging.FieldEventType, "job_cancelled"),
	)
	m.finalize(context.WithoutCancel(ctx), job)
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	cancel := m.cancels[id]
	delete(m.cancels, id)
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Manager) sweep(ctx context.Context) {
	defer m.sweepWG.Done()
	interval := m.cfg.SweepInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.PruneExpired()
		}
	}
}

// PruneExpired drops terminal jobs whose retention has elapsed from the
// in-memory store. Archived history and output files are kept.
func (m *Manager) PruneExpired() int {
	removed := m.store.PruneExpired(m.now())
	if len(removed) == 0 {
		return 0
	}
	m.mu.Lock()
	m.sweptTotal += len(removed)
	m.mu.Unlock()
	m.logger.Info("expired jobs pruned",
		logging.String(logging.FieldEventType, "jobs_pruned"),
		logging.Int("count", len(removed)),
	)
	return len(removed)
}
