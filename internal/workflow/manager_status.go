package workflow

import (
	"time"

	"scribe/internal/jobs"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running       bool                `json:"running"`
	StartedAt     time.Time           `json:"started_at,omitzero"`
	MaxConcurrent int                 `json:"max_concurrent"`
	Active        int                 `json:"active"`
	Counts        map[jobs.Status]int `json:"counts"`
	Total         int                 `json:"total"`
	Pruned        int                 `json:"pruned"`
	LastJobID     string              `json:"last_job_id,omitempty"`
	LastError     string              `json:"last_error,omitempty"`
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.Lock()
	summary := StatusSummary{
		Running:       m.running,
		StartedAt:     m.startedAt,
		MaxConcurrent: cap(m.slots),
		Pruned:        m.sweptTotal,
		LastJobID:     m.lastJobID,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.Unlock()

	summary.Active = m.runner.Active()
	summary.Counts = m.store.Counts()
	summary.Total = m.store.Len()
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(id string) {
	m.mu.Lock()
	m.lastJobID = id
	m.mu.Unlock()
}
