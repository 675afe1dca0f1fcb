package jobs

import (
	"fmt"
	"strings"
	"time"

	"scribe/internal/services"
	"scribe/internal/transcript"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled}

// AllStatuses returns every job status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a user supplied value into a Status.
func ParseStatus(value string) (Status, error) {
	candidate := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range allStatuses {
		if s == candidate {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown job status %q", services.ErrValidation, value)
}

// Terminal reports whether no further transitions or progress are accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var transitions = map[Status]map[Status]struct{}{
	StatusQueued: {
		StatusProcessing: {},
		StatusFailed:     {},
		StatusCancelled:  {},
	},
	StatusProcessing: {
		StatusCompleted: {},
		StatusFailed:    {},
		StatusCancelled: {},
	},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// Job is one transcription request and its outcome.
type Job struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	Filename     string `json:"filename"`
	SourcePath   string `json:"source_path"`
	SourceSize   int64  `json:"source_size,omitempty"`
	SourceDigest string `json:"source_digest,omitempty"`
	Model        string `json:"model"`
	Diarization  bool   `json:"diarization"`
	Language     string `json:"language"`

	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`

	Result       *transcript.Result `json:"result,omitempty"`
	OutputFiles  map[string]string  `json:"output_files,omitempty"`
	ErrorMessage string             `json:"error,omitempty"`
	ErrorKind    string             `json:"error_kind,omitempty"`
}

// TerminalAt returns the time the job reached its terminal status.
func (j Job) TerminalAt() (time.Time, bool) {
	var ts *time.Time
	switch j.Status {
	case StatusCompleted:
		ts = j.CompletedAt
	case StatusFailed:
		ts = j.FailedAt
	case StatusCancelled:
		ts = j.CancelledAt
	}
	if ts == nil {
		return time.Time{}, false
	}
	return *ts, true
}

// Elapsed returns the processing duration so far, or the total for finished jobs.
func (j Job) Elapsed(now time.Time) time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := now
	if ts, ok := j.TerminalAt(); ok {
		end = ts
	}
	if end.Before(*j.StartedAt) {
		return 0
	}
	return end.Sub(*j.StartedAt)
}

// clone copies j so callers never share mutable state with the store. The
// result is immutable once attached and is shared.
func (j *Job) clone() Job {
	cp := *j
	cp.StartedAt = cloneTime(j.StartedAt)
	cp.CompletedAt = cloneTime(j.CompletedAt)
	cp.FailedAt = cloneTime(j.FailedAt)
	cp.CancelledAt = cloneTime(j.CancelledAt)
	if j.OutputFiles != nil {
		cp.OutputFiles = make(map[string]string, len(j.OutputFiles))
		for k, v := range j.OutputFiles {
			cp.OutputFiles[k] = v
		}
	}
	return cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Payload carries the data attached by a transition.
type Payload struct {
	Message     string
	Result      *transcript.Result
	OutputFiles map[string]string
	Error       string
	ErrorKind   string
}

// Event is pushed to subscribers whenever a job's progress or status changes.
type Event struct {
	JobID    string    `json:"job_id"`
	Status   Status    `json:"status"`
	Progress float64   `json:"progress"`
	Message  string    `json:"message,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Filter selects jobs for List.
type Filter struct {
	Statuses []Status
	Limit    int
	Offset   int
}

func (f Filter) matches(j *Job) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if j.Status == s {
			return true
		}
	}
	return false
}
