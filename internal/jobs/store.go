package jobs

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"scribe/internal/services"
)

const (
	defaultMaxRecords       = 1000
	defaultSubscriberBuffer = 32
)

// Option configures a Store.
type Option func(*Store)

// WithMaxRecords bounds the number of records held in memory. Values <= 0
// disable the bound.
func WithMaxRecords(n int) Option {
	return func(s *Store) { s.maxRecords = n }
}

// WithTerminalTTL sets how long terminal jobs are retained before PruneExpired
// removes them. Zero keeps them until evicted or deleted.
func WithTerminalTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock overrides the time source used for defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSubscriberBuffer sets the per-subscriber channel capacity.
func WithSubscriberBuffer(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.subBuffer = n
		}
	}
}

type subscriber struct {
	ch     chan Event
	closed bool
}

// Store is the in-memory job registry. Every mutation goes through the
// store's lock and readers only ever receive copies.
type Store struct {
	mu         sync.RWMutex
	jobs       map[string]*Job
	subs       map[string][]*subscriber
	maxRecords int
	ttl        time.Duration
	subBuffer  int
	now        func() time.Time
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		jobs:       make(map[string]*Job),
		subs:       make(map[string][]*subscriber),
		maxRecords: defaultMaxRecords,
		subBuffer:  defaultSubscriberBuffer,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts a new QUEUED job.
func (s *Store) Create(job Job) (Job, error) {
	job.ID = strings.TrimSpace(job.ID)
	if job.ID == "" {
		return Job{}, fmt.Errorf("%w: job id is required", services.ErrValidation)
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	if job.Status != StatusQueued {
		return Job{}, fmt.Errorf("%w: new job must be %s, got %s", services.ErrValidation, StatusQueued, job.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return Job{}, fmt.Errorf("%w: %s", ErrDuplicateJobID, job.ID)
	}
	if s.maxRecords > 0 && len(s.jobs) >= s.maxRecords {
		if !s.evictOldestTerminalLocked() {
			return Job{}, fmt.Errorf("%w: %d active jobs", ErrStoreFull, len(s.jobs))
		}
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	job.Progress = 0
	job.StartedAt, job.CompletedAt, job.FailedAt, job.CancelledAt = nil, nil, nil, nil
	job.Result = nil
	job.ErrorMessage, job.ErrorKind = "", ""

	stored := job.clone()
	s.jobs[job.ID] = &stored
	return stored.clone(), nil
}

// Get returns a copy of the job.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job.clone(), nil
}

// List returns jobs newest first, filtered and paginated.
func (s *Store) List(filter Filter) []Job {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.matches(job) {
			out = append(out, job.clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []Job{}
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out
}

// UpdateProgress records progress for a running job. Updates for unknown or
// terminal jobs are dropped and reported as false. Percent is clamped to
// [0,100] and never decreases once processing.
func (s *Store) UpdateProgress(id string, percent float64, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		return false
	}
	percent = clampPercent(percent)
	if job.Status == StatusProcessing && percent > job.Progress {
		job.Progress = percent
	}
	if msg := strings.TrimSpace(message); msg != "" {
		job.Message = msg
	}
	s.publishLocked(job, s.now())
	return true
}

// Transition moves a job to a new status and attaches the payload data that
// status requires.
func (s *Store) Transition(id string, to Status, at time.Time, payload Payload) (Job, error) {
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	from := job.Status
	if !CanTransition(from, to) {
		return Job{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	switch to {
	case StatusProcessing:
		if job.StartedAt == nil {
			job.StartedAt = &at
		}
		job.Message = firstNonEmpty(payload.Message, "Processing")
	case StatusCompleted:
		if payload.Result == nil {
			return Job{}, fmt.Errorf("%w: completed job %s requires a result", services.ErrValidation, id)
		}
		job.Result = payload.Result
		job.Progress = 100
		job.CompletedAt = &at
		job.Message = firstNonEmpty(payload.Message, "Completed")
		job.OutputFiles = copyFiles(payload.OutputFiles)
	case StatusFailed:
		errMsg := strings.TrimSpace(payload.Error)
		if errMsg == "" {
			return Job{}, fmt.Errorf("%w: failed job %s requires an error message", services.ErrValidation, id)
		}
		job.ErrorMessage = errMsg
		job.ErrorKind = firstNonEmpty(payload.ErrorKind, string(services.KindInternal))
		job.FailedAt = &at
		job.Message = firstNonEmpty(payload.Message, "Failed")
	case StatusCancelled:
		job.CancelledAt = &at
		job.Message = firstNonEmpty(payload.Message, "Cancelled")
	}
	job.Status = to

	s.publishLocked(job, at)
	return job.clone(), nil
}

// Delete removes the record and closes its subscriptions.
func (s *Store) Delete(id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	delete(s.jobs, id)
	s.closeSubscribersLocked(id)
	return job.clone(), nil
}

// PruneExpired removes terminal jobs whose terminal timestamp is older than
// the configured TTL and returns them.
func (s *Store) PruneExpired(now time.Time) []Job {
	if s.ttl <= 0 {
		return nil
	}
	cutoff := now.Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned []Job
	for id, job := range s.jobs {
		ts, ok := job.TerminalAt()
		if !ok || ts.After(cutoff) {
			continue
		}
		pruned = append(pruned, job.clone())
		delete(s.jobs, id)
		s.closeSubscribersLocked(id)
	}
	sort.Slice(pruned, func(i, j int) bool { return pruned[i].CreatedAt.Before(pruned[j].CreatedAt) })
	return pruned
}

// Counts returns the number of jobs per status. Every status is present.
func (s *Store) Counts() map[Status]int {
	counts := make(map[Status]int, len(allStatuses))
	for _, st := range allStatuses {
		counts[st] = 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *Store) evictOldestTerminalLocked() bool {
	var (
		victim string
		oldest time.Time
	)
	for id, job := range s.jobs {
		ts, ok := job.TerminalAt()
		if !ok {
			continue
		}
		if victim == "" || ts.Before(oldest) || (ts.Equal(oldest) && id < victim) {
			victim, oldest = id, ts
		}
	}
	if victim == "" {
		return false
	}
	delete(s.jobs, victim)
	s.closeSubscribersLocked(victim)
	return true
}

func clampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

func copyFiles(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
