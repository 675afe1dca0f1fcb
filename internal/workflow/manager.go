package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"scribe/internal/config"
	"scribe/internal/history"
	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/notifications"
	"scribe/internal/transcription"
)

// Archive persists terminal jobs. *history.Store satisfies it.
type Archive interface {
	Save(ctx context.Context, rec history.Record) error
	Delete(ctx context.Context, id string) (bool, error)
}

// Manager coordinates job admission, execution and cleanup.
type Manager struct {
	cfg      *config.Config
	store    *jobs.Store
	runner   *Runner
	archive  Archive
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	slots chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu         sync.Mutex
	running    bool
	stopped    bool
	cancels    map[string]context.CancelFunc
	sweepStop  context.CancelFunc
	wg         sync.WaitGroup
	sweepWG    sync.WaitGroup
	lastErr    error
	lastJobID  string
	startedAt  time.Time
	sweptTotal int
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithArchive archives terminal jobs in the given history store.
func WithArchive(archive Archive) ManagerOption {
	return func(m *Manager) { m.archive = archive }
}

// WithNotifier overrides the notification service built from config.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithClock overrides the wall clock used for job timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides uuid job identifiers.
func WithIDGenerator(fn func() string) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewManager constructs a manager around store. transcriber is the pipeline
// every admitted job runs through.
func NewManager(cfg *config.Config, store *jobs.Store, transcriber transcription.Transcriber, logger *slog.Logger, opts ...ManagerOption) *Manager {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	limit := cfg.Jobs.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}
	m := &Manager{
		cfg:        cfg,
		store:      store,
		notifier:   notifications.NewService(cfg),
		logger:     logging.NewComponentLogger(logger, "workflow-manager"),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
		slots:      make(chan struct{}, limit),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		cancels:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.runner = &Runner{
		cfg:         cfg,
		store:       store,
		transcriber: transcriber,
		logger:      logging.NewComponentLogger(logger, "workflow-runner"),
		now:         m.now,
		onTerminal:  m.finalize,
		inflight:    make(map[string]struct{}),
	}
	return m
}

// Store exposes the job store backing the manager.
func (m *Manager) Store() *jobs.Store {
	return m.store
}

// Runner exposes the job runner, mainly for synchronous local runs.
func (m *Manager) Runner() *Runner {
	return m.runner
}
