package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"scribe/internal/api"
	"scribe/internal/config"
	"scribe/internal/history"
	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/watch"
	"scribe/internal/workflow"
)

// ErrAlreadyRunning reports that another daemon holds the state lock.
var ErrAlreadyRunning = errors.New("another scribe daemon instance is already running")

// Options wires the daemon to components built by the caller. History and
// Logs are optional.
type Options struct {
	Manager *workflow.Manager
	History *history.Store
	Logs    *logging.StreamHub
	Version string
	Logger  *slog.Logger
}

// Daemon owns the lifecycle of the background services and enforces
// single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	manager *workflow.Manager
	history *history.Store
	server  *api.Server
	watcher *watch.Watcher

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running     bool
	PID         int
	APIAddr     string
	LockPath    string
	HistoryPath string
	WatchDir    string
	Workflow    workflow.StatusSummary
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil || opts.Manager == nil {
		return nil, fmt.Errorf("%w: daemon requires config and workflow manager", services.ErrConfiguration)
	}
	logger := logging.NewComponentLogger(opts.Logger, "daemon")

	apiOpts := api.Options{
		Config:  cfg,
		Manager: opts.Manager,
		Logs:    opts.Logs,
		Version: opts.Version,
		Logger:  opts.Logger,
	}
	if opts.History != nil {
		apiOpts.History = opts.History
	}
	server, err := api.NewServer(apiOpts)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		manager:  opts.Manager,
		history:  opts.History,
		server:   server,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}

	if cfg.Watch.Enabled {
		var watchOpts []watch.Option
		if opts.History != nil {
			watchOpts = append(watchOpts, watch.WithArchive(opts.History))
		}
		d.watcher, err = watch.New(cfg, opts.Manager, opts.Logger, watchOpts...)
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Start acquires the daemon lock and launches the workflow sweeper, the API
// listener, and the watch folder.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, d.lockPath)
	}

	if _, err := d.manager.Preflight(ctx); err != nil {
		logging.WarnWithContext(d.logger, "preflight reported problems", "daemon_preflight_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "jobs may fail until the reported issue is fixed"),
			logging.String(logging.FieldErrorHint, "run scribe status for details"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if strings.TrimSpace(d.cfg.Paths.APIBind) != "" {
		if err := d.server.Start(runCtx); err != nil {
			cancel()
			d.manager.Stop()
			_ = d.lock.Unlock()
			return fmt.Errorf("start api: %w", err)
		}
	}
	if d.watcher != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.watcher.Run(runCtx); err != nil {
				logging.ErrorWithContext(d.logger, "watch folder stopped", "watch_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check watch.dir permissions"),
				)
			}
		}()
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("scribe daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.server.Addr()),
		logging.Bool("watch", d.watcher != nil),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock. Running jobs
// are cancelled.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.Stop()
	d.wg.Wait()
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next start may report a running instance"),
		)
	}
	d.running.Store(false)
	d.logger.Info("scribe daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the history archive.
func (d *Daemon) Close() error {
	d.Stop()
	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	st := Status{
		Running:  d.running.Load(),
		PID:      os.Getpid(),
		APIAddr:  d.server.Addr(),
		LockPath: d.lockPath,
		Workflow: d.manager.Status(),
	}
	if d.history != nil {
		st.HistoryPath = d.history.Path()
	}
	if d.watcher != nil {
		st.WatchDir = d.cfg.Watch.Dir
	}
	return st
}
