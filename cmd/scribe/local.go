package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"scribe/internal/config"
	"scribe/internal/history"
	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/notifications"
	"scribe/internal/transcription"
	"scribe/internal/workflow"
)

// newTranscriber builds the pipeline used by local runs. Tests swap it for a
// stub.
var newTranscriber = func(cfg *config.Config, logger *slog.Logger) transcription.Transcriber {
	return transcription.New(cfg, logger)
}

type localOptions struct {
	// LogLevel defaults to warn so progress output stays readable.
	LogLevel  string
	LogOutput io.Writer
	NoArchive bool
	// Notify publishes per-job notifications.
	Notify bool
}

// localRuntime is an in-process manager for commands that do not go through
// the daemon.
type localRuntime struct {
	cfg     *config.Config
	manager *workflow.Manager
	archive *history.Store
	logger  *slog.Logger
}

func openLocalRuntime(cfg *config.Config, opts localOptions) (*localRuntime, error) {
	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = "warn"
	}
	logger, err := logging.New(logging.Options{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: opts.LogOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	rt := &localRuntime{cfg: cfg, logger: logger}
	var managerOpts []workflow.ManagerOption
	if !opts.NoArchive {
		archive, err := history.Open(cfg.HistoryDBPath())
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		rt.archive = archive
		managerOpts = append(managerOpts, workflow.WithArchive(archive))
	}
	if opts.Notify {
		managerOpts = append(managerOpts, workflow.WithNotifier(notifications.NewService(cfg)))
	}

	store := jobs.NewStore(jobs.WithMaxRecords(0))
	rt.manager = workflow.NewManager(cfg, store, newTranscriber(cfg, logger), logger, managerOpts...)
	return rt, nil
}

// Close stops the manager, which waits for archiving to finish, then closes
// the history store.
func (r *localRuntime) Close() {
	r.manager.Stop()
	if r.archive != nil {
		if err := r.archive.Close(); err != nil {
			logging.WarnWithContext(r.logger, "close history failed", "history_close_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "history may need recovery on next open"),
			)
		}
	}
}

// await follows job id until it reaches a terminal status. When ctx ends
// first the job is cancelled and await keeps draining until the cancellation
// lands.
func (r *localRuntime) await(ctx context.Context, id string, onEvent func(jobs.Event)) (jobs.Job, error) {
	events, stop, err := r.manager.Store().Subscribe(id)
	if err != nil {
		return jobs.Job{}, err
	}
	defer stop()

	done := ctx.Done()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return r.manager.Get(id)
			}
			if onEvent != nil {
				onEvent(ev)
			}
			if ev.Status.Terminal() {
				return r.manager.Get(id)
			}
		case <-done:
			done = nil
			if _, err := r.manager.Cancel(context.WithoutCancel(ctx), id); err != nil {
				r.logger.Debug("cancel on interrupt", logging.Error(err))
			}
		}
	}
}

// progressPrinter prints status changes and progress messages once each.
type progressPrinter struct {
	out      io.Writer
	prefix   string
	colorize bool
	last     string
}

func (p *progressPrinter) handle(ev jobs.Event) {
	line := fmt.Sprintf("%s[%5.1f%%] %s", p.prefix, ev.Progress, strings.TrimSpace(ev.Message))
	if ev.Status.Terminal() {
		line = fmt.Sprintf("%s%s", p.prefix, colorStatus(ev.Status, p.colorize))
		if ev.Error != "" {
			line += ": " + ev.Error
		}
	}
	if line == p.last {
		return
	}
	p.last = line
	fmt.Fprintln(p.out, line)
}
