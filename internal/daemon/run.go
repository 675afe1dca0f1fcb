package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"scribe/internal/config"
	"scribe/internal/history"
	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/notifications"
	"scribe/internal/preflight"
	"scribe/internal/transcription"
	"scribe/internal/workflow"
)

// RunOptions configures daemon process runtime behavior.
type RunOptions struct {
	LogLevel    string
	Development bool
	Version     string
}

// Run starts the scribe daemon in the foreground and blocks until ctx is
// cancelled or the process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts RunOptions) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := logging.RunLogPath(cfg.Paths.LogDir, runID)
	logHub := logging.NewStreamHub(4096)
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		FilePath:    logPath,
		Development: opts.Development,
		Stream:      logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update scribe.log link: %v\n", err)
	}
	logging.Retention{
		Dir:     cfg.Paths.LogDir,
		Pattern: "scribe-*.log",
		MaxAge:  logging.RetentionDays(cfg.Logging.RetentionDays),
		Keep:    []string{logPath},
	}.Apply(logger)
	// Work directories outliving the job timeout were left by a crashed run.
	logging.Retention{Dir: cfg.Paths.WorkDir, MaxAge: orphanWorkAge(cfg)}.Apply(logger)
	pidPath := filepath.Join(cfg.Paths.StateDir, "scribe.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	archive, err := history.Open(cfg.HistoryDBPath())
	if err != nil {
		logger.Error("open history archive", logging.Error(err))
		return err
	}

	store := jobs.NewStore(
		jobs.WithMaxRecords(cfg.Jobs.MaxRecords),
		jobs.WithTerminalTTL(cfg.TerminalTTL()),
	)
	manager := workflow.NewManager(cfg, store, transcription.New(cfg, logger), logger,
		workflow.WithArchive(archive),
		workflow.WithNotifier(notifications.NewService(cfg)),
	)

	d, err := New(cfg, Options{
		Manager: manager,
		History: archive,
		Logs:    logHub,
		Version: opts.Version,
		Logger:  logger,
	})
	if err != nil {
		_ = archive.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.api_bind and the state directory lock"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("scribe daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func orphanWorkAge(cfg *config.Config) time.Duration {
	if timeout := cfg.JobTimeout(); timeout > 0 {
		return timeout
	}
	return 24 * time.Hour
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "scribe.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("whisperx_cuda", cfg.Transcription.WhisperXCUDAEnabled),
		logging.String("whisperx_vad_method", cfg.Transcription.WhisperXVADMethod),
		logging.Bool("hf_token_present", cfg.Transcription.HuggingFaceToken != ""),
		logging.Bool("pyannote_sidecar", cfg.Diarization.PyannoteURL != ""),
	}
	for _, dep := range preflight.CheckSystemDeps(cfg) {
		attrs = append(attrs, logging.Bool(strings.ToLower(dep.Name)+"_available", dep.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
