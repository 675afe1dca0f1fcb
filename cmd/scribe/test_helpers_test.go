package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"scribe/internal/config"
	"scribe/internal/daemon"
	"scribe/internal/history"
	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/progress"
	"scribe/internal/transcript"
	"scribe/internal/transcription"
	"scribe/internal/workflow"
)

type stubTranscriber struct {
	err error

	mu    sync.Mutex
	calls []string
}

func (s *stubTranscriber) Transcribe(_ context.Context, req transcription.Request, sink progress.Sink) (transcription.Output, error) {
	s.mu.Lock()
	s.calls = append(s.calls, filepath.Base(req.SourcePath))
	s.mu.Unlock()
	if sink != nil {
		sink(40, "Transcribing audio")
	}
	if s.err != nil {
		return transcription.Output{}, s.err
	}
	return transcription.Output{
		Segments: []transcript.Segment{
			{Start: 0, End: 3, Text: "Bom dia!", Confidence: 0.92},
			{Start: 3, End: 7, Text: "Tudo bem?", Confidence: 0.88},
			{Start: 7, End: 9, Text: "Tudo.", Confidence: 0.9},
		},
		Turns: []transcript.Turn{
			{Start: 0, End: 3, Speaker: "SPEAKER_01"},
			{Start: 3, End: 7, Speaker: "SPEAKER_00"},
			{Start: 7, End: 9, Speaker: "SPEAKER_01"},
		},
		Language: "pt",
		Duration: 9,
	}, nil
}

func (s *stubTranscriber) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func useStubTranscriber(t *testing.T, stub *stubTranscriber) {
	t.Helper()
	previous := newTranscriber
	newTranscriber = func(*config.Config, *slog.Logger) transcription.Transcriber { return stub }
	t.Cleanup(func() { newTranscriber = previous })
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	mediaDir   string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("HF_TOKEN", "")
	t.Setenv("SCRIBE_NTFY_TOPIC", "")

	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "results")
	cfgVal.Paths.UploadDir = filepath.Join(base, "uploads")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	// Nothing listens on port 1, so client commands see an absent daemon.
	cfgVal.Paths.APIBind = "127.0.0.1:1"
	cfgVal.Logging.Format = "json"
	cfg := &cfgVal

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	mediaDir := filepath.Join(base, "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		t.Fatalf("mkdir media: %v", err)
	}
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base, mediaDir: mediaDir}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) writeMedia(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.mediaDir, name)
	if err := os.WriteFile(path, []byte("RIFF fake audio "+name), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	return path
}

// startDaemon runs a daemon backed by stub on an ephemeral port and returns
// its address.
func (e *cliTestEnv) startDaemon(t *testing.T, stub *stubTranscriber) string {
	t.Helper()
	cfg := *e.cfg
	cfg.Paths.APIBind = "127.0.0.1:0"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	archive, err := history.Open(cfg.HistoryDBPath())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	manager := workflow.NewManager(&cfg, jobs.NewStore(), stub, logging.NewNop(), workflow.WithArchive(archive))
	d, err := daemon.New(&cfg, daemon.Options{
		Manager: manager,
		History: archive,
		Logs:    logging.NewStreamHub(64),
		Version: "test",
		Logger:  logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		d.Stop()
		_ = d.Close()
	})
	return d.Status().APIAddr
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
