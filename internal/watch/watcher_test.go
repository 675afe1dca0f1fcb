package watch_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"scribe/internal/config"
	"scribe/internal/fileutil"
	"scribe/internal/history"
	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/watch"
	"scribe/internal/workflow"
)

type recordingSubmitter struct {
	mu       sync.Mutex
	requests []workflow.Request
	notify   chan workflow.Request
}

func newRecordingSubmitter() *recordingSubmitter {
	return &recordingSubmitter{notify: make(chan workflow.Request, 16)}
}

func (s *recordingSubmitter) Submit(_ context.Context, req workflow.Request) (jobs.Job, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	n := len(s.requests)
	s.mu.Unlock()
	s.notify <- req
	return jobs.Job{ID: fmt.Sprintf("job-%d", n), Status: jobs.StatusQueued}, nil
}

func (s *recordingSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type digestArchive map[string]history.Record

func (a digestArchive) FindByDigest(_ context.Context, digest string) ([]history.Record, error) {
	if rec, ok := a[digest]; ok {
		return []history.Record{rec}, nil
	}
	return nil, nil
}

func watchConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Watch.Enabled = true
	cfg.Watch.Dir = filepath.Join(t.TempDir(), "inbox")
	return &cfg
}

func startWatcher(t *testing.T, cfg *config.Config, sub watch.Submitter, opts ...watch.Option) {
	t.Helper()
	opts = append([]watch.Option{watch.WithSettle(100 * time.Millisecond)}, opts...)
	w, err := watch.New(cfg, sub, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("watcher run: %v", err)
		}
	})
	// Give Run time to create the directory and register the watch.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(cfg.Watch.Dir); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watch directory was not created")
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
}

func expectRequest(t *testing.T, sub *recordingSubmitter) workflow.Request {
	t.Helper()
	select {
	case req := <-sub.notify:
		return req
	case <-time.After(5 * time.Second):
		t.Fatal("expected a submission")
	}
	return workflow.Request{}
}

func expectNoRequest(t *testing.T, sub *recordingSubmitter, wait time.Duration) {
	t.Helper()
	select {
	case req := <-sub.notify:
		t.Fatalf("unexpected submission %+v", req)
	case <-time.After(wait):
	}
}

func TestNewRequiresDirectory(t *testing.T) {
	cfg := config.Default()
	if _, err := watch.New(&cfg, newRecordingSubmitter(), nil); err == nil {
		t.Fatal("expected error for empty watch dir")
	}
}

func TestSubmitsSettledMediaFile(t *testing.T) {
	cfg := watchConfig(t)
	sub := newRecordingSubmitter()
	startWatcher(t, cfg, sub)

	path := filepath.Join(cfg.Watch.Dir, "reuniao.mp3")
	if err := os.WriteFile(path, []byte("ID3 audio bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	req := expectRequest(t, sub)
	if req.SourcePath != path {
		t.Fatalf("expected %s, got %s", path, req.SourcePath)
	}
	want, err := fileutil.Digest(path)
	if err != nil {
		t.Fatal(err)
	}
	if req.SourceDigest != want || req.SourceSize != int64(len("ID3 audio bytes")) {
		t.Fatalf("unexpected request metadata %+v", req)
	}
	expectNoRequest(t, sub, 400*time.Millisecond)
}

func TestIgnoresUnsupportedAndHiddenFiles(t *testing.T) {
	cfg := watchConfig(t)
	sub := newRecordingSubmitter()
	startWatcher(t, cfg, sub)

	for _, name := range []string{"notes.txt", ".partial.mp3", "~lock.wav"} {
		if err := os.WriteFile(filepath.Join(cfg.Watch.Dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	expectNoRequest(t, sub, 500*time.Millisecond)
}

func TestPicksUpExistingFilesOnStart(t *testing.T) {
	cfg := watchConfig(t)
	if err := os.MkdirAll(cfg.Watch.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfg.Watch.Dir, "backlog.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := newRecordingSubmitter()
	startWatcher(t, cfg, sub)

	if req := expectRequest(t, sub); req.SourcePath != path {
		t.Fatalf("expected backlog file, got %s", req.SourcePath)
	}
}

func TestSkipsAlreadyTranscribedContent(t *testing.T) {
	cfg := watchConfig(t)
	if err := os.MkdirAll(cfg.Watch.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	done := filepath.Join(cfg.Watch.Dir, "done.wav")
	if err := os.WriteFile(done, []byte("already seen"), 0o644); err != nil {
		t.Fatal(err)
	}
	digest, err := fileutil.Digest(done)
	if err != nil {
		t.Fatal(err)
	}
	archive := digestArchive{digest: {JobID: "old", Status: jobs.StatusCompleted}}

	sub := newRecordingSubmitter()
	startWatcher(t, cfg, sub, watch.WithArchive(archive))
	expectNoRequest(t, sub, 500*time.Millisecond)

	fresh := filepath.Join(cfg.Watch.Dir, "fresh.wav")
	if err := os.WriteFile(fresh, []byte("new content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if req := expectRequest(t, sub); req.SourcePath != fresh {
		t.Fatalf("expected fresh file, got %s", req.SourcePath)
	}
	if sub.count() != 1 {
		t.Fatalf("expected exactly one submission, got %d", sub.count())
	}
}
