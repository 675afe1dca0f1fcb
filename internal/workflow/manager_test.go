package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scribe/internal/config"
	"scribe/internal/history"
	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/notifications"
	"scribe/internal/progress"
	"scribe/internal/services"
	"scribe/internal/transcript"
	"scribe/internal/transcription"
	"scribe/internal/workflow"
)

type fakeTranscriber struct {
	run    func(ctx context.Context, req transcription.Request, sink progress.Sink) (transcription.Output, error)
	calls  atomic.Int32
	active atomic.Int32
	peak   atomic.Int32
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, req transcription.Request, sink progress.Sink) (transcription.Output, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.run == nil {
		return sampleOutput(), nil
	}
	return f.run(ctx, req, sink)
}

func sampleOutput() transcription.Output {
	return transcription.Output{
		Segments: []transcript.Segment{
			{Start: 0, End: 4, Text: "Olá, tudo bem?", Confidence: 0.9},
			{Start: 4, End: 8, Text: "Tudo ótimo, obrigado.", Confidence: 0.8},
		},
		Turns: []transcript.Turn{
			{Start: 0, End: 4.2, Speaker: "SPEAKER_00"},
			{Start: 4.2, End: 8, Speaker: "SPEAKER_01"},
		},
		Language: "pt",
		Duration: 8,
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Events() []notifications.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifications.Event(nil), n.events...)
}

type memoryArchive struct {
	mu      sync.Mutex
	records map[string]history.Record
	deleted []string
}

func newMemoryArchive() *memoryArchive {
	return &memoryArchive{records: make(map[string]history.Record)}
}

func (a *memoryArchive) Save(_ context.Context, rec history.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[rec.JobID] = rec
	return nil
}

func (a *memoryArchive) Delete(_ context.Context, id string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, id)
	_, ok := a.records[id]
	delete(a.records, id)
	return ok, nil
}

func (a *memoryArchive) Get(id string) (history.Record, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[id]
	return rec, ok
}

type harness struct {
	cfg         *config.Config
	manager     *workflow.Manager
	transcriber *fakeTranscriber
	notifier    *recordingNotifier
	archive     *memoryArchive
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.OutputDir = filepath.Join(base, "results")
	cfg.Paths.UploadDir = filepath.Join(base, "uploads")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Jobs.MaxConcurrent = 2
	cfg.Jobs.TimeoutSeconds = 30
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

func newHarness(t *testing.T, cfg *config.Config, fake *fakeTranscriber, opts ...workflow.ManagerOption) *harness {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}
	if fake == nil {
		fake = &fakeTranscriber{}
	}
	h := &harness{cfg: cfg, transcriber: fake, notifier: &recordingNotifier{}, archive: newMemoryArchive()}
	opts = append([]workflow.ManagerOption{workflow.WithNotifier(h.notifier), workflow.WithArchive(h.archive)}, opts...)
	store := jobs.NewStore(jobs.WithMaxRecords(cfg.Jobs.MaxRecords))
	h.manager = workflow.NewManager(cfg, store, fake, logging.NewNop(), opts...)
	t.Cleanup(h.manager.Stop)
	return h
}

func writeSource(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("RIFF....WAVEfmt "), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func waitTerminal(t *testing.T, m *workflow.Manager, id string) jobs.Job {
	t.Helper()
	events, cancel, err := m.Store().Subscribe(id)
	if err != nil {
		t.Fatalf("subscribe %s: %v", id, err)
	}
	defer cancel()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				job, err := m.Get(id)
				if err != nil {
					t.Fatalf("get %s: %v", id, err)
				}
				return job
			}
		case <-deadline:
			t.Fatalf("job %s did not reach a terminal state", id)
		}
	}
}

func TestSubmitRunsJobToCompletion(t *testing.T) {
	h := newHarness(t, nil, nil)
	source := writeSource(t, t.TempDir(), "entrevista.wav")

	queued, err := h.manager.Submit(context.Background(), workflow.Request{SourcePath: source})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if queued.Status != jobs.StatusQueued {
		t.Fatalf("expected queued job, got %s", queued.Status)
	}
	if queued.Model != h.cfg.Transcription.DefaultModel || queued.Language != h.cfg.Transcription.DefaultLanguage {
		t.Fatalf("defaults not applied: model=%q language=%q", queued.Model, queued.Language)
	}
	if queued.SourceDigest == "" || queued.SourceSize == 0 {
		t.Fatalf("expected digest and size, got %q/%d", queued.SourceDigest, queued.SourceSize)
	}

	job := waitTerminal(t, h.manager, queued.ID)
	h.manager.Wait()

	if job.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s: %s)", job.Status, job.ErrorKind, job.ErrorMessage)
	}
	if job.Progress != 100 || job.Result == nil || job.StartedAt == nil || job.CompletedAt == nil {
		t.Fatalf("completed invariants violated: %+v", job)
	}
	if got := job.Result.Metadata.SpeakerCount; got != 2 {
		t.Fatalf("expected 2 speakers, got %d", got)
	}
	if job.Result.Segments[1].Speaker != "SPEAKER_01" {
		t.Fatalf("second segment speaker = %q", job.Result.Segments[1].Speaker)
	}
	for _, format := range []string{"txt", "json", "srt", "vtt"} {
		path, ok := job.OutputFiles[format]
		if !ok {
			t.Fatalf("missing %s output", format)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("%s output not written: %v", format, err)
		}
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.WorkDir, job.ID)); !os.IsNotExist(err) {
		t.Fatalf("work directory not removed: %v", err)
	}
	if rec, ok := h.archive.Get(job.ID); !ok || rec.Status != jobs.StatusCompleted {
		t.Fatalf("expected archived completed record, got %+v (ok=%v)", rec, ok)
	}
	if events := h.notifier.Events(); len(events) != 1 || events[0] != notifications.EventJobCompleted {
		t.Fatalf("unexpected notifications: %v", events)
	}
}

func TestMissingSourceFailsBeforeProcessing(t *testing.T) {
	h := newHarness(t, nil, nil)
	missing := filepath.Join(t.TempDir(), "gone.mp3")

	queued, err := h.manager.Submit(context.Background(), workflow.Request{SourcePath: missing})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitTerminal(t, h.manager, queued.ID)
	h.manager.Wait()

	if job.Status != jobs.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.ErrorKind != string(services.KindInputNotFound) {
		t.Fatalf("expected input_not_found, got %q", job.ErrorKind)
	}
	if job.StartedAt != nil {
		t.Fatalf("job reached processing: started at %v", job.StartedAt)
	}
	if job.ErrorMessage == "" {
		t.Fatal("failed job must carry an error message")
	}
	if h.transcriber.calls.Load() != 0 {
		t.Fatal("transcriber must not run for a missing source")
	}
	if events := h.notifier.Events(); len(events) != 1 || events[0] != notifications.EventJobFailed {
		t.Fatalf("unexpected notifications: %v", events)
	}
}

func TestSubmitRejectsUnsupportedRequests(t *testing.T) {
	h := newHarness(t, nil, nil)
	dir := t.TempDir()
	wav := writeSource(t, dir, "ok.wav")
	text := writeSource(t, dir, "notes.txt")

	tests := []struct {
		name string
		req  workflow.Request
		want error
	}{
		{"empty path", workflow.Request{}, services.ErrValidation},
		{"extension", workflow.Request{SourcePath: text}, services.ErrUnsupportedFormat},
		{"model", workflow.Request{SourcePath: wav, Model: "gigantic"}, services.ErrUnsupportedFormat},
		{"language", workflow.Request{SourcePath: wav, Language: "sv"}, services.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.manager.Submit(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if n := h.manager.Store().Len(); n != 0 {
		t.Fatalf("rejected submissions must not create jobs, store has %d", n)
	}
}

func TestSubmitNormalizesLanguageNames(t *testing.T) {
	h := newHarness(t, nil, nil)
	source := writeSource(t, t.TempDir(), "talk.wav")
	diarize := false

	job, err := h.manager.Submit(context.Background(), workflow.Request{
		SourcePath:  source,
		Language:    "English",
		Model:       "Small",
		Diarization: &diarize,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Language != "en" || job.Model != "small" || job.Diarization {
		t.Fatalf("unexpected normalisation: %+v", job)
	}
	waitTerminal(t, h.manager, job.ID)
}

func TestTimeoutMarksJobFailed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Jobs.TimeoutSeconds = 1
	fake := &fakeTranscriber{run: func(ctx context.Context, _ transcription.Request, _ progress.Sink) (transcription.Output, error) {
		<-ctx.Done()
		return transcription.Output{}, services.Wrap(services.ErrExternalTool, "whisperx", "run", "killed", ctx.Err())
	}}
	h := newHarness(t, cfg, fake)
	source := writeSource(t, t.TempDir(), "long.wav")

	queued, err := h.manager.Submit(context.Background(), workflow.Request{SourcePath: source})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitTerminal(t, h.manager, queued.ID)
	if job.Status != jobs.StatusFailed || job.ErrorKind != string(services.KindTimeout) {
		t.Fatalf("expected failed/timeout, got %s/%s", job.Status, job.ErrorKind)
	}
	if !strings.Contains(job.ErrorMessage, "timed out") {
		t.Fatalf("unexpected message %q", job.ErrorMessage)
	}
}

func TestPanicIsRecoveredAsFailure(t *testing.T) {
	fake := &fakeTranscriber{run: func(context.Context, transcription.Request, progress.Sink) (transcription.Output, error) {
		panic("boom")
	}}
	h := newHarness(t, nil, fake)
	source := writeSource(t, t.TempDir(), "panic.wav")

	queued, err := h.manager.Submit(context.Background(), workflow.Request{SourcePath: source})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitTerminal(t, h.manager, queued.ID)
	if job.Status != jobs.StatusFailed || job.ErrorKind != string(services.KindInternal) {
		t.Fatalf("expected failed/internal, got %s/%s", job.Status, job.ErrorKind)
	}
	if !strings.Contains(job.ErrorMessage, "boom") {
		t.Fatalf("panic value missing from message %q", job.ErrorMessage)
	}
	h.manager.Wait()
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.WorkDir, job.ID)); !os.IsNotExist(err) {
		t.Fatalf("work directory left after panic: %v", err)
	}
}

func TestTranscriberErrorKeepsKind(t *testing.T) {
	fake := &fakeTranscriber{run: func(_ context.Context, _ transcription.Request, sink progress.Sink) (transcription.Output, error) {
		sink(40, "Transcribing")
		return transcription.Output{}, services.Wrap(services.ErrExternalTool, "whisperx", "run", "exit status 1", nil)
	}}
	h := newHarness(t, nil, fake)
	source := writeSource(t, t.TempDir(), "bad.wav")

	queued, err := h.manager.Submit(context.Background(), workflow.Request{SourcePath: source})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitTerminal(t, h.manager, queued.ID)
	if job.ErrorKind != string(services.KindExternalTool) {
		t.Fatalf("expected external_tool, got %q", job.ErrorKind)
	}
	if job.Progress != 40 {
		t.Fatalf("failed job should keep last progress, got %v", job.Progress)
	}
	if job.Result != nil {
		t.Fatal("failed job must not carry a result")
	}
}

func TestProgressForwardedAndMonotonic(t *testing.T) {
	var h *harness
	observed := make(chan float64, 1)
	fake := &fakeTranscriber{run: func(_ context.Context, req transcription.Request, sink progress.Sink) (transcription.Output, error) {
		sink(60, "Transcribing")
		sink(30, "Audio processing")
		job, err := h.manager.Get(filepath.Base(req.WorkDir))
		if err != nil {
			return transcription.Output{}, err
		}
		observed <- job.Progress
		return sampleOutput(), nil
	}}
	h = newHarness(t, nil, fake)
	source := writeSource(t, t.TempDir(), "steps.wav")

	queued, err := h.manager.Submit(context.Background(), workflow.Request{SourcePath: source})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitTerminal(t, h.manager, queued.ID)
	if got := <-observed; got != 60 {
		t.Fatalf("progress moved backwards or was not forwarded: %v", got)
	}
}

func TestCancelProcessingJob(t *testing.T) {
	started := make(chan string, 1)
	stopped := make(chan struct{})
	fake := &fakeTranscriber{run: func(ctx context.Context, req transcription.Request, _ progress.Sink) (transcription.Output, error) {
		started <- filepath.Base(req.WorkDir)
		<-ctx.Done()
		close(stopped)
		return transcription.Output{}, ctx.Err()
	}}
	h := newHarness(t, nil, fake)
	source := writeSource(t, t.TempDir(), "cancel.wav")

	queued, err := h.manager.Submit(context.Background(), workflow.Request{SourcePath: source})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id := <-started; id != queued.ID {
		t.Fatalf("unexpected job started: %s", id)
	}

	cancelled, err := h.manager.Cancel(context.Background(), queued.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != jobs.StatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected cancelled job: %+v", cancelled)
	}
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("transcriber context was not cancelled")
	}
	h.manager.Wait()

	job, err := h.manager.Get(queued.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != jobs.StatusCancelled {
		t.Fatalf("runner overwrote cancelled state with %s", job.Status)
	}
	if _, err := h.manager.Cancel(context.Background(), queued.ID); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("second cancel: expected invalid transition, got %v", err)
	}
	if rec, ok := h.archive.Get(queued.ID); !ok || rec.Status != jobs.StatusCancelled {
		t.Fatalf("cancelled job not archived: %+v", rec)
	}
	if events := h.notifier.Events(); len(events) != 0 {
		t.Fatalf("cancellation should not notify, got %v", events)
	}
}

func TestCancelQueuedJobNeverRuns(t *testing.T) {
	cfg := testConfig(t)
	cfg.Jobs.MaxConcurrent = 1
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	fake := &fakeTranscriber{run: func(context.Context, transcription.Request, progress.Sink) (transcription.Output, error) {
		started <- struct{}{}
		<-release
		return sampleOutput(), nil
	}}
	h := newHarness(t, cfg, fake)
	dir := t.TempDir()

	first, err := h.manager.Submit(context.Background(), workflow.Request{SourcePath: writeSource(t, dir, "a.wav")})
	if err != nil {
		t.Fatalf("submit first: %v", err)
	}
	<-started
	second, err := h.manager.Submit(context.Background(), workflow.Request{SourcePath: writeSource(t, dir, "b.wav")})
	if err != nil {
		t.Fatalf("submit second: %v", err)
	}
	if job, _ := h.manager.Get(second.ID); job.Status != jobs.StatusQueued {
		t.Fatalf("second job should wait for a slot, got %s", job.Status)
	}

	if _, err := h.manager.Cancel(context.Background(), second.ID); err != nil {
		t.Fatalf("cancel queued: %v", err)
	}
	close(release)
	if job := waitTerminal(t, h.manager, first.ID); job.Status != jobs.StatusCompleted {
		t.Fatalf("first job: %s", job.Status)
	}
	h.manager.Wait()

	if calls := fake.calls.Load(); calls != 1 {
		t.Fatalf("cancelled queued job ran: %d transcriber calls", calls)
	}
	if job, _ := h.manager.Get(second.ID); job.Status != jobs.StatusCancelled || job.StartedAt != nil {
		t.Fatalf("unexpected second job: %+v", job)
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	cfg := testConfig(t)
	cfg.Jobs.MaxConcurrent = 2
	fake := &fakeTranscriber{run: func(context.Context, transcription.Request, progress.Sink) (transcription.Output, error) {
		time.Sleep(20 * time.Millisecond)
		return sampleOutput(), nil
	}}
	h := newHarness(t, cfg, fake)
	dir := t.TempDir()

	var ids []string
	for _, name := range []string{"1.wav", "2.wav", "3.wav", "4.wav", "5.wav"} {
		job, err := h.manager.Submit(context.Background(), workflow.Request{SourcePath: writeSource(t, dir, name)})
		if err != nil {
			t.Fatalf("submit %s: %v", name, err)
		}
		ids = append(ids, job.ID)
	}
	for _, id := range ids {
		if job := waitTerminal(t, h.manager, id); job.Status != jobs.StatusCompleted {
			t.Fatalf("job %s: %s", id, job.Status)
		}
	}
	if peak := fake.peak.Load(); peak > 2 {
		t.Fatalf("expected at most 2 concurrent transcriptions, saw %d", peak)
	}
	if calls := fake.calls.Load(); calls != 5 {
		t.Fatalf("expected 5 transcriptions, got %d", calls)
	}
}

func TestExecuteRefusesSecondInFlightCall(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fake := &fakeTranscriber{run: func(context.Context, transcription.Request, progress.Sink) (transcription.Output, error) {
		close(started)
		<-release
		return sampleOutput(), nil
	}}
	h := newHarness(t, nil, fake)
	source := writeSource(t, t.TempDir(), "direct.wav")
	if _, err := h.manager.Store().Create(jobs.Job{ID: "direct", SourcePath: source, Filename: "direct.wav", Model: "medium", Language: "pt"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- h.manager.Runner().Execute(context.Background(), "direct") }()
	<-started

	before, _ := h.manager.Get("direct")
	if err := h.manager.Runner().Execute(context.Background(), "direct"); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for concurrent execute, got %v", err)
	}
	after, _ := h.manager.Get("direct")
	if before.Status != after.Status || before.Progress != after.Progress {
		t.Fatalf("refused execute had side effects: %+v -> %+v", before, after)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := h.manager.Runner().Execute(context.Background(), "direct"); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for completed job, got %v", err)
	}
	if err := h.manager.Runner().Execute(context.Background(), "nope"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteRemovesRecordAndFiles(t *testing.T) {
	h := newHarness(t, nil, nil)
	upload := writeSource(t, h.cfg.Paths.UploadDir, "upload.wav")

	queued, err := h.manager.Submit(context.Background(), workflow.Request{SourcePath: upload, Filename: "meeting.wav"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitTerminal(t, h.manager, queued.ID)
	h.manager.Wait()

	deleted, err := h.manager.Delete(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.ID != job.ID {
		t.Fatalf("deleted wrong job %s", deleted.ID)
	}
	if _, err := h.manager.Get(job.ID); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Fatalf("record still present: %v", err)
	}
	for format, path := range job.OutputFiles {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("%s output still on disk: %v", format, err)
		}
	}
	if _, err := os.Stat(upload); !os.IsNotExist(err) {
		t.Fatalf("upload still on disk: %v", err)
	}
	if _, ok := h.archive.Get(job.ID); ok {
		t.Fatal("history row still present")
	}
	if _, err := h.manager.Delete(context.Background(), job.ID); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Fatalf("second delete: expected not found, got %v", err)
	}
}

func TestDeleteKeepsSourcesOutsideUploadDir(t *testing.T) {
	h := newHarness(t, nil, nil)
	source := writeSource(t, t.TempDir(), "keep.wav")

	queued, err := h.manager.Submit(context.Background(), workflow.Request{SourcePath: source})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitTerminal(t, h.manager, queued.ID)
	h.manager.Wait()
	if _, err := h.manager.Delete(context.Background(), queued.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(source); err != nil {
		t.Fatalf("source outside upload dir was removed: %v", err)
	}
}

func TestStopCancelsRunningJobsAndRefusesSubmissions(t *testing.T) {
	started := make(chan struct{}, 1)
	fake := &fakeTranscriber{run: func(ctx context.Context, _ transcription.Request, _ progress.Sink) (transcription.Output, error) {
		started <- struct{}{}
		<-ctx.Done()
		return transcription.Output{}, ctx.Err()
	}}
	h := newHarness(t, nil, fake)
	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.manager.Start(context.Background()); err == nil {
		t.Fatal("second start should fail")
	}
	dir := t.TempDir()
	job, err := h.manager.Submit(context.Background(), workflow.Request{SourcePath: writeSource(t, dir, "run.wav")})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	h.manager.Stop()

	got, err := h.manager.Get(job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != jobs.StatusCancelled {
		t.Fatalf("expected cancelled after stop, got %s", got.Status)
	}
	if _, err := h.manager.Submit(context.Background(), workflow.Request{SourcePath: writeSource(t, dir, "late.wav")}); !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected submissions to be refused after stop, got %v", err)
	}
	if status := h.manager.Status(); status.Running {
		t.Fatal("status should report stopped manager")
	}
}

func TestPruneExpiredUsesTerminalTimestamps(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	cfg := testConfig(t)
	store := jobs.NewStore(jobs.WithTerminalTTL(time.Hour), jobs.WithClock(clock))
	manager := workflow.NewManager(cfg, store, &fakeTranscriber{}, logging.NewNop(),
		workflow.WithClock(clock),
		workflow.WithNotifier(&recordingNotifier{}),
	)
	t.Cleanup(manager.Stop)

	job, err := manager.Submit(context.Background(), workflow.Request{SourcePath: writeSource(t, t.TempDir(), "old.wav")})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitTerminal(t, manager, job.ID)
	manager.Wait()

	if n := manager.PruneExpired(); n != 0 {
		t.Fatalf("nothing should expire yet, pruned %d", n)
	}
	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()
	if n := manager.PruneExpired(); n != 1 {
		t.Fatalf("expected 1 pruned job, got %d", n)
	}
	if status := manager.Status(); status.Pruned != 1 || status.Total != 0 {
		t.Fatalf("unexpected status after prune: %+v", status)
	}
}

func TestStatusReportsCounts(t *testing.T) {
	h := newHarness(t, nil, nil)
	job, err := h.manager.Submit(context.Background(), workflow.Request{SourcePath: writeSource(t, t.TempDir(), "s.wav")})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitTerminal(t, h.manager, job.ID)
	h.manager.Wait()

	status := h.manager.Status()
	if status.MaxConcurrent != h.cfg.Jobs.MaxConcurrent {
		t.Fatalf("max concurrent = %d", status.MaxConcurrent)
	}
	if status.Counts[jobs.StatusCompleted] != 1 || status.Total != 1 || status.Active != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.LastJobID != job.ID {
		t.Fatalf("last job = %q", status.LastJobID)
	}
}
