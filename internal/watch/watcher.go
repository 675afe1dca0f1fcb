package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"scribe/internal/config"
	"scribe/internal/fileutil"
	"scribe/internal/history"
	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/workflow"
)

// Submitter queues a transcription request.
type Submitter interface {
	Submit(ctx context.Context, req workflow.Request) (jobs.Job, error)
}

// Archive looks up completed jobs by source digest.
type Archive interface {
	FindByDigest(ctx context.Context, digest string) ([]history.Record, error)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithArchive enables digest based de-duplication.
func WithArchive(archive Archive) Option {
	return func(w *Watcher) { w.archive = archive }
}

// WithSettle overrides watch.settle_seconds.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

type candidate struct {
	size       int64
	modTime    time.Time
	lastChange time.Time
}

// Watcher turns file system events in one directory into job submissions.
type Watcher struct {
	cfg       *config.Config
	dir       string
	settle    time.Duration
	submitter Submitter
	archive   Archive
	logger    *slog.Logger
	now       func() time.Time

	pending map[string]candidate
	// processed holds the last submitted version per path. Entries leave when
	// the file is removed or renamed away.
	processed map[string]version
}

type version struct {
	size    int64
	modTime time.Time
}

// New validates the watch configuration.
func New(cfg *config.Config, submitter Submitter, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	if cfg == nil || submitter == nil {
		return nil, fmt.Errorf("%w: watcher requires configuration and a submitter", services.ErrConfiguration)
	}
	dir := strings.TrimSpace(cfg.Watch.Dir)
	if dir == "" {
		return nil, fmt.Errorf("%w: watch.dir is empty", services.ErrConfiguration)
	}
	w := &Watcher{
		cfg:       cfg,
		dir:       dir,
		settle:    time.Duration(cfg.Watch.SettleSeconds) * time.Second,
		submitter: submitter,
		logger:    logging.NewComponentLogger(logger, "watch"),
		now:       time.Now,
		pending:   make(map[string]candidate),
		processed: make(map[string]version),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.settle <= 0 {
		w.settle = time.Second
	}
	return w, nil
}

// Run watches until ctx is cancelled. Files already present when Run starts
// are considered as well.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return services.Wrap(services.ErrIO, "watch", "mkdir", "could not create watch directory", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return services.Wrap(services.ErrIO, "watch", "init", "file watcher unavailable", err)
	}
	defer func() {
		if err := fsw.Close(); err != nil {
			w.logger.Debug("close file watcher", logging.Error(err))
		}
	}()
	if err := fsw.Add(w.dir); err != nil {
		return services.Wrap(services.ErrIO, "watch", "add", "could not watch "+w.dir, err)
	}

	w.scan()
	w.logger.Info("watch folder active",
		logging.String("dir", w.dir),
		logging.Duration("settle", w.settle),
		logging.Int("pending", len(w.pending)),
		logging.String(logging.FieldEventType, "watch_started"),
	)

	interval := w.settle / 2
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "file watcher error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some files may not be picked up until they change again"),
			)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Debug("scan watch folder", logging.Error(err))
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.track(filepath.Join(w.dir, entry.Name()))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.forget(event.Name)
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.track(event.Name)
	}
}

func (w *Watcher) forget(path string) {
	delete(w.pending, path)
	delete(w.processed, path)
}

func (w *Watcher) eligible(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return false
	}
	return w.cfg.AllowedExtension(strings.ToLower(filepath.Ext(base)))
}

func (w *Watcher) track(path string) {
	if !w.eligible(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	c, ok := w.pending[path]
	if ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
		return
	}
	w.pending[path] = candidate{size: info.Size(), modTime: info.ModTime(), lastChange: w.now()}
}

// flush submits every pending file that has stopped changing.
func (w *Watcher) flush(ctx context.Context) {
	now := w.now()
	for path, c := range w.pending {
		info, err := os.Stat(path)
		if err != nil {
			w.forget(path)
			continue
		}
		if info.Size() != c.size || !info.ModTime().Equal(c.modTime) {
			w.pending[path] = candidate{size: info.Size(), modTime: info.ModTime(), lastChange: now}
			continue
		}
		if now.Sub(c.lastChange) < w.settle {
			continue
		}
		delete(w.pending, path)
		w.submit(ctx, path, c)
	}
}

func (w *Watcher) submit(ctx context.Context, path string, c candidate) {
	v := version{size: c.size, modTime: c.modTime}
	if prev, done := w.processed[path]; done && prev.size == v.size && prev.modTime.Equal(v.modTime) {
		return
	}
	w.processed[path] = v

	logger := w.logger.With(logging.String("path", path))
	digest, err := fileutil.Digest(path)
	if err != nil {
		logging.WarnWithContext(logger, "watch file unreadable", "watch_skipped",
			logging.Error(err),
			logging.String(logging.FieldImpact, "file was not submitted"),
			logging.String(logging.FieldErrorHint, "check file permissions in the watch folder"),
		)
		return
	}
	if w.archive != nil {
		records, err := w.archive.FindByDigest(ctx, digest)
		if err != nil {
			logger.Debug("history lookup failed", logging.Error(err))
		} else if len(records) > 0 {
			logger.Info("watch file already transcribed",
				logging.String("previous_job_id", records[0].JobID),
				logging.String(logging.FieldEventType, "watch_duplicate"),
			)
			return
		}
	}

	job, err := w.submitter.Submit(ctx, workflow.Request{
		SourcePath:   path,
		SourceSize:   c.size,
		SourceDigest: digest,
	})
	if err != nil {
		logging.WarnWithContext(logger, "watch submission rejected", "watch_rejected",
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String(logging.FieldImpact, "file was not transcribed"),
		)
		return
	}
	logger.Info("watch file submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.Int64("size_bytes", c.size),
		logging.String(logging.FieldEventType, "watch_submitted"),
	)
}
