package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"scribe/internal/config"
	"scribe/internal/media/ffprobe"
	"scribe/internal/services"
)

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Extractor converts arbitrary inputs into the mono PCM WAV the recognizer
// expects and probes media metadata.
type Extractor struct {
	ffmpeg     string
	ffprobe    string
	sampleRate int
	channels   int
	videoExts  []string
	run        Runner
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRunner replaces command execution (used by tests).
func WithRunner(run Runner) Option {
	return func(e *Extractor) {
		if run != nil {
			e.run = run
		}
	}
}

// NewExtractor builds an extractor from the [media] config section.
func NewExtractor(cfg config.Media, opts ...Option) *Extractor {
	e := &Extractor{
		ffmpeg:     firstNonEmpty(cfg.FFmpegBinary, "ffmpeg"),
		ffprobe:    firstNonEmpty(cfg.FFprobeBinary, "ffprobe"),
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		videoExts:  append([]string(nil), cfg.VideoExtensions...),
		run:        combinedRunner,
	}
	if e.sampleRate <= 0 {
		e.sampleRate = 16000
	}
	if e.channels <= 0 {
		e.channels = 1
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsVideo reports whether path has a configured video extension.
func (e *Extractor) IsVideo(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range e.videoExts {
		if strings.EqualFold(candidate, ext) {
			return true
		}
	}
	return false
}

// Probe inspects source with ffprobe.
func (e *Extractor) Probe(ctx context.Context, source string) (ffprobe.Result, error) {
	return ffprobe.Inspect(ctx, ffprobe.Runner(e.run), e.ffprobe, source)
}

// ExtractAudio writes the first audio stream of source to dest as PCM WAV at
// the configured sample rate and channel count.
func (e *Extractor) ExtractAudio(ctx context.Context, source, dest string) error {
	if strings.TrimSpace(source) == "" || strings.TrimSpace(dest) == "" {
		return fmt.Errorf("%w: extract audio: source and destination required", services.ErrValidation)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrIO, "extract", "ensure work dir", "", err)
	}
	if output, err := e.run(ctx, e.ffmpeg, e.extractArgs(source, dest)...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, "extract", "ffmpeg", strings.TrimSpace(string(output)), err)
	}
	return nil
}

// Prepare returns the audio path the recognizer should read. Video inputs are
// extracted into workDir; audio inputs are returned unchanged.
func (e *Extractor) Prepare(ctx context.Context, source, workDir string) (string, bool, error) {
	if !e.IsVideo(source) {
		return source, false, nil
	}
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	dest := filepath.Join(workDir, base+".wav")
	if err := e.ExtractAudio(ctx, source, dest); err != nil {
		return "", false, err
	}
	return dest, true, nil
}

func (e *Extractor) extractArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-map", "0:a:0",
		"-vn",
		"-sn",
		"-dn",
		"-ac", strconv.Itoa(e.channels),
		"-ar", strconv.Itoa(e.sampleRate),
		"-c:a", "pcm_s16le",
		dest,
	}
}

func combinedRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return services.CommandContext(ctx, name, args...).CombinedOutput()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
