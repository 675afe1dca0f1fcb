package whisperx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	langpkg "scribe/internal/language"
	"scribe/internal/logging"
	"scribe/internal/progress"
	"scribe/internal/services"
)

const stage = "transcribe"

// tailLines bounds how much tool output is kept for failure messages.
const tailLines = 12

// Request describes one recognition run.
type Request struct {
	AudioPath string
	OutputDir string
	Model     string
	Language  string
	Diarize   bool
}

// Service runs WhisperX through uvx and parses its JSON output.
type Service struct {
	cfg    Config
	exec   Executor
	table  progress.Table
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithExecutor replaces process execution (used by tests).
func WithExecutor(exec Executor) Option {
	return func(s *Service) {
		if exec != nil {
			s.exec = exec
		}
	}
}

// WithProgressTable sets the milestone vocabulary scraped from tool output.
func WithProgressTable(table progress.Table) Option {
	return func(s *Service) { s.table = table }
}

// WithLogger attaches a logger for tool output at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a WhisperX service.
func NewService(cfg Config, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		exec:   commandExecutor{},
		table:  progress.DefaultTable(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Device returns the --device and --compute_type values WhisperX runs with.
func (s *Service) Device() (device, computeType string) {
	if s.cfg.CUDAEnabled {
		return CUDADevice, firstNonEmpty(s.cfg.ComputeType, CUDAComputeType)
	}
	return CPUDevice, firstNonEmpty(s.cfg.ComputeType, CPUComputeType)
}

// Transcribe runs WhisperX on req.AudioPath. Tool output is scanned for
// progress milestones which are forwarded to sink.
func (s *Service) Transcribe(ctx context.Context, req Request, sink progress.Sink) (Transcript, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Transcript{}, fmt.Errorf("%w: whisperx: audio path required", services.ErrValidation)
	}
	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = filepath.Dir(req.AudioPath)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Transcript{}, services.Wrap(services.ErrIO, stage, "ensure output dir", "", err)
	}

	args := s.buildArgs(req, outputDir)
	device, computeType := s.Device()
	s.logger.Debug("whisperx command",
		logging.String(logging.FieldEventType, "whisperx_start"),
		logging.String("model", modelOrDefault(req.Model)),
		logging.Bool("diarize", req.Diarize),
		logging.String("device", device),
		logging.String("compute_type", computeType),
	)

	tail := newLineTail(tailLines)
	pr, pw := io.Pipe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = progress.Monitor(ctx, pr, s.table, sink, progress.WithLineHandler(func(line string) {
			tail.add(line)
			s.logger.Debug("whisperx output", logging.String("line", line))
		}))
		// Keep draining so the tool never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, pr)
	}()

	runErr := s.exec.Run(ctx, UVXCommand, args, pw)
	_ = pw.Close()
	wg.Wait()

	if runErr != nil {
		return Transcript{}, classifyRunError(ctx, runErr, tail.String())
	}

	jsonPath := OutputPath(outputDir, req.AudioPath)
	result, err := LoadFile(jsonPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Transcript{}, services.Wrap(services.ErrExternalTool, stage, "whisperx", "no json output produced", err)
		}
		return Transcript{}, services.Wrap(services.ErrExternalTool, stage, "parse whisperx output", "", err)
	}
	if result.Language == "" {
		result.Language = langpkg.ToISO2(req.Language)
	}
	return result, nil
}

// OutputPath returns where WhisperX writes its JSON for audioPath.
func OutputPath(outputDir, audioPath string) string {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(outputDir, base+".json")
}

func classifyRunError(ctx context.Context, runErr error, tail string) error {
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, stage, "whisperx", "deadline exceeded", ctxErr)
	case errors.Is(ctxErr, context.Canceled):
		return services.Wrap(services.ErrCancelled, stage, "whisperx", "cancelled", ctxErr)
	}
	msg := "whisperx failed"
	if tail != "" {
		msg = tail
	}
	return services.Wrap(services.ErrExternalTool, stage, "whisperx", msg, runErr)
}

// buildArgs constructs the uvx command arguments for WhisperX.
func (s *Service) buildArgs(req Request, outputDir string) []string {
	args := make([]string, 0, 40)

	if s.cfg.CUDAEnabled {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	batch := s.cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	args = append(args,
		"whisperx",
		req.AudioPath,
		"--model", modelOrDefault(req.Model),
		"--batch_size", strconv.Itoa(batch),
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
		"--print_progress", "True",
	)

	vadMethod := s.cfg.VADMethod
	if vadMethod == "" {
		vadMethod = VADMethodSilero
	}
	args = append(args, "--vad_method", vadMethod)
	if (vadMethod == VADMethodPyannote || req.Diarize) && s.cfg.HFToken != "" {
		args = append(args, "--hf_token", s.cfg.HFToken)
	}

	if lang := langpkg.ToISO2(req.Language); lang != "" {
		args = append(args, "--language", lang)
	}

	device, computeType := s.Device()
	args = append(args, "--device", device, "--compute_type", computeType)

	if req.Diarize {
		args = append(args, "--diarize")
		if s.cfg.MinSpeakers > 0 {
			args = append(args, "--min_speakers", strconv.Itoa(s.cfg.MinSpeakers))
		}
		if s.cfg.MaxSpeakers > 0 {
			args = append(args, "--max_speakers", strconv.Itoa(s.cfg.MaxSpeakers))
		}
	}
	return args
}

func modelOrDefault(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return DefaultModel
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// lineTail keeps the last n lines written to it.
type lineTail struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newLineTail(n int) *lineTail {
	return &lineTail{max: n}
}

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
