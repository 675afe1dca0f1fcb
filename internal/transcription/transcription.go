package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/media"
	"scribe/internal/media/ffprobe"
	"scribe/internal/progress"
	"scribe/internal/services"
	"scribe/internal/services/pyannote"
	"scribe/internal/services/whisperx"
	"scribe/internal/transcript"
)

// Request describes the input of one transcription.
type Request struct {
	SourcePath string
	WorkDir    string
	Model      string
	Language   string
	Diarize    bool
}

// Output is the raw recognizer and diarizer output for one input.
type Output struct {
	Segments []transcript.Segment
	Turns    []transcript.Turn
	Language string
	// Duration is the probed media duration in seconds, 0 when unknown.
	Duration float64
}

// Transcriber turns a media file into timed segments and speaker turns.
// Progress is reported through sink as (percent, message) pairs.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request, sink progress.Sink) (Output, error)
}

// Extractor prepares recognizer input from arbitrary media.
type Extractor interface {
	Prepare(ctx context.Context, source, workDir string) (string, bool, error)
	Probe(ctx context.Context, source string) (ffprobe.Result, error)
}

// Recognizer performs speech recognition.
type Recognizer interface {
	Transcribe(ctx context.Context, req whisperx.Request, sink progress.Sink) (whisperx.Transcript, error)
}

// Diarizer produces speaker turns from an audio file.
type Diarizer interface {
	Enabled() bool
	Diarize(ctx context.Context, audioPath string) ([]transcript.Turn, error)
}

// Service composes extraction, recognition and diarization.
type Service struct {
	extractor  Extractor
	recognizer Recognizer
	diarizer   Diarizer
	logger     *slog.Logger
}

// NewService wires the collaborators. diarizer may be nil, in which case the
// recognizer diarizes when asked to.
func NewService(extractor Extractor, recognizer Recognizer, diarizer Diarizer, logger *slog.Logger) *Service {
	return &Service{
		extractor:  extractor,
		recognizer: recognizer,
		diarizer:   diarizer,
		logger:     logging.NewComponentLogger(logger, "transcription"),
	}
}

// New builds the production pipeline: ffmpeg extraction, WhisperX via uvx and
// the pyannote sidecar when one is configured.
func New(cfg *config.Config, logger *slog.Logger) *Service {
	recognizer := whisperx.NewService(
		whisperx.ConfigFrom(cfg),
		whisperx.WithProgressTable(progress.FromConfig(cfg.Progress.Milestones)),
		whisperx.WithLogger(logging.NewComponentLogger(logger, "whisperx")),
	)
	var diarizer Diarizer
	if client := pyannote.NewClient(pyannote.ConfigFrom(cfg)); client.Enabled() {
		diarizer = client
	}
	return NewService(media.NewExtractor(cfg.Media), recognizer, diarizer, logger)
}

// Transcribe runs the pipeline for one request.
func (s *Service) Transcribe(ctx context.Context, req Request, sink progress.Sink) (Output, error) {
	if sink == nil {
		sink = progress.Discard
	}
	if strings.TrimSpace(req.SourcePath) == "" {
		return Output{}, fmt.Errorf("%w: source path required", services.ErrValidation)
	}
	logger := logging.WithContext(ctx, s.logger)

	sink(10, "Preparing audio")
	audioPath := req.SourcePath
	if s.extractor != nil {
		prepared, extracted, err := s.extractor.Prepare(ctx, req.SourcePath, req.WorkDir)
		if err != nil {
			return Output{}, err
		}
		audioPath = prepared
		if extracted {
			sink(15, "Audio extracted")
			logger.Debug("audio extracted", logging.String("audio_path", audioPath))
		}
	}

	var duration float64
	if s.extractor != nil {
		if probe, err := s.extractor.Probe(ctx, audioPath); err != nil {
			logger.Debug("duration probe failed; using transcript extent", logging.Error(err))
		} else {
			duration = probe.DurationSeconds()
		}
	}

	sidecar := req.Diarize && s.diarizer != nil && s.diarizer.Enabled()
	recognized, err := s.recognizer.Transcribe(ctx, whisperx.Request{
		AudioPath: audioPath,
		OutputDir: req.WorkDir,
		Model:     req.Model,
		Language:  req.Language,
		Diarize:   req.Diarize && !sidecar,
	}, sink)
	if err != nil {
		return Output{}, err
	}

	out := Output{
		Segments: recognized.Segments,
		Language: recognized.Language,
		Duration: duration,
	}
	if out.Language == "" {
		out.Language = req.Language
	}

	switch {
	case !req.Diarize:
	case sidecar:
		sink(80, "Diarization")
		turns, err := s.diarizer.Diarize(ctx, audioPath)
		if err != nil {
			return Output{}, err
		}
		out.Turns = turns
	default:
		out.Turns = recognized.Turns
	}

	logger.Debug("transcription finished",
		logging.Int("segments", len(out.Segments)),
		logging.Int("turns", len(out.Turns)),
		logging.Bool("sidecar_diarization", sidecar),
	)
	return out, nil
}
