package whisperx

import "scribe/internal/config"

// Config captures runtime settings for WhisperX invocations.
type Config struct {
	// CUDAEnabled selects the CUDA wheel index and device.
	CUDAEnabled bool
	// VADMethod selects the voice activity detection method ("silero" or "pyannote").
	VADMethod string
	// ComputeType is passed to --compute_type (int8, float16, float32).
	ComputeType string
	// BatchSize is passed to --batch_size.
	BatchSize int
	// HFToken is the Hugging Face token for pyannote VAD and diarization.
	HFToken string
	// MinSpeakers and MaxSpeakers bound built-in diarization when positive.
	MinSpeakers int
	MaxSpeakers int
}

// ConfigFrom extracts the WhisperX settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		CUDAEnabled: cfg.Transcription.WhisperXCUDAEnabled,
		VADMethod:   cfg.Transcription.WhisperXVADMethod,
		ComputeType: cfg.Transcription.WhisperXComputeType,
		BatchSize:   cfg.Transcription.WhisperXBatchSize,
		HFToken:     cfg.Transcription.HuggingFaceToken,
		MinSpeakers: cfg.Diarization.MinSpeakers,
		MaxSpeakers: cfg.Diarization.MaxSpeakers,
	}
}

// WhisperX configuration constants.
const (
	DefaultModel      = "medium"
	CUDAIndexURL      = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL      = "https://pypi.org/simple"
	DefaultBatchSize  = 16
	SegmentResolution = "sentence"
	OutputFormat      = "json"
	CPUDevice         = "cpu"
	CUDADevice        = "cuda"
	CPUComputeType    = "int8"
	CUDAComputeType   = "float16"
	VADMethodPyannote = "pyannote"
	VADMethodSilero   = "silero"
)

// UVXCommand launches WhisperX in an isolated environment.
const UVXCommand = "uvx"
