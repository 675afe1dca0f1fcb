package config

const (
	defaultConfigPath           = "~/.config/scribe/config.toml"
	defaultOutputDir            = "~/.local/share/scribe/results"
	defaultUploadDir            = "~/.local/share/scribe/uploads"
	defaultWorkDir              = "~/.cache/scribe/work"
	defaultStateDir             = "~/.local/share/scribe"
	defaultLogDir               = "~/.local/share/scribe/logs"
	defaultAPIBind              = "127.0.0.1:7490"
	defaultModel                = "medium"
	defaultLanguage             = "pt"
	defaultVADMethod            = "pyannote"
	defaultComputeType          = "float16"
	defaultCPUComputeType       = "int8"
	defaultBatchSize            = 16
	defaultFFmpegBinary         = "ffmpeg"
	defaultFFprobeBinary        = "ffprobe"
	defaultSampleRate           = 16000
	defaultChannels             = 1
	defaultMaxFileSizeMB        = 500
	defaultMaxConcurrentJobs    = 2
	defaultJobTimeoutSeconds    = 3600
	defaultMaxRecords           = 1000
	defaultTerminalTTLHours     = 72
	defaultSweepIntervalSeconds = 300
	defaultDiarizationTimeout   = 1800
	defaultNotifyTimeout        = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultWatchSettleSeconds   = 5
)

var (
	defaultModels          = []string{"tiny", "base", "small", "medium", "large", "large-v2", "large-v3"}
	defaultLanguages       = []string{"pt", "en", "es", "fr", "de", "it", "ja", "ko", "zh"}
	defaultExtensions      = []string{".mp3", ".wav", ".flac", ".m4a", ".aac", ".ogg", ".mp4", ".avi", ".mkv", ".mov", ".wmv", ".webm"}
	defaultVideoExtensions = []string{".mp4", ".avi", ".mkv", ".mov", ".wmv", ".webm"}
	defaultFormats         = []string{"txt", "json", "srt", "vtt"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			UploadDir: defaultUploadDir,
			WorkDir:   defaultWorkDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Transcription: Transcription{
			DefaultModel:        defaultModel,
			Models:              append([]string(nil), defaultModels...),
			DefaultLanguage:     defaultLanguage,
			Languages:           append([]string(nil), defaultLanguages...),
			DiarizationDefault:  true,
			WhisperXVADMethod:   defaultVADMethod,
			WhisperXComputeType: defaultCPUComputeType,
			WhisperXBatchSize:   defaultBatchSize,
		},
		Diarization: Diarization{
			TimeoutSeconds: defaultDiarizationTimeout,
		},
		Media: Media{
			FFmpegBinary:    defaultFFmpegBinary,
			FFprobeBinary:   defaultFFprobeBinary,
			SampleRate:      defaultSampleRate,
			Channels:        defaultChannels,
			Extensions:      append([]string(nil), defaultExtensions...),
			VideoExtensions: append([]string(nil), defaultVideoExtensions...),
			MaxFileSizeMB:   defaultMaxFileSizeMB,
		},
		Jobs: Jobs{
			MaxConcurrent:        defaultMaxConcurrentJobs,
			TimeoutSeconds:       defaultJobTimeoutSeconds,
			MaxRecords:           defaultMaxRecords,
			TerminalTTLHours:     defaultTerminalTTLHours,
			SweepIntervalSeconds: defaultSweepIntervalSeconds,
			Formats:              append([]string(nil), defaultFormats...),
		},
		Watch: Watch{
			SettleSeconds: defaultWatchSettleSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completed:      true,
			Failed:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
