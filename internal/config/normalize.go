package config

import (
	"fmt"
	"os"
	"strings"

	"scribe/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscription()
	c.normalizeDiarization()
	c.normalizeMedia()
	c.normalizeJobs()
	c.normalizeProgress()
	if err := c.normalizeWatch(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.output_dir", &c.Paths.OutputDir, defaultOutputDir},
		{"paths.upload_dir", &c.Paths.UploadDir, defaultUploadDir},
		{"paths.work_dir", &c.Paths.WorkDir, defaultWorkDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("SCRIBE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	t := &c.Transcription
	t.Models = normalizeList(t.Models, strings.ToLower, defaultModels)
	t.Languages = normalizeList(t.Languages, normalizeLanguage, defaultLanguages)
	t.DefaultModel = strings.ToLower(strings.TrimSpace(t.DefaultModel))
	if t.DefaultModel == "" {
		t.DefaultModel = defaultModel
	}
	t.DefaultLanguage = normalizeLanguage(t.DefaultLanguage)
	if t.DefaultLanguage == "" {
		t.DefaultLanguage = defaultLanguage
	}
	t.WhisperXVADMethod = strings.ToLower(strings.TrimSpace(t.WhisperXVADMethod))
	if t.WhisperXVADMethod == "" {
		t.WhisperXVADMethod = defaultVADMethod
	}
	t.WhisperXComputeType = strings.ToLower(strings.TrimSpace(t.WhisperXComputeType))
	if t.WhisperXComputeType == "" || (t.WhisperXCUDAEnabled && t.WhisperXComputeType == defaultCPUComputeType) {
		if t.WhisperXCUDAEnabled {
			t.WhisperXComputeType = defaultComputeType
		} else {
			t.WhisperXComputeType = defaultCPUComputeType
		}
	}
	if t.WhisperXBatchSize <= 0 {
		t.WhisperXBatchSize = defaultBatchSize
	}
	t.HuggingFaceToken = strings.TrimSpace(t.HuggingFaceToken)
	if t.HuggingFaceToken == "" {
		if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			t.HuggingFaceToken = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HUGGING_FACE_HUB_TOKEN"); ok {
			t.HuggingFaceToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeDiarization() {
	c.Diarization.PyannoteURL = strings.TrimRight(strings.TrimSpace(c.Diarization.PyannoteURL), "/")
	if c.Diarization.TimeoutSeconds <= 0 {
		c.Diarization.TimeoutSeconds = defaultDiarizationTimeout
	}
}

func (c *Config) normalizeMedia() {
	c.Media.FFmpegBinary = strings.TrimSpace(c.Media.FFmpegBinary)
	if c.Media.FFmpegBinary == "" {
		c.Media.FFmpegBinary = defaultFFmpegBinary
	}
	c.Media.FFprobeBinary = strings.TrimSpace(c.Media.FFprobeBinary)
	if c.Media.FFprobeBinary == "" {
		c.Media.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Media.SampleRate <= 0 {
		c.Media.SampleRate = defaultSampleRate
	}
	if c.Media.Channels <= 0 {
		c.Media.Channels = defaultChannels
	}
	c.Media.Extensions = normalizeList(c.Media.Extensions, normalizeExtension, defaultExtensions)
	c.Media.VideoExtensions = normalizeList(c.Media.VideoExtensions, normalizeExtension, defaultVideoExtensions)
	if c.Media.MaxFileSizeMB <= 0 {
		c.Media.MaxFileSizeMB = defaultMaxFileSizeMB
	}
}

func (c *Config) normalizeJobs() {
	if c.Jobs.MaxConcurrent <= 0 {
		c.Jobs.MaxConcurrent = defaultMaxConcurrentJobs
	}
	if c.Jobs.TimeoutSeconds <= 0 {
		c.Jobs.TimeoutSeconds = defaultJobTimeoutSeconds
	}
	if c.Jobs.MaxRecords <= 0 {
		c.Jobs.MaxRecords = defaultMaxRecords
	}
	if c.Jobs.TerminalTTLHours < 0 {
		c.Jobs.TerminalTTLHours = 0
	}
	if c.Jobs.SweepIntervalSeconds <= 0 {
		c.Jobs.SweepIntervalSeconds = defaultSweepIntervalSeconds
	}
	c.Jobs.Formats = normalizeList(c.Jobs.Formats, func(v string) string {
		return strings.TrimPrefix(strings.ToLower(v), ".")
	}, defaultFormats)
}

func (c *Config) normalizeProgress() {
	milestones := c.Progress.Milestones[:0]
	for _, m := range c.Progress.Milestones {
		m.Phrase = strings.TrimSpace(m.Phrase)
		if m.Phrase == "" {
			continue
		}
		milestones = append(milestones, m)
	}
	c.Progress.Milestones = milestones
}

func (c *Config) normalizeWatch() error {
	c.Watch.Dir = strings.TrimSpace(c.Watch.Dir)
	if c.Watch.Dir != "" {
		expanded, err := expandPath(c.Watch.Dir)
		if err != nil {
			return fmt.Errorf("watch.dir: %w", err)
		}
		c.Watch.Dir = expanded
	}
	if c.Watch.SettleSeconds <= 0 {
		c.Watch.SettleSeconds = defaultWatchSettleSeconds
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("SCRIBE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func normalizeExtension(value string) string {
	value = strings.ToLower(value)
	if !strings.HasPrefix(value, ".") {
		value = "." + value
	}
	return value
}

// normalizeList trims, transforms, and de-duplicates values, falling back to
// defaults when nothing usable remains.
func normalizeList(values []string, transform func(string) string, fallback []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		v = transform(v)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

// normalizeLanguage maps codes and names ("por", "pt-BR", "Portuguese") to
// their two-letter form, leaving unrecognized values for Validate to reject.
func normalizeLanguage(value string) string {
	if code := language.ToISO2(value); code != "" {
		return code
	}
	return strings.ToLower(strings.TrimSpace(value))
}
