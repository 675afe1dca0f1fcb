package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/text/language"
)

var validFormats = map[string]struct{}{"txt": {}, "json": {}, "srt": {}, "vtt": {}}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateDiarization(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateProgress(); err != nil {
		return err
	}
	if c.Watch.Enabled && c.Watch.Dir == "" {
		return errors.New("watch.dir must be set when watch.enabled is true")
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateTranscription() error {
	t := c.Transcription
	if !containsFold(t.Models, t.DefaultModel) {
		return fmt.Errorf("transcription.default_model %q is not listed in transcription.models", t.DefaultModel)
	}
	for _, lang := range t.Languages {
		if _, err := language.Parse(lang); err != nil {
			return fmt.Errorf("transcription.languages: %q is not a valid language tag", lang)
		}
	}
	if !containsFold(t.Languages, t.DefaultLanguage) {
		return fmt.Errorf("transcription.default_language %q is not listed in transcription.languages", t.DefaultLanguage)
	}
	switch t.WhisperXVADMethod {
	case "pyannote", "silero":
	default:
		return fmt.Errorf("transcription.whisperx_vad_method must be pyannote or silero, got %q", t.WhisperXVADMethod)
	}
	return nil
}

func (c *Config) validateDiarization() error {
	d := c.Diarization
	if d.PyannoteURL != "" {
		parsed, err := url.Parse(d.PyannoteURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("diarization.pyannote_url %q must be an absolute http(s) URL", d.PyannoteURL)
		}
	}
	if d.MinSpeakers < 0 || d.MaxSpeakers < 0 {
		return errors.New("diarization.min_speakers and diarization.max_speakers must be >= 0")
	}
	if d.MaxSpeakers > 0 && d.MinSpeakers > d.MaxSpeakers {
		return errors.New("diarization.min_speakers must not exceed diarization.max_speakers")
	}
	return nil
}

func (c *Config) validateMedia() error {
	for _, ext := range c.Media.VideoExtensions {
		if !containsFold(c.Media.Extensions, ext) {
			return fmt.Errorf("media.video_extensions: %q is not listed in media.extensions", ext)
		}
	}
	if c.Media.Channels > 2 {
		return errors.New("media.channels must be 1 or 2")
	}
	return nil
}

func (c *Config) validateJobs() error {
	if err := ensurePositiveMap(map[string]int{
		"jobs.max_concurrent":         c.Jobs.MaxConcurrent,
		"jobs.timeout_seconds":        c.Jobs.TimeoutSeconds,
		"jobs.max_records":            c.Jobs.MaxRecords,
		"jobs.sweep_interval_seconds": c.Jobs.SweepIntervalSeconds,
	}); err != nil {
		return err
	}
	if c.Jobs.MaxRecords < c.Jobs.MaxConcurrent {
		return errors.New("jobs.max_records must be at least jobs.max_concurrent")
	}
	for _, f := range c.Jobs.Formats {
		if _, ok := validFormats[f]; !ok {
			return fmt.Errorf("jobs.formats: unsupported format %q", f)
		}
	}
	for _, required := range []string{"txt", "json", "srt"} {
		if !containsFold(c.Jobs.Formats, required) {
			return fmt.Errorf("jobs.formats must include %q", required)
		}
	}
	return nil
}

func (c *Config) validateProgress() error {
	for i, m := range c.Progress.Milestones {
		if m.Percent < 0 || m.Percent > 100 {
			return fmt.Errorf("progress.milestones[%d] (%q): percent must be between 0 and 100", i, m.Phrase)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", strings.TrimSpace(c.Logging.Level))
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
