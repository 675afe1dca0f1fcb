package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	UploadDir string `toml:"upload_dir"`
	WorkDir   string `toml:"work_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Transcription contains speech recognition defaults and allow-lists.
type Transcription struct {
	DefaultModel        string   `toml:"default_model"`
	Models              []string `toml:"models"`
	DefaultLanguage     string   `toml:"default_language"`
	Languages           []string `toml:"languages"`
	DiarizationDefault  bool     `toml:"diarization_default"`
	WhisperXCUDAEnabled bool     `toml:"whisperx_cuda_enabled"`
	WhisperXVADMethod   string   `toml:"whisperx_vad_method"`
	WhisperXComputeType string   `toml:"whisperx_compute_type"`
	WhisperXBatchSize   int      `toml:"whisperx_batch_size"`
	HuggingFaceToken    string   `toml:"hf_token"`
}

// Diarization configures the optional pyannote sidecar. When PyannoteURL is
// empty, WhisperX performs diarization itself.
type Diarization struct {
	PyannoteURL    string `toml:"pyannote_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MinSpeakers    int    `toml:"min_speakers"`
	MaxSpeakers    int    `toml:"max_speakers"`
}

// Media contains input validation and audio extraction settings.
type Media struct {
	FFmpegBinary    string   `toml:"ffmpeg_binary"`
	FFprobeBinary   string   `toml:"ffprobe_binary"`
	SampleRate      int      `toml:"sample_rate"`
	Channels        int      `toml:"channels"`
	Extensions      []string `toml:"extensions"`
	VideoExtensions []string `toml:"video_extensions"`
	MaxFileSizeMB   int64    `toml:"max_file_size_mb"`
}

// Jobs contains scheduling and retention limits for the job store.
type Jobs struct {
	MaxConcurrent        int      `toml:"max_concurrent"`
	TimeoutSeconds       int      `toml:"timeout_seconds"`
	MaxRecords           int      `toml:"max_records"`
	TerminalTTLHours     int      `toml:"terminal_ttl_hours"`
	SweepIntervalSeconds int      `toml:"sweep_interval_seconds"`
	Formats              []string `toml:"formats"`
}

// Milestone maps a phrase seen in transcriber output to a progress percent.
type Milestone struct {
	Phrase  string  `toml:"phrase"`
	Percent float64 `toml:"percent"`
}

// Progress holds the milestone table. An empty table uses built-in phrases.
type Progress struct {
	Milestones []Milestone `toml:"milestones"`
}

// Watch configures the folder that auto-submits new media files.
type Watch struct {
	Enabled       bool   `toml:"enabled"`
	Dir           string `toml:"dir"`
	SettleSeconds int    `toml:"settle_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for scribe.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - Transcription: WhisperX defaults, model and language allow-lists
//   - Diarization: pyannote sidecar
//   - Media: accepted inputs and ffmpeg extraction
//   - Jobs: concurrency, timeout, and store retention
//   - Progress: milestone phrases
//   - Watch: ingest folder
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Diarization   Diarization   `toml:"diarization"`
	Media         Media         `toml:"media"`
	Jobs          Jobs          `toml:"jobs"`
	Progress      Progress      `toml:"progress"`
	Watch         Watch         `toml:"watch"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.OutputDir, c.Paths.UploadDir, c.Paths.WorkDir, c.Paths.StateDir, c.Paths.LogDir}
	if c.Watch.Enabled {
		dirs = append(dirs, c.Watch.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HistoryDBPath returns the SQLite archive location.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "scribe.lock")
}

// JobTimeout returns the per-job execution limit.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Jobs.TimeoutSeconds) * time.Second
}

// TerminalTTL returns how long finished jobs stay in memory. Zero disables expiry.
func (c *Config) TerminalTTL() time.Duration {
	return time.Duration(c.Jobs.TerminalTTLHours) * time.Hour
}

// SweepInterval returns how often expired jobs are pruned.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Jobs.SweepIntervalSeconds) * time.Second
}

// MaxFileSizeBytes returns the upload limit in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return c.Media.MaxFileSizeMB * 1024 * 1024
}

// AllowedExtension reports whether ext (with leading dot) is accepted.
func (c *Config) AllowedExtension(ext string) bool {
	return containsFold(c.Media.Extensions, ext)
}

// IsVideoExtension reports whether ext needs audio extraction first.
func (c *Config) IsVideoExtension(ext string) bool {
	return containsFold(c.Media.VideoExtensions, ext)
}

// AllowedModel reports whether model is in the allow-list.
func (c *Config) AllowedModel(model string) bool {
	return containsFold(c.Transcription.Models, model)
}

// AllowedLanguage reports whether lang is in the allow-list.
func (c *Config) AllowedLanguage(lang string) bool {
	return containsFold(c.Transcription.Languages, normalizeLanguage(lang))
}

func containsFold(values []string, value string) bool {
	value = strings.TrimSpace(value)
	for _, v := range values {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	redacted := *c
	if redacted.Transcription.HuggingFaceToken != "" {
		redacted.Transcription.HuggingFaceToken = "<redacted>"
	}
	if redacted.Paths.APIToken != "" {
		redacted.Paths.APIToken = "<redacted>"
	}
	return toml.Marshal(redacted)
}
