package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"scribe/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("HF_TOKEN", "hf-env")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantOutput := filepath.Join(tempHome, ".local", "share", "scribe", "results")
	if cfg.Paths.OutputDir != wantOutput {
		t.Fatalf("unexpected output dir: got %q want %q", cfg.Paths.OutputDir, wantOutput)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Transcription.HuggingFaceToken != "hf-env" {
		t.Fatalf("expected HF token from env, got %q", cfg.Transcription.HuggingFaceToken)
	}
	if cfg.Transcription.DefaultModel != "medium" || cfg.Transcription.DefaultLanguage != "pt" {
		t.Fatalf("unexpected transcription defaults: %+v", cfg.Transcription)
	}
	if !cfg.Transcription.DiarizationDefault {
		t.Fatal("expected diarization enabled by default")
	}
	if cfg.Jobs.MaxConcurrent != 2 || cfg.JobTimeout() != time.Hour {
		t.Fatalf("unexpected job limits: %+v", cfg.Jobs)
	}
	if cfg.MaxFileSizeBytes() != 500*1024*1024 {
		t.Fatalf("unexpected max file size %d", cfg.MaxFileSizeBytes())
	}
	if cfg.Media.SampleRate != 16000 || cfg.Media.Channels != 1 {
		t.Fatalf("unexpected media defaults: %+v", cfg.Media)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.UploadDir, cfg.Paths.WorkDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
	}
	if filepath.Dir(cfg.HistoryDBPath()) != cfg.Paths.StateDir {
		t.Fatalf("unexpected history path %q", cfg.HistoryDBPath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "scribe.toml")

	type payload struct {
		Transcription struct {
			DefaultModel    string   `toml:"default_model"`
			DefaultLanguage string   `toml:"default_language"`
			Languages       []string `toml:"languages"`
		} `toml:"transcription"`
		Media struct {
			Extensions      []string `toml:"extensions"`
			VideoExtensions []string `toml:"video_extensions"`
		} `toml:"media"`
		Jobs struct {
			MaxConcurrent int `toml:"max_concurrent"`
		} `toml:"jobs"`
		Progress struct {
			Milestones []config.Milestone `toml:"milestones"`
		} `toml:"progress"`
	}
	custom := payload{}
	custom.Transcription.DefaultModel = "Small"
	custom.Transcription.DefaultLanguage = "en"
	custom.Transcription.Languages = []string{"EN", "en", " de "}
	custom.Media.Extensions = []string{"WAV", ".mkv"}
	custom.Media.VideoExtensions = []string{"mkv"}
	custom.Jobs.MaxConcurrent = 4
	custom.Progress.Milestones = []config.Milestone{{Phrase: " Performing VAD ", Percent: 25}, {Phrase: "", Percent: 10}}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution %q exists=%v", resolved, exists)
	}
	if cfg.Transcription.DefaultModel != "small" {
		t.Fatalf("expected lower-cased model, got %q", cfg.Transcription.DefaultModel)
	}
	if got := cfg.Transcription.Languages; len(got) != 2 || got[0] != "en" || got[1] != "de" {
		t.Fatalf("unexpected languages %v", got)
	}
	if !cfg.AllowedExtension(".WAV") || !cfg.IsVideoExtension(".mkv") || cfg.AllowedExtension(".mp3") {
		t.Fatalf("unexpected extension lists %v / %v", cfg.Media.Extensions, cfg.Media.VideoExtensions)
	}
	if cfg.Jobs.MaxConcurrent != 4 {
		t.Fatalf("expected max_concurrent 4, got %d", cfg.Jobs.MaxConcurrent)
	}
	if len(cfg.Progress.Milestones) != 1 || cfg.Progress.Milestones[0].Phrase != "Performing VAD" {
		t.Fatalf("unexpected milestones %+v", cfg.Progress.Milestones)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "scribe.toml")
	if err := os.WriteFile(configPath, []byte("[jobs]\nmax_concurent = 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := config.Load(configPath); err == nil || !strings.Contains(err.Error(), "max_concurent") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.OutputDir, "scribe") {
		t.Fatalf("expected output dir to contain scribe, got %q", cfg.Paths.OutputDir)
	}

	loaded, _, exists, err := config.Load(path)
	if err != nil || !exists {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
	if loaded.Jobs.MaxConcurrent != 2 {
		t.Fatalf("unexpected max_concurrent %d", loaded.Jobs.MaxConcurrent)
	}
}

func TestEncodeRedactsSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Transcription.HuggingFaceToken = "hf_secret"
	cfg.Paths.APIToken = "api_secret"
	data, err := cfg.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") {
		t.Fatalf("expected secrets redacted, got %s", data)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"model not allowed", func(c *config.Config) { c.Transcription.DefaultModel = "huge" }},
		{"bad language tag", func(c *config.Config) { c.Transcription.Languages = append(c.Transcription.Languages, "not a tag") }},
		{"language not allowed", func(c *config.Config) { c.Transcription.DefaultLanguage = "ru" }},
		{"vad method", func(c *config.Config) { c.Transcription.WhisperXVADMethod = "webrtc" }},
		{"zero concurrency", func(c *config.Config) { c.Jobs.MaxConcurrent = 0 }},
		{"missing required format", func(c *config.Config) { c.Jobs.Formats = []string{"txt", "json"} }},
		{"unknown format", func(c *config.Config) { c.Jobs.Formats = []string{"txt", "json", "srt", "docx"} }},
		{"video not in extensions", func(c *config.Config) { c.Media.VideoExtensions = []string{".flv"} }},
		{"milestone percent", func(c *config.Config) {
			c.Progress.Milestones = []config.Milestone{{Phrase: "x", Percent: 120}}
		}},
		{"speaker bounds", func(c *config.Config) { c.Diarization.MinSpeakers, c.Diarization.MaxSpeakers = 4, 2 }},
		{"pyannote url", func(c *config.Config) { c.Diarization.PyannoteURL = "localhost" }},
		{"watch without dir", func(c *config.Config) { c.Watch.Enabled = true }},
		{"bind address", func(c *config.Config) { c.Paths.APIBind = "7490" }},
		{"log level", func(c *config.Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
