package pyannote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"scribe/internal/config"
	"scribe/internal/services"
	"scribe/internal/transcript"
)

const (
	stage          = "diarize"
	defaultTimeout = 30 * time.Minute
)

// Config holds the sidecar connection settings.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MinSpeakers int
	MaxSpeakers int
}

// ConfigFrom extracts the [diarization] section.
func ConfigFrom(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		BaseURL:     cfg.Diarization.PyannoteURL,
		Timeout:     time.Duration(cfg.Diarization.TimeoutSeconds) * time.Second,
		MinSpeakers: cfg.Diarization.MinSpeakers,
		MaxSpeakers: cfg.Diarization.MaxSpeakers,
	}
}

// Client talks to a pyannote diarization sidecar over HTTP.
type Client struct {
	cfg    Config
	client *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.client = c
		}
	}
}

// NewClient creates a sidecar client. The caller checks Enabled before use.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether a sidecar URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.BaseURL != ""
}

// Health checks that the sidecar answers GET /health with 200.
func (c *Client) Health(ctx context.Context) error {
	if !c.Enabled() {
		return fmt.Errorf("%w: pyannote url not configured", services.ErrConfiguration)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, stage, "health", "sidecar unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrExternalTool, stage, "health", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	return nil
}

// Diarize uploads audioPath and returns the speaker turns. The file is
// streamed rather than buffered.
func (c *Client) Diarize(ctx context.Context, audioPath string) ([]transcript.Turn, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%w: pyannote url not configured", services.ErrConfiguration)
	}
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, stage, "open audio", "", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(c.writeForm(writer, file, filepath.Base(audioPath)))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/diarize", pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("build diarize request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		_ = pr.Close()
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, stage, "pyannote", "deadline exceeded", ctxErr)
		}
		return nil, services.Wrap(services.ErrExternalTool, stage, "pyannote", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, services.Wrap(services.ErrExternalTool, stage, "pyannote",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	return decodeTurns(resp.Body)
}

func (c *Client) writeForm(writer *multipart.Writer, file io.Reader, name string) error {
	part, err := writer.CreateFormFile("audio", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if c.cfg.MinSpeakers > 0 {
		if err := writer.WriteField("min_speakers", strconv.Itoa(c.cfg.MinSpeakers)); err != nil {
			return err
		}
	}
	if c.cfg.MaxSpeakers > 0 {
		if err := writer.WriteField("max_speakers", strconv.Itoa(c.cfg.MaxSpeakers)); err != nil {
			return err
		}
	}
	return writer.Close()
}

type response struct {
	Segments    []segment `json:"segments"`
	NumSpeakers int       `json:"num_speakers"`
	Error       string    `json:"error,omitempty"`
}

// segment accepts both the speaker_id/start_time/end_time and the
// speaker/start/end spellings.
type segment struct {
	SpeakerID string   `json:"speaker_id"`
	Speaker   string   `json:"speaker"`
	StartTime *float64 `json:"start_time"`
	EndTime   *float64 `json:"end_time"`
	Start     *float64 `json:"start"`
	End       *float64 `json:"end"`
}

func decodeTurns(r io.Reader) ([]transcript.Turn, error) {
	var payload response
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stage, "decode response", "", err)
	}
	if payload.Error != "" {
		return nil, services.Wrap(services.ErrExternalTool, stage, "pyannote", payload.Error, nil)
	}
	turns := make([]transcript.Turn, 0, len(payload.Segments))
	for _, seg := range payload.Segments {
		speaker := strings.TrimSpace(seg.SpeakerID)
		if speaker == "" {
			speaker = strings.TrimSpace(seg.Speaker)
		}
		start, okStart := pick(seg.StartTime, seg.Start)
		end, okEnd := pick(seg.EndTime, seg.End)
		if speaker == "" || !okStart || !okEnd || end <= start {
			continue
		}
		turns = append(turns, transcript.Turn{Start: start, End: end, Speaker: speaker})
	}
	return turns, nil
}

func pick(values ...*float64) (float64, bool) {
	for _, v := range values {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}
