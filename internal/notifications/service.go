package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
)

const userAgent = "scribe/0.1.0"

// Event identifies a notification-worthy workflow milestone.
type Event string

const (
	EventJobCompleted   Event = "job_completed"
	EventJobFailed      Event = "job_failed"
	EventBatchCompleted Event = "batch_completed"
	EventTest           Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]string

func (p Payload) get(key string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p[key])
}

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		failed:    cfg.Notifications.Failed,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	failed    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobCompleted:
		if !n.completed {
			return message{}, false
		}
		body := fmt.Sprintf("✅ Transcribed: %s", fallback(payload.get("filename"), "unknown file"))
		if speakers := payload.get("speakers"); speakers != "" {
			body += fmt.Sprintf("\nSpeakers: %s", speakers)
		}
		if duration := payload.get("duration"); duration != "" {
			body += fmt.Sprintf("\nDuration: %s", duration)
		}
		return message{
			title: "Scribe - Transcript Ready",
			body:  body,
			tags:  []string{"scribe", "transcript", "completed"},
		}, true
	case EventJobFailed:
		if !n.failed {
			return message{}, false
		}
		body := fmt.Sprintf("❌ Transcription failed: %s", fallback(payload.get("filename"), "unknown file"))
		if errText := payload.get("error"); errText != "" {
			body += "\n" + errText
		}
		return message{
			title:    "Scribe - Transcription Failed",
			body:     body,
			tags:     []string{"scribe", "error", fallback(payload.get("kind"), "alert")},
			priority: "high",
		}, true
	case EventBatchCompleted:
		processed := fallback(payload.get("processed"), "0")
		failed := fallback(payload.get("failed"), "0")
		title := "Scribe - Batch Complete"
		body := fmt.Sprintf("Batch complete: %s transcribed", processed)
		if failed != "0" {
			title = "Scribe - Batch Complete (with errors)"
			body = fmt.Sprintf("Batch complete: %s transcribed, %s failed", processed, failed)
		}
		if duration := payload.get("duration"); duration != "" {
			body += " in " + duration
		}
		return message{
			title: title,
			body:  body,
			tags:  []string{"scribe", "batch", "completed"},
		}, true
	case EventTest:
		return message{
			title:    "Scribe - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"scribe", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
