package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEvent is one log record as served by the daemon's /api/logs endpoint.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	JobID         string            `json:"job_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// StreamHub keeps the most recent log events in a ring and lets readers
// page through them by sequence number.
type StreamHub struct {
	mu      sync.Mutex
	ring    []LogEvent
	start   int // index of the oldest event
	count   int
	lastSeq uint64
	// changed is closed and replaced on every Publish.
	changed chan struct{}
}

// NewStreamHub returns a hub holding at most capacity events.
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 1000
	}
	return &StreamHub{
		ring:    make([]LogEvent, capacity),
		changed: make(chan struct{}),
	}
}

// Publish stores evt, evicting the oldest event when the ring is full.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	h.lastSeq++
	evt.Sequence = h.lastSeq
	if h.count < len(h.ring) {
		h.ring[(h.start+h.count)%len(h.ring)] = evt
		h.count++
	} else {
		h.ring[h.start] = evt
		h.start = (h.start + 1) % len(h.ring)
	}
	wake := h.changed
	h.changed = make(chan struct{})
	h.mu.Unlock()

	close(wake)
}

// Fetch returns up to limit events newer than since together with the
// cursor for the next call. With wait set, Fetch blocks until an event
// arrives or ctx ends.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		h.mu.Lock()
		events, next := h.afterLocked(since, limit)
		wake := h.changed
		h.mu.Unlock()

		if len(events) > 0 || !wait {
			return events, next, ctx.Err()
		}
		select {
		case <-ctx.Done():
			return nil, next, ctx.Err()
		case <-wake:
		}
	}
}

// Tail returns the newest limit events and the current cursor.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > h.count {
		limit = h.count
	}
	return h.copyLocked(h.count-limit, h.count), h.lastSeq
}

// FirstSequence reports the oldest sequence number still held.
func (h *StreamHub) FirstSequence() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return h.lastSeq
	}
	return h.ring[h.start].Sequence
}

func (h *StreamHub) afterLocked(since uint64, limit int) ([]LogEvent, uint64) {
	if h.count == 0 || since >= h.lastSeq {
		return nil, h.lastSeq
	}
	// Sequences are contiguous, so the offset of since+1 is arithmetic.
	first := h.ring[h.start].Sequence
	from := 0
	if since >= first {
		from = int(since - first + 1)
	}
	to := h.count
	if limit > 0 && from+limit < to {
		to = from + limit
	}
	out := h.copyLocked(from, to)
	if to < h.count {
		return out, out[len(out)-1].Sequence
	}
	return out, h.lastSeq
}

// copyLocked copies logical positions [from, to) out of the ring.
func (h *StreamHub) copyLocked(from, to int) []LogEvent {
	if to <= from {
		return nil
	}
	out := make([]LogEvent, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, h.ring[(h.start+i)%len(h.ring)])
	}
	return out
}

// EventFilter narrows a page of events. Empty fields match everything.
type EventFilter struct {
	JobID     string
	Component string
}

// Filter returns the events matching f.
func (f EventFilter) Filter(events []LogEvent) []LogEvent {
	jobID := strings.TrimSpace(f.JobID)
	component := strings.TrimSpace(f.Component)
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		if jobID != "" && evt.JobID != jobID {
			continue
		}
		if component != "" && !strings.EqualFold(evt.Component, component) {
			continue
		}
		out = append(out, evt)
	}
	return out
}

// streamHandler publishes every handled record to a hub before passing it on.
type streamHandler struct {
	next  slog.Handler
	hub   *StreamHub
	attrs []slog.Attr
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	h.hub.Publish(newLogEvent(record, h.attrs))
	return h.next.Handle(ctx, record.Clone())
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &streamHandler{
		next:  h.next.WithAttrs(attrs),
		hub:   h.hub,
		attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	return &streamHandler{next: h.next.WithGroup(name), hub: h.hub, attrs: h.attrs}
}

func newLogEvent(record slog.Record, bound []slog.Attr) LogEvent {
	evt := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}
	set := func(attr slog.Attr) bool {
		key := strings.TrimSpace(attr.Key)
		value := attrString(attr.Value)
		switch key {
		case "":
		case FieldJobID:
			evt.JobID = value
		case FieldStage:
			evt.Stage = value
		case FieldCorrelationID:
			evt.CorrelationID = value
		case FieldComponent:
			evt.Component = value
		default:
			if evt.Fields == nil {
				evt.Fields = make(map[string]string)
			}
			evt.Fields[key] = value
		}
		return true
	}
	// Record attrs come last so call-site values win over bound ones.
	for _, attr := range bound {
		set(attr)
	}
	record.Attrs(set)
	return evt
}
