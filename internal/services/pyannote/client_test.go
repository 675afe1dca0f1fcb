package pyannote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"scribe/internal/services"
	"scribe/internal/transcript"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "talk.wav")
	if err := os.WriteFile(path, []byte("RIFF....WAVE"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiarizeUploadsAudioAndParsesTurns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/diarize" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("missing audio part: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "RIFF....WAVE" || header.Filename != "talk.wav" {
				t.Errorf("unexpected upload %q %q", header.Filename, data)
			}
		}
		if r.FormValue("max_speakers") != "4" || r.FormValue("min_speakers") != "" {
			t.Errorf("unexpected speaker bounds: min=%q max=%q", r.FormValue("min_speakers"), r.FormValue("max_speakers"))
		}
		_, _ = io.WriteString(w, `{"num_speakers":2,"segments":[
			{"speaker_id":"SPEAKER_00","start_time":0,"end_time":4.5},
			{"speaker":"SPEAKER_01","start":4.5,"end":9},
			{"speaker":"","start":9,"end":10},
			{"speaker":"SPEAKER_01","start":11,"end":11}
		]}`)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/", MaxSpeakers: 4})
	turns, err := client.Diarize(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("Diarize failed: %v", err)
	}
	want := []transcript.Turn{
		{Start: 0, End: 4.5, Speaker: "SPEAKER_00"},
		{Start: 4.5, End: 9, Speaker: "SPEAKER_01"},
	}
	if len(turns) != len(want) || turns[0] != want[0] || turns[1] != want[1] {
		t.Fatalf("unexpected turns: %+v", turns)
	}
}

func TestDiarizeErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http status", func(w http.ResponseWriter, _ *http.Request) { http.Error(w, "model missing", http.StatusInternalServerError) }},
		{"error field", func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, `{"error":"cuda oom"}`) }},
		{"bad json", func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, `nope`) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()
			_, err := NewClient(Config{BaseURL: server.URL}).Diarize(context.Background(), writeAudio(t))
			if !errors.Is(err, services.ErrExternalTool) {
				t.Fatalf("expected external tool error, got %v", err)
			}
		})
	}
}

func TestDiarizeRequiresConfiguration(t *testing.T) {
	client := NewClient(Config{})
	if client.Enabled() {
		t.Fatal("expected client without url to be disabled")
	}
	if _, err := client.Diarize(context.Background(), "x.wav"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDiarizeMissingFile(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Diarize(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected io error, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("expected healthy sidecar, got %v", err)
	}
	status.Store(http.StatusServiceUnavailable)
	if err := client.Health(context.Background()); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}
