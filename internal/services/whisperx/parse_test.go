package whisperx

import (
	"math"
	"testing"

	"scribe/internal/transcript"
)

func TestParseNormalizesSegments(t *testing.T) {
	data := []byte(`{
	  "language": "pt",
	  "segments": [
	    {"start": 0.0, "end": 2.5, "text": "  Olá a todos ", "words": [
	      {"word": "Olá", "start": 0.0, "end": 0.8, "score": 0.9, "speaker": "SPEAKER_00"},
	      {"word": "a", "start": 0.9, "end": 1.0, "score": 0.7, "speaker": "SPEAKER_00"},
	      {"word": "todos", "start": 1.1, "end": 2.5, "score": 0.8, "speaker": "SPEAKER_00"}
	    ]},
	    {"start": 2.6, "text": "sem fim", "words": [
	      {"word": "sem", "start": 2.6, "end": 3.0, "score": 0.5, "speaker": "SPEAKER_01"},
	      {"word": "fim", "start": 3.1, "end": 3.4, "speaker": "SPEAKER_01"}
	    ]},
	    {"start": 4.0, "end": 5.0, "text": "   "},
	    {"text": "sem tempo", "avg_logprob": -0.5, "speaker": "SPEAKER_00"}
	  ]
	}`)

	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got.Language != "pt" {
		t.Fatalf("expected language pt, got %q", got.Language)
	}
	if len(got.Segments) != 3 {
		t.Fatalf("expected 3 segments (blank dropped), got %d", len(got.Segments))
	}

	first := got.Segments[0]
	if first.Text != "Olá a todos" {
		t.Fatalf("expected NFC trimmed text, got %q (% x)", first.Text, first.Text)
	}
	if math.Abs(first.Confidence-0.8) > 1e-9 {
		t.Fatalf("expected mean word score 0.8, got %v", first.Confidence)
	}

	second := got.Segments[1]
	if second.End != 3.4 {
		t.Fatalf("expected end derived from last word, got %v", second.End)
	}
	if second.Confidence != 0.5 {
		t.Fatalf("expected confidence from scored words only, got %v", second.Confidence)
	}

	third := got.Segments[2]
	if third.Start != 3.4 || third.End != 3.4 {
		t.Fatalf("expected untimed segment to sit at previous end, got %+v", third)
	}
	if math.Abs(third.Confidence-math.Exp(-0.5)) > 1e-9 {
		t.Fatalf("expected exp(avg_logprob) confidence, got %v", third.Confidence)
	}

	wantTurns := []transcript.Turn{
		{Start: 0, End: 2.5, Speaker: "SPEAKER_00"},
		{Start: 2.6, End: 3.4, Speaker: "SPEAKER_01"},
		{Start: 3.4, End: 3.4, Speaker: "SPEAKER_00"},
	}
	if len(got.Turns) != len(wantTurns) {
		t.Fatalf("expected %d turns, got %+v", len(wantTurns), got.Turns)
	}
	for i, want := range wantTurns {
		if got.Turns[i] != want {
			t.Fatalf("turn %d: expected %+v, got %+v", i, want, got.Turns[i])
		}
	}
}

func TestParseWithoutSpeakers(t *testing.T) {
	got, err := Parse([]byte(`{"segments":[{"start":1,"end":2,"text":"hello"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Turns) != 0 || len(got.Segments) != 1 || got.Segments[0].Confidence != 0 {
		t.Fatalf("unexpected parse: %+v", got)
	}
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected error")
	}
}
