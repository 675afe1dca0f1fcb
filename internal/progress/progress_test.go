package progress_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"scribe/internal/config"
	"scribe/internal/progress"
)

type call struct {
	percent float64
	message string
}

func collect() (*[]call, progress.Sink) {
	var calls []call
	return &calls, func(p float64, m string) { calls = append(calls, call{p, m}) }
}

func TestTableMatchCaseFolded(t *testing.T) {
	table := progress.DefaultTable()
	cases := []struct {
		line    string
		want    float64
		matched bool
	}{
		{"Model Loading...", 20, true},
		{"CARREGANDO MODELO base", 20, true},
		{"Processando Áudio", 30, true},
		{">>Performing transcription...", 60, true},
		{"Iniciando DIARIZAÇÃO", 80, true},
		{"Salvando resultados", 90, true},
		{"nothing interesting", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		m, ok := table.Match(tc.line)
		if ok != tc.matched || (ok && m.Percent != tc.want) {
			t.Fatalf("Match(%q) = %+v, %v; want %v, %v", tc.line, m, ok, tc.want, tc.matched)
		}
	}
}

func TestTableFirstMatchWins(t *testing.T) {
	table := progress.NewTable(
		progress.Milestone{Phrase: "saving", Percent: 90},
		progress.Milestone{Phrase: "transcribing", Percent: 60},
		progress.Milestone{Phrase: "  ", Percent: 10},
	)
	if table.Len() != 2 {
		t.Fatalf("expected blank phrase skipped, got %d entries", table.Len())
	}
	m, ok := table.Match("transcribing then saving")
	if !ok || m.Percent != 90 {
		t.Fatalf("expected first table entry to win, got %+v", m)
	}
}

func TestMonitorCallsSinkForEveryMatchedLine(t *testing.T) {
	input := strings.Join([]string{
		"starting up",
		"model loading",
		"model loading",
		"transcribing chunk 1",
		"random noise",
		"diarization",
		"saving outputs",
	}, "\n")

	calls, sink := collect()
	if err := progress.Monitor(context.Background(), strings.NewReader(input), progress.DefaultTable(), sink); err != nil {
		t.Fatalf("Monitor returned error: %v", err)
	}
	want := []float64{20, 20, 60, 80, 90}
	if len(*calls) != len(want) {
		t.Fatalf("expected %d sink calls, got %+v", len(want), *calls)
	}
	for i, p := range want {
		if (*calls)[i].percent != p {
			t.Fatalf("call %d: expected %v, got %+v", i, p, (*calls)[i])
		}
	}
}

func TestMonitorSplitsCarriageReturns(t *testing.T) {
	calls, sink := collect()
	var lines []string
	input := "10%|#   | transcribing\r50%|#####| saving\n"
	err := progress.Monitor(context.Background(), strings.NewReader(input), progress.DefaultTable(), sink,
		progress.WithLineHandler(func(l string) { lines = append(lines, l) }))
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || len(*calls) != 2 {
		t.Fatalf("expected 2 lines and 2 calls, got %v / %+v", lines, *calls)
	}
}

func TestMonitorNoMatches(t *testing.T) {
	calls, sink := collect()
	if err := progress.Monitor(context.Background(), strings.NewReader("a\nb\nc"), progress.DefaultTable(), sink); err != nil {
		t.Fatal(err)
	}
	if len(*calls) != 0 {
		t.Fatalf("expected no calls, got %+v", *calls)
	}
}

func TestMonitorStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls, sink := collect()
	if err := progress.Monitor(ctx, strings.NewReader("model loading\nsaving\n"), progress.DefaultTable(), sink); err != nil {
		t.Fatal(err)
	}
	if len(*calls) != 0 {
		t.Fatalf("expected no calls after cancellation, got %+v", *calls)
	}
}

func TestMonitorReturnsReadError(t *testing.T) {
	boom := errors.New("pipe broke")
	err := progress.Monitor(context.Background(), iotest.ErrReader(boom), progress.DefaultTable(), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	if got := progress.FromConfig(nil); got.Len() != progress.DefaultTable().Len() {
		t.Fatalf("expected default table for empty config, got %d entries", got.Len())
	}
	table := progress.FromConfig([]config.Milestone{{Phrase: "Fase 1", Percent: 15}})
	m, ok := table.Match("iniciando FASE 1")
	if !ok || m.Percent != 15 {
		t.Fatalf("expected configured milestone, got %+v %v", m, ok)
	}
}

func TestMonitorRepeatsSameMilestone(t *testing.T) {
	input := "transcribing chunk 1\ntranscribing chunk 2\ntranscribing chunk 3\n"
	calls, sink := collect()
	if err := progress.Monitor(context.Background(), strings.NewReader(input), progress.DefaultTable(), sink); err != nil {
		t.Fatalf("Monitor returned error: %v", err)
	}
	if len(*calls) != 3 {
		t.Fatalf("expected one call per matching line, got %+v", *calls)
	}
	for i, c := range *calls {
		if c.percent != 60 {
			t.Fatalf("call %d: expected 60, got %+v", i, c)
		}
	}
}

func TestFromConfigMilestones(t *testing.T) {
	if got := progress.FromConfig(nil).Milestones(); len(got) != progress.DefaultTable().Len() || got[0].Phrase != "model loading" {
		t.Fatalf("empty config should select the default table, got %+v", got)
	}

	table := progress.FromConfig([]config.Milestone{
		{Phrase: "Loading", Percent: 15},
		{Phrase: "Writing", Percent: 95},
	})
	got := table.Milestones()
	want := []progress.Milestone{{Phrase: "Loading", Percent: 15}, {Phrase: "Writing", Percent: 95}}
	if len(got) != len(want) {
		t.Fatalf("expected %d milestones, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("milestone %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
	got[0].Percent = 99
	if table.Milestones()[0].Percent != 15 {
		t.Fatal("Milestones must return a copy")
	}
}
