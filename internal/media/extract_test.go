package media

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"scribe/internal/config"
	"scribe/internal/services"
)

func testMediaConfig() config.Media {
	return config.Media{
		FFmpegBinary:    "ffmpeg-test",
		SampleRate:      16000,
		Channels:        1,
		VideoExtensions: []string{".mp4", ".mkv"},
	}
}

func TestPrepareExtractsVideo(t *testing.T) {
	var calls [][]string
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))
		return nil, nil
	}
	e := NewExtractor(testMediaConfig(), WithRunner(run))
	work := t.TempDir()

	path, extracted, err := e.Prepare(context.Background(), "/in/Lecture.MP4", work)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if !extracted || path != filepath.Join(work, "Lecture.wav") {
		t.Fatalf("unexpected prepare result: %q %v", path, extracted)
	}
	if len(calls) != 1 || calls[0][0] != "ffmpeg-test" {
		t.Fatalf("unexpected calls: %v", calls)
	}
	args := calls[0]
	for _, want := range [][]string{{"-ar", "16000"}, {"-ac", "1"}, {"-c:a", "pcm_s16le"}} {
		i := slices.Index(args, want[0])
		if i < 0 || args[i+1] != want[1] {
			t.Fatalf("expected %v in %v", want, args)
		}
	}
}

func TestPrepareAudioPassesThrough(t *testing.T) {
	e := NewExtractor(testMediaConfig(), WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("runner should not be called for audio")
		return nil, nil
	}))
	path, extracted, err := e.Prepare(context.Background(), "/in/podcast.mp3", t.TempDir())
	if err != nil || extracted || path != "/in/podcast.mp3" {
		t.Fatalf("unexpected result: %q %v %v", path, extracted, err)
	}
}

func TestExtractAudioFailureIsExternalTool(t *testing.T) {
	e := NewExtractor(testMediaConfig(), WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Invalid data found when processing input"), errors.New("exit status 1")
	}))
	err := e.ExtractAudio(context.Background(), "/in/bad.mkv", filepath.Join(t.TempDir(), "bad.wav"))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if services.KindOf(err) != services.KindExternalTool {
		t.Fatalf("unexpected kind %q", services.KindOf(err))
	}
}

func TestProbeUsesRunner(t *testing.T) {
	e := NewExtractor(config.Media{}, WithRunner(func(_ context.Context, name string, _ ...string) ([]byte, error) {
		if name != "ffprobe" {
			t.Fatalf("expected default ffprobe binary, got %q", name)
		}
		return []byte(`{"format":{"duration":"3.5"}}`), nil
	}))
	result, err := e.Probe(context.Background(), "/in/a.wav")
	if err != nil || result.DurationSeconds() != 3.5 {
		t.Fatalf("unexpected probe: %+v %v", result, err)
	}
}
