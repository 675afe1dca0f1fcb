package ffprobe

import (
	"context"
	"errors"
	"testing"

	"scribe/internal/services"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "duration": "61.5", "sample_rate": "48000", "channels": 2}
  ],
  "format": {"filename": "talk.mp4", "duration": "61.52", "size": "1048576", "format_name": "mov,mp4,m4a"}
}`

func TestInspectParsesOutput(t *testing.T) {
	var gotArgs []string
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte(sampleJSON), nil
	}
	result, err := Inspect(context.Background(), run, "", "/media/talk.mp4")
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if gotArgs[0] != "ffprobe" || gotArgs[len(gotArgs)-1] != "/media/talk.mp4" {
		t.Fatalf("unexpected invocation: %v", gotArgs)
	}
	if !result.HasVideo() || result.AudioStreamCount() != 1 {
		t.Fatalf("unexpected stream summary: %+v", result.Streams)
	}
	if result.DurationSeconds() != 61.52 || result.SizeBytes() != 1048576 {
		t.Fatalf("unexpected format values: %v %v", result.DurationSeconds(), result.SizeBytes())
	}
}

func TestInspectWrapsRunnerFailure(t *testing.T) {
	run := func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}
	_, err := Inspect(context.Background(), run, "ffprobe", "x.wav")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if _, err := Inspect(context.Background(), run, "ffprobe", " "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestResultHelpersFallbacks(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video", CodecName: "mjpeg"},
			{CodecType: "audio", Duration: "12.5"},
			{CodecType: "audio", Duration: "bad"},
		},
		Format: Format{Duration: "", Size: "-1"},
	}
	if result.HasVideo() {
		t.Fatal("cover art should not count as video")
	}
	if result.DurationSeconds() != 12.5 {
		t.Fatalf("expected stream duration fallback, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
}
