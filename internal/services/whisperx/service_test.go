package whisperx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"scribe/internal/services"
)

func argValue(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func fakeWhisperX(t *testing.T, lines []string, payload string) ExecutorFunc {
	t.Helper()
	return func(_ context.Context, name string, args []string, output io.Writer) error {
		if name != UVXCommand {
			t.Fatalf("expected %s, got %s", UVXCommand, name)
		}
		for _, line := range lines {
			fmt.Fprintln(output, line)
		}
		audio := args[slices.Index(args, "whisperx")+1]
		dest := OutputPath(argValue(args, "--output_dir"), audio)
		return os.WriteFile(dest, []byte(payload), 0o644)
	}
}

func TestTranscribeReportsProgressAndParses(t *testing.T) {
	dir := t.TempDir()
	var gotArgs []string
	fake := fakeWhisperX(t, []string{"Loading model...", "noise", ">>Performing transcription...", "Performing diarization"},
		`{"language":"en","segments":[{"start":0,"end":1,"text":"hi","words":[{"word":"hi","start":0,"end":1,"score":1,"speaker":"SPEAKER_00"}]}]}`)
	exec := ExecutorFunc(func(ctx context.Context, name string, args []string, output io.Writer) error {
		gotArgs = args
		return fake(ctx, name, args, output)
	})

	svc := NewService(Config{HFToken: "hf_x", MaxSpeakers: 3}, WithExecutor(exec))
	var percents []float64
	result, err := svc.Transcribe(context.Background(), Request{
		AudioPath: filepath.Join(dir, "talk.wav"),
		OutputDir: filepath.Join(dir, "out"),
		Model:     "small",
		Language:  "Portuguese",
		Diarize:   true,
	}, func(p float64, _ string) { percents = append(percents, p) })
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if !slices.Equal(percents, []float64{20, 60, 80}) {
		t.Fatalf("unexpected progress: %v", percents)
	}
	if len(result.Segments) != 1 || len(result.Turns) != 1 || result.Language != "en" {
		t.Fatalf("unexpected result: %+v", result)
	}

	checks := map[string]string{
		"--model":        "small",
		"--language":     "pt",
		"--device":       CPUDevice,
		"--compute_type": CPUComputeType,
		"--hf_token":     "hf_x",
		"--max_speakers": "3",
		"--batch_size":   "16",
	}
	for flag, want := range checks {
		if got := argValue(gotArgs, flag); got != want {
			t.Errorf("%s = %q, want %q", flag, got, want)
		}
	}
	if !slices.Contains(gotArgs, "--diarize") {
		t.Error("expected --diarize")
	}
	if slices.Contains(gotArgs, "--min_speakers") {
		t.Error("min_speakers should be omitted when unset")
	}
}

func TestBuildArgsCUDA(t *testing.T) {
	svc := NewService(Config{CUDAEnabled: true, VADMethod: VADMethodPyannote})
	args := svc.buildArgs(Request{AudioPath: "a.wav"}, "/out")
	if argValue(args, "--index-url") != CUDAIndexURL || argValue(args, "--device") != CUDADevice {
		t.Fatalf("unexpected cuda args: %v", args)
	}
	if argValue(args, "--compute_type") != CUDAComputeType || argValue(args, "--model") != DefaultModel {
		t.Fatalf("unexpected defaults: %v", args)
	}
	if slices.Contains(args, "--diarize") || slices.Contains(args, "--hf_token") {
		t.Fatalf("unexpected diarization args: %v", args)
	}
}

func TestDevice(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		device      string
		computeType string
	}{
		{"cpu default", Config{}, CPUDevice, CPUComputeType},
		{"cuda default", Config{CUDAEnabled: true}, CUDADevice, CUDAComputeType},
		{"explicit compute type", Config{CUDAEnabled: true, ComputeType: "float32"}, CUDADevice, "float32"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.cfg)
			device, computeType := svc.Device()
			if device != tt.device || computeType != tt.computeType {
				t.Fatalf("Device() = %s, %s; want %s, %s", device, computeType, tt.device, tt.computeType)
			}
			args := svc.buildArgs(Request{AudioPath: "a.wav"}, "/out")
			if argValue(args, "--device") != device || argValue(args, "--compute_type") != computeType {
				t.Fatalf("args disagree with Device(): %v", args)
			}
		})
	}
}

func TestTranscribeFailureCarriesOutputTail(t *testing.T) {
	exec := ExecutorFunc(func(_ context.Context, _ string, _ []string, output io.Writer) error {
		fmt.Fprintln(output, "Traceback (most recent call last):")
		fmt.Fprintln(output, "RuntimeError: CUDA out of memory")
		return errors.New("exit status 1")
	})
	svc := NewService(Config{}, WithExecutor(exec))
	_, err := svc.Transcribe(context.Background(), Request{AudioPath: "a.wav", OutputDir: t.TempDir()}, nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Fatalf("expected output tail in error, got %v", err)
	}
}

func TestTranscribeMissingOutput(t *testing.T) {
	exec := ExecutorFunc(func(context.Context, string, []string, io.Writer) error { return nil })
	svc := NewService(Config{}, WithExecutor(exec))
	_, err := svc.Transcribe(context.Background(), Request{AudioPath: "a.wav", OutputDir: t.TempDir()}, nil)
	if services.KindOf(err) != services.KindExternalTool {
		t.Fatalf("expected external_tool, got %v", err)
	}
}

func TestTranscribeTimeout(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, _ string, _ []string, output io.Writer) error {
		fmt.Fprintln(output, "Loading model")
		<-ctx.Done()
		return errors.New("signal: killed")
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	svc := NewService(Config{}, WithExecutor(exec))
	_, err := svc.Transcribe(ctx, Request{AudioPath: "a.wav", OutputDir: t.TempDir()}, nil)
	if services.KindOf(err) != services.KindTimeout {
		t.Fatalf("expected timeout kind, got %v", err)
	}
}

func TestTranscribeDrainsOutputAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := ExecutorFunc(func(_ context.Context, _ string, _ []string, output io.Writer) error {
		fmt.Fprintln(output, "first")
		cancel()
		for i := 0; i < 100; i++ {
			fmt.Fprintln(output, "more output after cancellation")
		}
		return errors.New("killed")
	})
	svc := NewService(Config{}, WithExecutor(exec))
	_, err := svc.Transcribe(ctx, Request{AudioPath: "a.wav", OutputDir: t.TempDir()}, nil)
	if services.KindOf(err) != services.KindCancelled {
		t.Fatalf("expected cancelled kind, got %v", err)
	}
}
