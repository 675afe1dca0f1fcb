package whisperx

import (
	"context"
	"io"
	"os"

	"scribe/internal/services"
)

// Executor runs an external command, streaming its stdout and stderr to
// output until it exits.
type Executor interface {
	Run(ctx context.Context, name string, args []string, output io.Writer) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, name string, args []string, output io.Writer) error

// Run calls f.
func (f ExecutorFunc) Run(ctx context.Context, name string, args []string, output io.Writer) error {
	return f(ctx, name, args, output)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, name string, args []string, output io.Writer) error {
	cmd := services.CommandContext(ctx, name, args...)
	// Torch 2.6 changed torch.load to weights_only=true, which breaks the
	// pyannote checkpoints WhisperX loads.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	cmd.Stdout = output
	cmd.Stderr = output
	return cmd.Run()
}
