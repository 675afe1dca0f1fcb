package services

import (
	"context"
	"os/exec"
	"time"
)

// commandWaitDelay bounds how long Wait blocks on inherited pipes after the
// process group has been killed.
const commandWaitDelay = 5 * time.Second

// CommandContext builds an exec.Cmd for an external tool. The child runs in
// its own process group and the whole group is killed when ctx ends, so
// helpers spawned by the tool (python workers, ffmpeg) do not outlive a
// timed-out job.
func CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	configureProcessGroup(cmd)
	cmd.WaitDelay = commandWaitDelay
	return cmd
}
