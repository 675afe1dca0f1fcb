package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"scribe/internal/jobs"
	"scribe/internal/workflow"
)

type submitFlags struct {
	model       string
	language    string
	diarization string
}

func (f *submitFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Recognition model (default transcription.model)")
	cmd.Flags().StringVarP(&f.language, "language", "l", "", "Spoken language, ISO 639-1 (default transcription.language)")
	cmd.Flags().StringVar(&f.diarization, "diarization", "", "Force speaker diarization on or off (true/false)")
}

func (f *submitFlags) diarize() (*bool, error) {
	raw := strings.TrimSpace(f.diarization)
	if raw == "" {
		return nil, nil
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		v := true
		return &v, nil
	case "0", "false", "no", "off":
		v := false
		return &v, nil
	}
	return nil, fmt.Errorf("invalid --diarization value %q", raw)
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags submitFlags
	var jsonOutput bool
	var noHistory bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Transcribe one file in the foreground without the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			diarize, err := flags.diarize()
			if err != nil {
				return err
			}
			source, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}

			logLevel := ""
			if verbose {
				logLevel = "info"
			}
			rt, err := openLocalRuntime(cfg, localOptions{
				LogLevel:  logLevel,
				LogOutput: cmd.ErrOrStderr(),
				NoArchive: noHistory,
				Notify:    true,
			})
			if err != nil {
				return err
			}
			defer rt.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			job, err := rt.manager.Submit(runCtx, workflow.Request{
				SourcePath:  source,
				Model:       flags.model,
				Language:    flags.language,
				Diarization: diarize,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			var onEvent func(jobs.Event)
			if !jsonOutput {
				printer := &progressPrinter{out: cmd.ErrOrStderr(), colorize: shouldColorize(cmd.ErrOrStderr())}
				onEvent = printer.handle
			}
			final, err := rt.await(runCtx, job.ID, onEvent)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := writeJSON(cmd, final); err != nil {
					return err
				}
			} else {
				printRunReport(cmd, final, colorize)
			}

			switch final.Status {
			case jobs.StatusCompleted:
				return nil
			case jobs.StatusCancelled:
				return fmt.Errorf("transcription of %s cancelled", final.Filename)
			default:
				return fmt.Errorf("transcription of %s failed: %s", final.Filename, final.ErrorMessage)
			}
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the final job, transcript included, as JSON")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the run in the history archive")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show info-level logs on stderr")
	return cmd
}

func printRunReport(cmd *cobra.Command, job jobs.Job, colorize bool) {
	out := cmd.OutOrStdout()
	for _, line := range renderSectionHeader(job.Filename, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Status", jobStatusKind(job.Status), strings.ToUpper(string(job.Status)), colorize))
	if job.Status != jobs.StatusCompleted || job.Result == nil {
		if job.ErrorMessage != "" {
			fmt.Fprintln(out, renderStatusLine("Error", statusError, job.ErrorMessage, colorize))
		}
		return
	}

	fmt.Fprintln(out)
	for _, line := range renderResultSummary(*job.Result) {
		fmt.Fprintln(out, line)
	}
	if len(job.Result.Speakers) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderSpeakerTable(*job.Result))
	}
	if len(job.OutputFiles) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Outputs:")
		for _, format := range sortedOutputs(job.OutputFiles) {
			fmt.Fprintf(out, "  %-5s %s\n", format, job.OutputFiles[format])
		}
	}
}
