package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/api"
	"scribe/internal/jobs"
	"scribe/internal/output"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job"},
		Short:   "Submit and manage daemon jobs",
	}

	jobsCmd.AddCommand(newJobsSubmitCommand(ctx))
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsDeleteCommand(ctx))
	jobsCmd.AddCommand(newJobsDownloadCommand(ctx))
	jobsCmd.AddCommand(newJobsWatchCommand(ctx))

	return jobsCmd
}

func newJobsSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags submitFlags
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Upload a file to the daemon for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			diarize, err := flags.diarize()
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Submit(cmd.Context(), api.SubmitRequest{
					Path:        args[0],
					Model:       flags.model,
					Language:    flags.language,
					Diarization: diarize,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s as job %s\n", job.Filename, job.ID)
				if !watch {
					return nil
				}
				return watchJob(cmd, client, job.ID)
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow progress until the job finishes")
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var limit int
	var offset int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List daemon jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.List(cmd.Context(), api.ListOptions{Statuses: parsed, Limit: limit, Offset: offset})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprintln(out, renderJobsTable(resp.Jobs, shouldColorize(out)))
				fmt.Fprintln(out, summarizeCounts(resp.Counts))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable or comma separated)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of jobs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many jobs")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show a job and its transcript summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, job)
				}
				printJobDetail(cmd, job)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON, transcript included")
	return cmd
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s %s\n", job.ID, strings.ToLower(string(job.Status)))
				return nil
			})
		},
	}
}

func newJobsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a job and its output files",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s deleted\n", args[0])
				return nil
			})
		},
	}
}

func newJobsDownloadCommand(ctx *commandContext) *cobra.Command {
	var formatFlag string
	var outputPath string

	cmd := &cobra.Command{
		Use:   "download ID",
		Short: "Download a completed transcript (txt, json, srt, vtt)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				var buf bytes.Buffer
				name, err := client.Download(cmd.Context(), args[0], format, &buf)
				if err != nil {
					return err
				}
				if outputPath == "-" {
					_, err := cmd.OutOrStdout().Write(buf.Bytes())
					return err
				}
				target := outputPath
				if target == "" {
					target = name
				} else if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
					target = filepath.Join(target, name)
				}
				if err := os.WriteFile(target, buf.Bytes(), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", target, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", target)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&formatFlag, "format", "f", "txt", "Transcript format: txt, json, srt or vtt")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination file or directory (- for stdout)")
	return cmd
}

func newJobsWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch ID",
		Short: "Follow a job's progress until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				return watchJob(cmd, client, args[0])
			})
		},
	}
}

func watchJob(cmd *cobra.Command, client *api.Client, id string) error {
	printer := &progressPrinter{out: cmd.OutOrStdout(), colorize: shouldColorize(cmd.OutOrStdout())}
	last, err := client.Watch(cmd.Context(), id, func(ev jobs.Event) error {
		printer.handle(ev)
		return nil
	})
	if err != nil {
		return err
	}
	switch last.Status {
	case jobs.StatusFailed:
		return fmt.Errorf("job %s failed: %s", id, last.Error)
	case jobs.StatusCancelled:
		return fmt.Errorf("job %s cancelled", id)
	}
	return nil
}

func printJobDetail(cmd *cobra.Command, job jobs.Job) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader(job.Filename, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "ID:          %s\n", job.ID)
	fmt.Fprintf(out, "Status:      %s (%s)\n", colorStatus(job.Status, colorize), formatPercent(job.Progress))
	if job.Message != "" {
		fmt.Fprintf(out, "Message:     %s\n", job.Message)
	}
	fmt.Fprintf(out, "Model:       %s\n", job.Model)
	fmt.Fprintf(out, "Language:    %s\n", job.Language)
	fmt.Fprintf(out, "Diarization: %s\n", yesNo(job.Diarization))
	fmt.Fprintf(out, "Size:        %s\n", formatBytes(job.SourceSize))
	fmt.Fprintf(out, "Created:     %s\n", formatAge(job.CreatedAt))
	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:       %s (%s)\n", job.ErrorMessage, job.ErrorKind)
	}
	if job.Result == nil {
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
}

func summarizeCounts(counts map[jobs.Status]int) string {
	order := []jobs.Status{jobs.StatusQueued, jobs.StatusProcessing, jobs.StatusCompleted, jobs.StatusFailed, jobs.StatusCancelled}
	parts := make([]string, 0, len(order))
	for _, st := range order {
		if n := counts[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(string(st))))
		}
	}
	if len(parts) == 0 {
		return "No jobs"
	}
	return strings.Join(parts, ", ")
}
