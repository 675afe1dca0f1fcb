package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/config"
	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/notifications"
	"scribe/internal/workflow"
)

type batchEntry struct {
	path string
	job  jobs.Job
	err  error
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var flags submitFlags
	var recursive bool
	var jsonOutput bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "batch DIR",
		Short: "Transcribe every supported media file in a directory",
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
			files, err := collectMedia(cfg, args[0], recursive)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintf(out, "No supported media files in %s\n", args[0])
				return nil
			}

			logLevel := ""
			if verbose {
				logLevel = "info"
			}
			rt, err := openLocalRuntime(cfg, localOptions{LogLevel: logLevel, LogOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer rt.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			started := time.Now()
			entries := make([]batchEntry, 0, len(files))
			for _, path := range files {
				job, err := rt.manager.Submit(runCtx, workflow.Request{
					SourcePath:  path,
					Model:       flags.model,
					Language:    flags.language,
					Diarization: diarize,
				})
				entries = append(entries, batchEntry{path: path, job: job, err: err})
			}
			if !jsonOutput {
				fmt.Fprintf(cmd.ErrOrStderr(), "Queued %d file(s) from %s\n", len(files), args[0])
			}

			for i := range entries {
				entry := &entries[i]
				if entry.err != nil {
					continue
				}
				var onEvent func(jobs.Event)
				if !jsonOutput {
					printer := &progressPrinter{
						out:      cmd.ErrOrStderr(),
						prefix:   fmt.Sprintf("[%d/%d] %s ", i+1, len(entries), entry.job.Filename),
						colorize: shouldColorize(cmd.ErrOrStderr()),
					}
					onEvent = printer.handle
				}
				final, err := rt.await(runCtx, entry.job.ID, onEvent)
				if err != nil {
					entry.err = err
					continue
				}
				entry.job = final
			}
			elapsed := time.Since(started)

			processed, failed := batchCounts(entries)
			publishBatchSummary(runCtx, cfg, rt, processed, failed, elapsed)

			if jsonOutput {
				if err := writeJSON(cmd, batchJSON(entries, processed, failed, elapsed)); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, renderBatchTable(entries, shouldColorize(out)))
				fmt.Fprintf(out, "Batch complete: %d transcribed, %d failed in %s\n", processed, failed, elapsed.Round(time.Second))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d file(s) did not complete", failed, len(entries))
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the batch summary as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show info-level logs on stderr")
	return cmd
}

// collectMedia lists files under dir whose extension is allowed. Hidden files
// and directories are skipped.
func collectMedia(cfg *config.Config, dir string, recursive bool) ([]string, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("batch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("batch directory: %s is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if !recursive || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() {
			return nil
		}
		if cfg.AllowedExtension(filepath.Ext(name)) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func batchCounts(entries []batchEntry) (processed, failed int) {
	for _, entry := range entries {
		if entry.err == nil && entry.job.Status == jobs.StatusCompleted {
			processed++
		} else {
			failed++
		}
	}
	return processed, failed
}

func publishBatchSummary(ctx context.Context, cfg *config.Config, rt *localRuntime, processed, failed int, elapsed time.Duration) {
	svc := notifications.NewService(cfg)
	err := svc.Publish(context.WithoutCancel(ctx), notifications.EventBatchCompleted, notifications.Payload{
		"processed": strconv.Itoa(processed),
		"failed":    strconv.Itoa(failed),
		"duration":  elapsed.Round(time.Second).String(),
	})
	if err != nil {
		logging.WarnWithContext(rt.logger, "batch notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "batch summary was not delivered"),
		)
	}
}

func renderBatchTable(entries []batchEntry, colorize bool) string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		name := filepath.Base(entry.path)
		if entry.err != nil {
			rows = append(rows, []string{name, colorStatus(jobs.StatusFailed, colorize), "-", "-", "-", batchErrorText(entry.err)})
			continue
		}
		job := entry.job
		duration, speakers, processing := "-", "-", "-"
		if job.Result != nil {
			duration = formatSeconds(job.Result.Metadata.TotalDuration)
			speakers = strconv.Itoa(job.Result.Metadata.SpeakerCount)
			processing = formatSeconds(job.Result.Metadata.ProcessingTime)
		}
		rows = append(rows, []string{name, colorStatus(job.Status, colorize), duration, speakers, processing, jobDetail(job)})
	}
	return renderTable(
		[]string{"File", "Status", "Duration", "Speakers", "Processing", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}

func batchErrorText(err error) string {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err.Error()
	}
	return err.Error()
}

type batchFileJSON struct {
	Path   string      `json:"path"`
	Job    *jobs.Job   `json:"job,omitempty"`
	Error  string      `json:"error,omitempty"`
	Status jobs.Status `json:"status"`
}

type batchSummaryJSON struct {
	Files           []batchFileJSON `json:"files"`
	Processed       int             `json:"processed"`
	Failed          int             `json:"failed"`
	DurationSeconds float64         `json:"duration_seconds"`
}

func batchJSON(entries []batchEntry, processed, failed int, elapsed time.Duration) batchSummaryJSON {
	files := make([]batchFileJSON, 0, len(entries))
	for _, entry := range entries {
		item := batchFileJSON{Path: entry.path}
		if entry.err != nil {
			item.Error = entry.err.Error()
			item.Status = jobs.StatusFailed
		} else {
			job := entry.job
			job.Result = nil
			item.Job = &job
			item.Status = job.Status
		}
		files = append(files, item)
	}
	return batchSummaryJSON{
		Files:           files,
		Processed:       processed,
		Failed:          failed,
		DurationSeconds: elapsed.Seconds(),
	}
}
