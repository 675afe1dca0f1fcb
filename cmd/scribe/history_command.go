package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"scribe/internal/api"
	"scribe/internal/history"
	"scribe/internal/jobs"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var since string
	var limit int
	var offset int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show archived jobs",
		Long: "Show archived jobs. The daemon is asked first; when it is not running the\n" +
			"history database is read directly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			resp, err := fetchHistory(cmd, ctx, parsed, since, limit, offset)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			if len(resp.Records) == 0 {
				fmt.Fprintln(out, "No archived jobs")
				return nil
			}
			fmt.Fprintln(out, renderHistoryTable(resp.Records, shouldColorize(out)))
			fmt.Fprintln(out, summarizeHistory(resp.Stats))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable or comma separated)")
	cmd.Flags().StringVar(&since, "since", "", "Only jobs finished after this RFC 3339 time or age (e.g. 24h, 7d)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of records")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many records")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")

	cmd.AddCommand(newHistoryPruneCommand(ctx))
	return cmd
}

func fetchHistory(cmd *cobra.Command, ctx *commandContext, statuses []jobs.Status, since string, limit, offset int) (api.HistoryResponse, error) {
	sinceTime, err := parseSinceFlag(since, time.Now())
	if err != nil {
		return api.HistoryResponse{}, err
	}

	var resp api.HistoryResponse
	client, err := api.NewClient(ctx.apiBind(), ctx.apiToken())
	if err == nil {
		opts := api.HistoryOptions{Statuses: statuses, Limit: limit, Offset: offset}
		if !sinceTime.IsZero() {
			opts.Since = sinceTime.UTC().Format(time.RFC3339)
		}
		resp, err = client.History(cmd.Context(), opts)
		if err == nil {
			return resp, nil
		}
	}
	if !api.IsUnavailable(err) {
		return resp, err
	}

	cfg, cfgErr := ctx.ensureConfig()
	if cfgErr != nil {
		return resp, cfgErr
	}
	store, openErr := history.Open(cfg.HistoryDBPath())
	if openErr != nil {
		return resp, fmt.Errorf("open history: %w", openErr)
	}
	defer store.Close()

	records, err := store.List(cmd.Context(), history.Filter{Statuses: statuses, Since: sinceTime, Limit: limit, Offset: offset})
	if err != nil {
		return resp, err
	}
	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return resp, err
	}
	return api.HistoryResponse{Records: records, Stats: stats}, nil
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete archived records older than a given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			age, err := parseAge(olderThan)
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryDBPath())
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			cutoff := time.Now().Add(-age)
			removed, err := store.Prune(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s) finished before %s\n", removed, cutoff.Format(time.DateTime))
			return nil
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "30d", "Age threshold (e.g. 72h, 30d)")
	return cmd
}

// parseAge accepts Go durations plus a whole-day "Nd" form.
func parseAge(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid age %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid age %q", raw)
	}
	return d, nil
}

func parseSinceFlag(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	age, err := parseAge(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want RFC 3339 time or age", raw)
	}
	return now.Add(-age), nil
}

func renderHistoryTable(records []history.Record, colorize bool) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		detail := ""
		if rec.ErrorMessage != "" {
			detail = rec.ErrorMessage
		} else if rec.Status == jobs.StatusCompleted {
			detail = fmt.Sprintf("%s words", humanize.Comma(int64(rec.WordCount)))
		}
		rows = append(rows, []string{
			shortID(rec.JobID),
			colorStatus(rec.Status, colorize),
			rec.Filename,
			rec.Model,
			formatSeconds(rec.DurationSeconds),
			strconv.Itoa(rec.SpeakerCount),
			formatSeconds(rec.ProcessingSeconds),
			formatAge(rec.FinishedAt),
			detail,
		})
	}
	return renderTable(
		[]string{"ID", "Status", "File", "Model", "Duration", "Speakers", "Processing", "Finished", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
	)
}

func summarizeHistory(stats history.Stats) string {
	return fmt.Sprintf("%s archived job(s), %d completed, %d failed; %s of audio transcribed in %s",
		humanize.Comma(int64(stats.Total)),
		stats.ByStatus[string(jobs.StatusCompleted)],
		stats.ByStatus[string(jobs.StatusFailed)],
		formatSeconds(stats.AudioSeconds),
		formatSeconds(stats.ProcessingTotal),
	)
}
