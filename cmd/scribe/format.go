package main

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"scribe/internal/jobs"
	"scribe/internal/language"
	"scribe/internal/transcript"
)

func formatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

// formatSeconds renders a media or processing duration as 1h02m03s.
func formatSeconds(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) {
		return "-"
	}
	return (time.Duration(seconds*float64(time.Second))).Round(time.Second).String()
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.0f%%", p)
}

func formatConfidence(c float64) string {
	if c <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", c)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func jobDetail(job jobs.Job) string {
	switch job.Status {
	case jobs.StatusFailed:
		return job.ErrorMessage
	case jobs.StatusCompleted:
		if job.Result != nil {
			return fmt.Sprintf("%d speakers, %s", job.Result.Metadata.SpeakerCount, formatSeconds(job.Result.Metadata.TotalDuration))
		}
	}
	return job.Message
}

func renderJobsTable(list []jobs.Job, colorize bool) string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			shortID(job.ID),
			colorStatus(job.Status, colorize),
			formatPercent(job.Progress),
			job.Filename,
			job.Model,
			job.Language,
			formatAge(job.CreatedAt),
			job.Message,
		})
	}
	return renderTable(
		[]string{"ID", "Status", "Progress", "File", "Model", "Lang", "Created", "Message"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

// renderSpeakerTable lists speakers in order of first appearance.
func renderSpeakerTable(result transcript.Result) string {
	ids := result.SpeakerIDs()
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		s := result.Speakers[id]
		share := 0.0
		if result.Metadata.TotalDuration > 0 {
			share = 100 * s.TotalDuration / result.Metadata.TotalDuration
		}
		rows = append(rows, []string{
			id,
			formatSeconds(s.TotalDuration),
			fmt.Sprintf("%.1f%%", share),
			fmt.Sprintf("%d", s.SegmentCount),
			formatSeconds(s.FirstAppearance),
			formatConfidence(s.MeanConfidence),
		})
	}
	return renderTable(
		[]string{"Speaker", "Talk time", "Share", "Segments", "First", "Confidence"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	)
}

func renderResultSummary(result transcript.Result) []string {
	meta := result.Metadata
	return []string{
		fmt.Sprintf("Language:    %s", language.DisplayName(meta.Language)),
		fmt.Sprintf("Model:       %s", meta.Model),
		fmt.Sprintf("Duration:    %s", formatSeconds(meta.TotalDuration)),
		fmt.Sprintf("Processing:  %s", formatSeconds(meta.ProcessingTime)),
		fmt.Sprintf("Segments:    %d", len(result.Segments)),
		fmt.Sprintf("Words:       %s", humanize.Comma(int64(meta.WordCount))),
		fmt.Sprintf("Speakers:    %d", meta.SpeakerCount),
		fmt.Sprintf("Confidence:  %s", formatConfidence(meta.MeanConfidence)),
	}
}

// sortedOutputs returns output format keys in a stable order.
func sortedOutputs(files map[string]string) []string {
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseStatuses(values []string) ([]jobs.Status, error) {
	var out []jobs.Status
	for _, raw := range values {
		for _, value := range strings.Split(raw, ",") {
			if strings.TrimSpace(value) == "" {
				continue
			}
			st, err := jobs.ParseStatus(value)
			if err != nil {
				return nil, err
			}
			out = append(out, st)
		}
	}
	return out, nil
}
