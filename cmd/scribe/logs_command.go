package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/api"
	"scribe/internal/logging"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var jobID string
	var component string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				return streamLogs(cmd, client, api.LogQuery{
					Limit:     lines,
					Tail:      true,
					JobID:     jobID,
					Component: component,
				}, follow)
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for the daemon default)")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show lines for this job")
	cmd.Flags().StringVar(&component, "component", "", "Only show lines from this component")
	return cmd
}

func streamLogs(cmd *cobra.Command, client *api.Client, query api.LogQuery, follow bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	printed := false
	for {
		resp, err := client.Logs(ctx, query)
		if err != nil {
			if follow && errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		for _, evt := range resp.Events {
			fmt.Fprintln(out, formatLogEvent(evt))
			printed = true
		}
		if !follow {
			if !printed {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		}
		query.Since = resp.Next
		query.Limit = 200
		query.Tail = false
		query.Follow = true
	}
}

func formatLogEvent(evt logging.LogEvent) string {
	ts := evt.Timestamp.Local().Format("2006-01-02 15:04:05")
	level := strings.ToUpper(strings.TrimSpace(evt.Level))
	if level == "" {
		level = "INFO"
	}
	parts := []string{ts, level}
	if component := strings.TrimSpace(evt.Component); component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", component))
	}
	line := strings.Join(parts, " ")
	if subject := composeSubject(evt.JobID, evt.Stage); subject != "" {
		line += " " + subject
	}
	if message := strings.TrimSpace(evt.Message); message != "" {
		line += " - " + message
	}
	if len(evt.Fields) == 0 {
		return line
	}
	keys := make([]string, 0, len(evt.Fields))
	for k := range evt.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	builder := strings.Builder{}
	builder.WriteString(line)
	for _, key := range keys {
		value := strings.TrimSpace(evt.Fields[key])
		if value == "" {
			continue
		}
		builder.WriteString("\n    - ")
		builder.WriteString(key)
		builder.WriteString(": ")
		builder.WriteString(value)
	}
	return builder.String()
}

func composeSubject(jobID, stage string) string {
	jobID = shortID(strings.TrimSpace(jobID))
	stage = strings.TrimSpace(stage)
	switch {
	case jobID != "" && stage != "":
		return fmt.Sprintf("Job %s (%s)", jobID, stage)
	case jobID != "":
		return fmt.Sprintf("Job %s", jobID)
	default:
		return stage
	}
}
