package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/api"
	"scribe/internal/config"
	"scribe/internal/deps"
	"scribe/internal/preflight"
	"scribe/internal/services/whisperx"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			bind := ctx.apiBind()
			client, err := api.NewClient(bind, ctx.apiToken())
			var resp api.StatusResponse
			if err == nil {
				resp, err = client.Status(cmd.Context())
			}
			if err != nil && !api.IsUnavailable(err) {
				return err
			}
			running := err == nil

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if !running {
				local := localStatus(cmd, cfg)
				if jsonOutput {
					return writeJSON(cmd, local)
				}
				printLocalStatus(out, cfg, bind, local, colorize)
				return nil
			}
			if jsonOutput {
				return writeJSON(cmd, resp)
			}
			printDaemonStatus(out, bind, resp, colorize)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	return cmd
}

type localStatusReport struct {
	Running      bool               `json:"running"`
	Device       string             `json:"device"`
	ComputeType  string             `json:"compute_type"`
	Dependencies []deps.Status      `json:"dependencies"`
	Checks       []preflight.Result `json:"checks"`
}

func localStatus(cmd *cobra.Command, cfg *config.Config) localStatusReport {
	device, computeType := whisperx.NewService(whisperx.ConfigFrom(cfg)).Device()
	return localStatusReport{
		Device:       device,
		ComputeType:  computeType,
		Dependencies: preflight.CheckSystemDeps(cfg),
		Checks:       preflight.RunAll(cmd.Context(), cfg),
	}
}

func printLocalStatus(out io.Writer, cfg *config.Config, bind string, report localStatusReport, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, fmt.Sprintf("Not running (%s)", fallbackText(bind, "no api_bind")), colorize))
	fmt.Fprintln(out, renderStatusLine("Watch folder", watchKind(cfg.Watch.Enabled), watchText(cfg.Watch.Enabled, cfg.Watch.Dir), colorize))
	fmt.Fprintln(out, renderStatusLine("Device", statusInfo, deviceText(report.Device, report.ComputeType), colorize))
	fmt.Fprintln(out)
	printDependencyLines(out, report.Dependencies, report.Checks, colorize)
}

func printDaemonStatus(out io.Writer, bind string, resp api.StatusResponse, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	kind := statusOK
	if resp.Status != "ok" {
		kind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", kind, fmt.Sprintf("%s, pid %d, %s (%s)", strings.ToUpper(resp.Status), resp.PID, bind, resp.Version), colorize))
	fmt.Fprintln(out, renderStatusLine("Started", statusInfo, formatAge(resp.Workflow.StartedAt), colorize))
	fmt.Fprintln(out, renderStatusLine("Jobs", statusInfo, fmt.Sprintf("%d active of %d slots; %s", resp.ActiveJobs(), resp.Workflow.MaxConcurrent, summarizeCounts(resp.Workflow.Counts)), colorize))
	if resp.Workflow.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, resp.Workflow.LastError, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Model", statusInfo, fmt.Sprintf("%s (%s)", resp.DefaultModel, strings.Join(resp.Models, ", ")), colorize))
	fmt.Fprintln(out, renderStatusLine("Language", statusInfo, resp.DefaultLanguage, colorize))
	fmt.Fprintln(out, renderStatusLine("Diarization", statusInfo, fmt.Sprintf("%s via %s", yesNo(resp.Diarization.Default), resp.Diarization.Backend), colorize))
	fmt.Fprintln(out, renderStatusLine("Device", statusInfo, deviceText(resp.Device, resp.ComputeType), colorize))
	fmt.Fprintln(out, renderStatusLine("Max upload", statusInfo, formatBytes(resp.MaxFileSizeMB*1024*1024), colorize))
	if resp.HistoryPath != "" {
		fmt.Fprintln(out, renderStatusLine("History", statusInfo, resp.HistoryPath, colorize))
	}
	fmt.Fprintln(out)
	printDependencyLines(out, resp.Dependencies, resp.Checks, colorize)
}

func printDependencyLines(out io.Writer, statuses []deps.Status, checks []preflight.Result, colorize bool) {
	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, dep := range statuses {
		switch {
		case dep.Available:
			fmt.Fprintln(out, renderStatusLine(dep.Name, statusOK, dep.Location(), colorize))
		case dep.Optional:
			fmt.Fprintln(out, renderStatusLine(dep.Name, statusWarn, fallbackText(dep.Detail, "not found (optional)"), colorize))
		default:
			fmt.Fprintln(out, renderStatusLine(dep.Name, statusError, fallbackText(dep.Detail, "not found"), colorize))
		}
	}
	if len(checks) == 0 {
		return
	}
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Checks", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, check := range checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
}

func watchKind(enabled bool) statusKind {
	if enabled {
		return statusOK
	}
	return statusInfo
}

func watchText(enabled bool, dir string) string {
	if !enabled {
		return "Disabled"
	}
	return dir
}

func fallbackText(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

func deviceText(device, computeType string) string {
	if computeType == "" {
		return fallbackText(device, "unknown")
	}
	return fmt.Sprintf("%s (%s)", fallbackText(device, "unknown"), computeType)
}
