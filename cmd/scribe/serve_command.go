package main

import (
	"github.com/spf13/cobra"

	"scribe/internal/daemon"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the transcription daemon in the foreground",
		Long: "Run the transcription daemon in the foreground. The HTTP API listens on\n" +
			"paths.api_bind and, when watch.enabled is set, media dropped into watch.dir\n" +
			"is queued automatically. Stop with Ctrl+C.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind := flagValue(ctx.apiFlag); bind != "" {
				cfg.Paths.APIBind = bind
			}
			if token := flagValue(ctx.tokenFlag); token != "" {
				cfg.Paths.APIToken = token
			}
			return daemon.Run(cmd.Context(), cfg, daemon.RunOptions{
				LogLevel:    logLevel,
				Development: development,
				Version:     version,
			})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "dev", false, "Enable development logging (source locations)")
	return cmd
}
