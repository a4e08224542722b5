package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/daemonrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Run the scribe daemon in the foreground",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if ctx.socketFlag != nil && strings.TrimSpace(*ctx.socketFlag) != "" && *ctx.socketFlag != cfg.SocketPath() {
				return fmt.Errorf("--socket must match data_dir for the daemon (%s)", cfg.SocketPath())
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	return cmd
}
