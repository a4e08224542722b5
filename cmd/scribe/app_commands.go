package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scribe/internal/ipc"
)

// newAppCommand forwards host lifecycle transitions to the daemon so it can
// start or release the background execution grant.
func newAppCommand(ctx *commandContext) *cobra.Command {
	appCmd := &cobra.Command{
		Use:   "app",
		Short: "Signal application lifecycle changes to the daemon",
	}
	events := []struct {
		name  string
		short string
	}{
		{"background", "Enter background mode and start the execution grant"},
		{"foreground", "Return to the foreground and release the grant"},
		{"suspend", "Pause the active task as if the app were suspended"},
	}
	for _, event := range events {
		appCmd.AddCommand(&cobra.Command{
			Use:   event.name,
			Short: event.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := client.Lifecycle(event.name)
					if err != nil {
						return err
					}
					if ctx.wantJSON() {
						return writeJSON(cmd, resp)
					}
					fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
					return nil
				})
			},
		})
	}
	return appCmd
}
