package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"scribe/internal/ipc"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the transcription queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List queued tasks in processing order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueList()
				if err != nil {
					return err
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, resp.Items)
				}
				out := cmd.OutOrStdout()
				if len(resp.Items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"#", "Recording", "Strategy", "Model", "State", "Updated"},
					buildQueueRows(resp.Items, shouldColorize(out)),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func buildQueueRows(items []ipc.Task, colorize bool) [][]string {
	rows := make([][]string, 0, len(items))
	for _, task := range items {
		rows = append(rows, []string{
			strconv.Itoa(task.Position),
			task.RecordingID,
			task.Strategy,
			task.Model,
			taskState(task, colorize),
			task.UpdatedAt,
		})
	}
	return rows
}

func taskState(task ipc.Task, colorize bool) string {
	switch {
	case task.Active:
		return colorText("running", statusOK, colorize)
	case task.Paused:
		return colorText(fmt.Sprintf("paused at %.0f%%", task.PauseProgress*100), statusWarn, colorize)
	case task.RemoteJobID != "" || task.OffsetMS > 0:
		return "queued (resumable)"
	default:
		return "queued"
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "cancel [recording-id]",
		Short: "Cancel a queued or running transcription",
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("--all does not take a recording id")
			}
			if !all && len(args) != 1 {
				return errors.New("specify a recording id or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				if all {
					resp, err := client.CancelAll()
					if err != nil {
						return err
					}
					if ctx.wantJSON() {
						return writeJSON(cmd, resp)
					}
					fmt.Fprintf(out, "Canceled %d task(s)\n", resp.Canceled)
					return nil
				}
				resp, err := client.Cancel(args[0])
				if err != nil {
					return err
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, resp)
				}
				if !resp.Canceled {
					fmt.Fprintf(out, "No task found for recording %s\n", args[0])
					return nil
				}
				fmt.Fprintf(out, "Canceled transcription of %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Cancel every queued and running task")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <recording-id>",
		Short: "Resume a paused transcription ahead of other queued work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Resume(args[0])
				if err != nil {
					return err
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, resp.Task)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resumed %s at position %d\n", resp.Task.RecordingID, resp.Task.Position)
				return nil
			})
		},
	}
}
