package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/ipc"
	"scribe/internal/transcription"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var title string
	var transcribe bool
	cmd := &cobra.Command{
		Use:   "add <audio-file>",
		Short: "Register an audio file as a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.AddRecording(path, strings.TrimSpace(title))
				if err != nil {
					return err
				}
				var queued *ipc.TranscribeResponse
				if transcribe {
					queued, err = client.Transcribe(ipc.TranscribeRequest{RecordingID: resp.Recording.ID})
					if err != nil {
						return err
					}
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, resp.Recording)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Added recording %s (%s)\n", resp.Recording.ID, resp.Recording.Title)
				if queued != nil {
					fmt.Fprintf(out, "Queued transcription at position %d\n", queued.Task.Position)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Recording title (defaults to the file name)")
	cmd.Flags().BoolVar(&transcribe, "transcribe", false, "Queue a transcription right away")
	return cmd
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var strategy, model, language string
	var translate bool
	cmd := &cobra.Command{
		Use:   "transcribe <recording-id>",
		Short: "Queue a transcription for a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strategy != "" {
				if _, err := transcription.ParseStrategy(strategy); err != nil {
					return err
				}
			}
			req := ipc.TranscribeRequest{
				RecordingID: args[0],
				Strategy:    strategy,
				Model:       model,
				Language:    language,
			}
			if cmd.Flags().Changed("translate") {
				req.Translate = &translate
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Transcribe(req)
				if err != nil {
					return err
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if !resp.Added {
					fmt.Fprintf(out, "Recording %s is already queued at position %d\n", resp.Task.RecordingID, resp.Task.Position)
					return nil
				}
				fmt.Fprintf(out, "Queued %s via %s at position %d\n", resp.Task.RecordingID, resp.Task.Strategy, resp.Task.Position)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "Execution strategy: local or remote")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model name for local transcription")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Spoken language (BCP 47)")
	cmd.Flags().BoolVar(&translate, "translate", false, "Translate to English")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var segments bool
	cmd := &cobra.Command{
		Use:   "show <recording-id>",
		Short: "Show a recording and its transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ShowRecording(args[0])
				if err != nil {
					return err
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, resp.Recording)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderRecording(resp.Recording, colorize) {
					fmt.Fprintln(out, line)
				}
				if segments && len(resp.Recording.Segments) > 0 {
					fmt.Fprintln(out)
					fmt.Fprint(out, renderSegments(resp.Recording.Segments))
					return nil
				}
				if text := strings.TrimSpace(resp.Recording.Text); text != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, text)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&segments, "segments", false, "Print time-stamped segments instead of plain text")
	return cmd
}

func newRecordingsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recordings",
		Short: "List registered recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RecordingList()
				if err != nil {
					return err
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, resp.Recordings)
				}
				out := cmd.OutOrStdout()
				if len(resp.Recordings) == 0 {
					fmt.Fprintln(out, "No recordings")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(resp.Recordings))
				for _, rec := range resp.Recordings {
					rows = append(rows, []string{
						rec.ID,
						rec.Title,
						rec.Duration,
						colorText(rec.Status.Kind, transcriptionKind(rec.Status.Kind), colorize),
						rec.Status.Description,
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Title", "Duration", "Status", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func renderRecording(rec ipc.Recording, colorize bool) []string {
	lines := renderSectionHeader(rec.Title, colorize)
	lines = append(lines,
		renderStatusLine("ID", statusInfo, rec.ID, colorize),
		renderStatusLine("File", statusInfo, rec.AudioPath, colorize),
	)
	if rec.Duration != "" {
		lines = append(lines, renderStatusLine("Duration", statusInfo, rec.Duration, colorize))
	}
	if rec.Strategy != "" {
		engine := rec.Strategy
		if rec.Model != "" {
			engine += " (" + rec.Model + ")"
		}
		lines = append(lines, renderStatusLine("Engine", statusInfo, engine, colorize))
	}
	lines = append(lines, renderStatusLine("Status", transcriptionKind(rec.Status.Kind), rec.Status.Description, colorize))
	return lines
}

func renderSegments(segments []ipc.Segment) string {
	rows := make([][]string, 0, len(segments))
	for _, seg := range segments {
		rows = append(rows, []string{formatOffset(seg.StartMS), formatOffset(seg.EndMS), seg.Text})
	}
	return renderTable([]string{"Start", "End", "Text"}, rows, []columnAlignment{alignRight, alignRight, alignLeft})
}

func formatOffset(ms int64) string {
	total := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", total/3600, (total/60)%60, total%60, ms%1000)
}
