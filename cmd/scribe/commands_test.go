package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scribe/internal/ipc"
	"scribe/internal/testsupport"
	"scribe/internal/transcription"
)

func TestStatusReportsRunningDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "[OK] running")
	requireContains(t, out, "0 (0 runnable)")
	requireContains(t, out, "== System Checks ==")
	requireContains(t, out, "Data directory")
}

func TestStatusWithoutDaemonFallsBackToDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, []string{"status"}, "", configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "[WARN] not running")
}

func TestAddTranscribeAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	audio := filepath.Join(t.TempDir(), "standup.wav")
	testsupport.WriteWAV(t, audio, 16000, 2)

	out, _, err := runCLI(t, []string{"--json", "add", "--title", "Standup", audio}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	var rec ipc.Recording
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("decode add output: %v\n%s", err, out)
	}
	if rec.ID == "" || rec.Title != "Standup" {
		t.Fatalf("unexpected recording %+v", rec)
	}

	out, _, err = runCLI(t, []string{"transcribe", rec.ID, "--strategy", "local"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	requireContains(t, out, "via local")

	ctx := context.Background()
	waitFor(t, 5*time.Second, func() bool {
		got, err := env.daemon.Recording(ctx, rec.ID)
		return err == nil && got.Transcription != nil && got.Transcription.Status.Kind == transcription.KindDone
	})

	out, _, err = runCLI(t, []string{"show", rec.ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "== Standup ==")
	requireContains(t, out, "hello from the standup")

	out, _, err = runCLI(t, []string{"show", "--segments", rec.ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("show segments: %v", err)
	}
	requireContains(t, out, "00:00:01.500")

	out, _, err = runCLI(t, []string{"recordings"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("recordings: %v", err)
	}
	requireContains(t, out, rec.ID)
	requireContains(t, out, "done")

	out, _, err = runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestTranscribeRejectsUnknownStrategy(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"transcribe", "rec-1", "--strategy", "cloud"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestCancelArguments(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"cancel"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error without recording id")
	}
	if _, _, err := runCLI(t, []string{"cancel", "--all", "rec-1"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error when combining --all with an id")
	}

	out, _, err := runCLI(t, []string{"cancel", "missing"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "No task found")

	out, _, err = runCLI(t, []string{"cancel", "--all"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cancel all: %v", err)
	}
	requireContains(t, out, "Canceled 0 task(s)")
}

func TestAppLifecycleCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"app", "background"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("app background: %v", err)
	}
	requireContains(t, out, "entered background")

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Background:")

	out, _, err = runCLI(t, []string{"app", "foreground"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("app foreground: %v", err)
	}
	requireContains(t, out, "entered foreground")
}

func TestLogsPrintsTail(t *testing.T) {
	env := setupCLITestEnv(t)
	for _, line := range []string{"first", "second", "third"} {
		if err := appendLine(env.logPath, line); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "first") {
		t.Fatalf("expected only the last two lines, got:\n%s", out)
	}
	requireContains(t, out, "second")
	requireContains(t, out, "third")
}

func TestCommandsWithoutDaemonExplainHowToStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	_, _, err := runCLI(t, []string{"queue", "list"}, "", configPath)
	if err == nil || !strings.Contains(err.Error(), "scribe start") {
		t.Fatalf("expected start hint, got %v", err)
	}
}

func TestFormatOffset(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "00:00:00.000"},
		{1500, "00:00:01.500"},
		{3_723_004, "01:02:03.004"},
	}
	for _, tc := range tests {
		if got := formatOffset(tc.ms); got != tc.want {
			t.Fatalf("formatOffset(%d) = %q, want %q", tc.ms, got, tc.want)
		}
	}
}

func TestTaskState(t *testing.T) {
	tests := []struct {
		task ipc.Task
		want string
	}{
		{ipc.Task{Active: true}, "running"},
		{ipc.Task{Paused: true, PauseProgress: 0.4}, "paused at 40%"},
		{ipc.Task{OffsetMS: 1000}, "queued (resumable)"},
		{ipc.Task{}, "queued"},
	}
	for _, tc := range tests {
		if got := taskState(tc.task, false); got != tc.want {
			t.Fatalf("taskState(%+v) = %q, want %q", tc.task, got, tc.want)
		}
	}
}
