package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scribe/internal/config"
	"scribe/internal/daemon"
	"scribe/internal/executor"
	"scribe/internal/ipc"
	"scribe/internal/metrics"
	"scribe/internal/testsupport"
	"scribe/internal/transcription"
	"scribe/internal/workflow"
)

type instantExecutor struct{}

func (instantExecutor) Name() string { return string(transcription.StrategyLocal) }

func (instantExecutor) Process(ctx context.Context, env *executor.Envelope) error {
	return env.Update(ctx, func(tr *transcription.Transcription) error {
		tr.ResetForAttempt(env.Task)
		tr.AppendSegment(transcription.Segment{StartMS: 0, EndMS: 1500, Text: "hello from the standup"})
		return tr.Apply(transcription.InProgress(1, 1500))
	})
}

func (instantExecutor) Cancel(string, error) {}

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	socketPath string
	configPath string
	logPath    string
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	var buf bytes.Buffer
	if err := cfg.Encode(&buf, true); err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := writeTestConfig(t, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	cat := testsupport.MustOpenCatalog(t, cfg)
	mgr := workflow.NewManager(cfg, store, cat, nil, workflow.WithExecutor(instantExecutor{}))
	d, err := daemon.New(cfg, store, cat, nil, mgr, metrics.New())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, nil)
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
		logPath:    d.LogPath(),
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected output to contain %q, got:\n%s", substr, output)
	}
}
