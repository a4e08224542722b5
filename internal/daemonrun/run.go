// Package daemonrun assembles the daemon process: logger, stores, executors,
// scheduler, IPC socket, and signal handling.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"scribe/internal/background"
	"scribe/internal/catalog"
	"scribe/internal/config"
	"scribe/internal/daemon"
	"scribe/internal/executor"
	"scribe/internal/ipc"
	"scribe/internal/logging"
	"scribe/internal/metrics"
	"scribe/internal/models"
	"scribe/internal/preflight"
	"scribe/internal/queue"
	"scribe/internal/remote"
	"scribe/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the scribe daemon and blocks until a signal or a Stop request.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logCfg := *cfg
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		logCfg.Logging.Level = level
	}
	sessionID := uuid.NewString()
	logger, err := logging.NewFromConfig(&logCfg, sessionID)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)
	for _, check := range preflight.Failed(preflight.RunAll(signalCtx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldImpact, "transcriptions depending on this check will fail"),
		)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "scribe.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	cat, err := catalog.Open(cfg)
	if err != nil {
		store.Close()
		logger.Error("open recording catalog", logging.Error(err))
		return err
	}

	mt := metrics.New()
	coordinator := background.NewTimedCoordinator(cfg.GrantDuration(), logger)
	defer coordinator.Close()

	local := executor.NewLocal(executor.LocalOptions{
		Loader:      models.NewDirLoader(cfg.Local.ModelsDir),
		Engines:     executor.SherpaFactory(cfg.Local),
		Memory:      executor.SystemMemory,
		HeadroomMiB: cfg.Local.MemoryHeadroomMiB,
		Logger:      logger,
	})
	defer local.Close()
	remoteClient := remote.NewFromConfig(cfg)
	defer remoteClient.Close()

	manager := workflow.NewManager(cfg, store, cat, logger,
		workflow.WithExecutor(local),
		workflow.WithExecutor(executor.NewRemote(remoteClient, cfg.PollInterval(), logger)),
		workflow.WithCoordinator(coordinator),
		workflow.WithMetrics(mt),
	)

	d, err := daemon.New(cfg, store, cat, logger, manager, mt)
	if err != nil {
		store.Close()
		cat.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	runCtx, stop := context.WithCancel(signalCtx)
	defer stop()
	ipcServer, err := ipc.NewServer(runCtx, cfg.SocketPath(), d, logger, ipc.WithShutdown(stop))
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(runCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running daemon and database access"),
			logging.String(logging.FieldImpact, "queued transcriptions will not run"),
		)
		return err
	}

	<-runCtx.Done()
	logger.Info("scribe daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	available, _ := models.NewDirLoader(cfg.Local.ModelsDir).Available()
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("strategy", cfg.Transcription.Strategy),
		logging.String("model", cfg.Transcription.Model),
		logging.String("language", cfg.Transcription.Language),
		logging.String("models_dir", cfg.Local.ModelsDir),
		logging.Int("models_available", len(available)),
		logging.String("remote_base_url", cfg.Remote.BaseURL),
		logging.Bool("remote_key_present", cfg.Remote.APIKey != ""),
		logging.Bool("auto_resume", cfg.Background.AutoResume),
		logging.String("api_bind", cfg.Paths.APIBind),
	)
}
