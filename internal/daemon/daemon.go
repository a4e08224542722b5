package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"scribe/internal/catalog"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/metrics"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/transcription"
	"scribe/internal/workflow"
)

// Lifecycle events accepted by Lifecycle.
const (
	LifecycleBackground = "background"
	LifecycleForeground = "foreground"
	LifecycleSuspend    = "suspend"
)

// Daemon coordinates the scheduler and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	catalog  *catalog.Store
	workflow *workflow.Manager
	metrics  *metrics.Metrics
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	Workflow      workflow.StatusSummary
	QueueDBPath   string
	CatalogDBPath string
	LockFilePath  string
}

// New constructs a daemon with initialized dependencies. mt may be nil.
func New(cfg *config.Config, store *queue.Store, cat *catalog.Store, logger *slog.Logger, wf *workflow.Manager, mt *metrics.Metrics) (*Daemon, error) {
	if cfg == nil || store == nil || cat == nil || wf == nil {
		return nil, errors.New("daemon requires config, queue store, catalog, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		catalog:  cat,
		workflow: wf,
		metrics:  mt,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, reconciles the queue, and launches the
// scheduler and HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scribe daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	result, err := d.workflow.Reconcile(d.ctx)
	if err != nil {
		d.abortStart()
		return fmt.Errorf("reconcile queue: %w", err)
	}
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("scribe daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("pending", result.Pending),
		logging.Int("paused", result.Paused),
		logging.Int("orphaned", result.Orphaned),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock. The task in
// flight stays at the head of the queue with its checkpoint.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.workflow.Stop()
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("scribe daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return errors.Join(d.store.Close(), d.catalog.Close())
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		Workflow:      d.workflow.Status(ctx),
		QueueDBPath:   d.cfg.QueueDBPath(),
		CatalogDBPath: d.cfg.CatalogDBPath(),
		LockFilePath:  d.lockPath,
	}
}

// LogPath returns the daemon log file.
func (d *Daemon) LogPath() string {
	return filepath.Join(d.cfg.Paths.LogDir, logging.LogFileName)
}

// Workflow exposes the scheduler for read-only callers.
func (d *Daemon) Workflow() *workflow.Manager {
	return d.workflow
}

// Catalog exposes the recording catalog for read-only callers.
func (d *Daemon) Catalog() *catalog.Store {
	return d.catalog
}

// Metrics returns the daemon's metrics, possibly nil.
func (d *Daemon) Metrics() *metrics.Metrics {
	return d.metrics
}

// AddRecording registers an audio file in the catalog.
func (d *Daemon) AddRecording(ctx context.Context, audioPath, title string) (*transcription.Recording, error) {
	rec, err := d.catalog.Add(ctx, strings.TrimSpace(audioPath), strings.TrimSpace(title))
	if err != nil {
		return nil, err
	}
	d.logger.Info("recording added",
		logging.String(logging.FieldRecordingID, rec.ID),
		logging.String("title", rec.Title),
		logging.String("audio_path", rec.AudioPath),
	)
	return rec, nil
}

// Transcribe enqueues a task for recordingID.
func (d *Daemon) Transcribe(ctx context.Context, recordingID string, opts ...workflow.TaskOption) (*transcription.Task, bool, error) {
	return d.workflow.Enqueue(ctx, strings.TrimSpace(recordingID), opts...)
}

// Cancel cancels the task for recordingID, running or pending.
func (d *Daemon) Cancel(ctx context.Context, recordingID string) (bool, error) {
	return d.workflow.CancelTask(ctx, strings.TrimSpace(recordingID))
}

// CancelAll cancels every task.
func (d *Daemon) CancelAll(ctx context.Context) (int, error) {
	return d.workflow.CancelAll(ctx)
}

// Resume moves the paused task for recordingID to the head of the queue.
func (d *Daemon) Resume(ctx context.Context, recordingID string) (*transcription.Task, error) {
	return d.workflow.ResumeTask(ctx, strings.TrimSpace(recordingID))
}

// ListQueue returns the ordered queue.
func (d *Daemon) ListQueue(ctx context.Context) ([]transcription.Task, error) {
	return d.workflow.QueueSnapshot(ctx)
}

// Recording returns a catalog entry or an ErrNotFound error.
func (d *Daemon) Recording(ctx context.Context, id string) (*transcription.Recording, error) {
	rec, err := d.catalog.Recording(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "show recording",
			fmt.Sprintf("recording %s not found", id), nil)
	}
	return rec, nil
}

// Recordings lists the catalog.
func (d *Daemon) Recordings(ctx context.Context) ([]transcription.Recording, error) {
	return d.catalog.List(ctx)
}

// Lifecycle forwards an application lifecycle event to the scheduler and
// returns a short description of the effect.
func (d *Daemon) Lifecycle(ctx context.Context, event string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(event)) {
	case LifecycleBackground:
		d.workflow.EnterBackground(ctx)
		return "entered background", nil
	case LifecycleForeground:
		if err := d.workflow.EnterForeground(ctx); err != nil {
			return "", err
		}
		return "entered foreground", nil
	case LifecycleSuspend:
		if d.workflow.Suspend(ctx) {
			return "active task paused", nil
		}
		return "no active task", nil
	default:
		return "", services.Wrap(services.ErrValidation, "daemon", "lifecycle",
			fmt.Sprintf("unknown lifecycle event %q", event), nil)
	}
}
