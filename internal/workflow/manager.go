package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scribe/internal/background"
	"scribe/internal/config"
	"scribe/internal/executor"
	"scribe/internal/logging"
	"scribe/internal/metrics"
	"scribe/internal/queue"
	"scribe/internal/transcription"
)

// Catalog is the recording collaborator the scheduler reads and updates.
type Catalog interface {
	Recording(ctx context.Context, id string) (*transcription.Recording, error)
	UpdateTranscription(ctx context.Context, id string, mutate func(*transcription.Transcription) error) (*transcription.Transcription, error)
}

// Manager is the single-flight transcription scheduler.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	catalog      Catalog
	logger       *slog.Logger
	pollInterval time.Duration
	retryDelay   time.Duration

	executors   map[transcription.Strategy]executor.Executor
	coordinator background.Coordinator
	metrics     *metrics.Metrics

	kick chan struct{}

	// claimMu orders task pickup against enqueue and cancel so a task is
	// either claimed by the run loop or mutated by a request, never both.
	claimMu sync.Mutex

	mu       sync.RWMutex
	running  bool
	stopping bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	draining bool
	active   *activeTask
	lastErr  error
	lastTask *transcription.Task

	subsMu  sync.Mutex
	subs    map[int]chan bool
	nextSub int
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithExecutor registers an executor under its Name.
func WithExecutor(exec executor.Executor) ManagerOption {
	return func(m *Manager) {
		m.executors[transcription.Strategy(exec.Name())] = exec
	}
}

// WithCoordinator replaces the default background coordinator.
func WithCoordinator(c background.Coordinator) ManagerOption {
	return func(m *Manager) {
		m.coordinator = c
	}
}

// WithMetrics records scheduler metrics.
func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager constructs a scheduler over store and catalog.
func NewManager(cfg *config.Config, store *queue.Store, catalog Catalog, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		catalog:      catalog,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		retryDelay:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		executors:    make(map[transcription.Strategy]executor.Executor),
		kick:         make(chan struct{}, 1),
		subs:         make(map[int]chan bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.coordinator == nil {
		m.coordinator = background.NewTimedCoordinator(cfg.GrantDuration(), logger)
	}
	return m
}

// activeTask is the Processing(taskID) state.
type activeTask struct {
	task      transcription.Task
	executor  executor.Executor
	startedAt time.Time

	mu      sync.Mutex
	sealed  bool
	cause   error
	requeue bool
}

// sealLocked stops further Transcription writes. It reports false if already
// sealed. The caller holds a.mu.
func (a *activeTask) sealLocked(cause error, requeue bool) bool {
	if a.sealed {
		return false
	}
	a.sealed = true
	a.cause = cause
	a.requeue = requeue
	return true
}
