package workflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"scribe/internal/background"
	"scribe/internal/catalog"
	"scribe/internal/config"
	"scribe/internal/executor"
	"scribe/internal/queue"
	"scribe/internal/testsupport"
	"scribe/internal/transcription"
	"scribe/internal/workflow"
)

// historyCatalog records every distinct status a transcription passes through.
type historyCatalog struct {
	*catalog.Store

	mu       sync.Mutex
	history  map[string][]transcription.Status
	onLookup func(id string)
	onUpdate func(id string)
}

// gateLookup blocks the first Recording call until release is closed.
func (c *historyCatalog) gateLookup(entered chan<- struct{}, release <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLookup = gateOnce(entered, release)
}

// gateUpdate blocks the first UpdateTranscription call until release is closed.
func (c *historyCatalog) gateUpdate(entered chan<- struct{}, release <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = gateOnce(entered, release)
}

func gateOnce(entered chan<- struct{}, release <-chan struct{}) func(string) {
	var once sync.Once
	return func(string) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
}

func (c *historyCatalog) Recording(ctx context.Context, id string) (*transcription.Recording, error) {
	c.mu.Lock()
	hook := c.onLookup
	c.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return c.Store.Recording(ctx, id)
}

func (c *historyCatalog) UpdateTranscription(ctx context.Context, id string, mutate func(*transcription.Transcription) error) (*transcription.Transcription, error) {
	c.mu.Lock()
	hook := c.onUpdate
	c.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	tr, err := c.Store.UpdateTranscription(ctx, id, mutate)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.history[id]
	if len(h) == 0 || h[len(h)-1] != tr.Status {
		c.history[id] = append(h, tr.Status)
	}
	return tr, nil
}

func (c *historyCatalog) kinds(id string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.history[id]))
	for _, s := range c.history[id] {
		switch s.Kind {
		case transcription.KindProgress, transcription.KindUploading:
			out = append(out, fmt.Sprintf("%s(%.1f)", s.Kind, s.Progress))
		default:
			out = append(out, string(s.Kind))
		}
	}
	return out
}

// fakeExecutor runs behave for each task and tracks concurrency.
type fakeExecutor struct {
	name   string
	behave func(ctx context.Context, env *executor.Envelope, attempt int) error

	mu         sync.Mutex
	order      []string
	attempts   map[string]int
	running    int
	maxRunning int
	cancels    map[string]context.CancelCauseFunc
}

func newFakeExecutor(behave func(ctx context.Context, env *executor.Envelope, attempt int) error) *fakeExecutor {
	return &fakeExecutor{
		name:     string(transcription.StrategyLocal),
		behave:   behave,
		attempts: make(map[string]int),
		cancels:  make(map[string]context.CancelCauseFunc),
	}
}

func (f *fakeExecutor) Name() string { return f.name }

func (f *fakeExecutor) Process(ctx context.Context, env *executor.Envelope) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	f.mu.Lock()
	f.order = append(f.order, env.Recording.Title)
	f.attempts[env.Recording.Title]++
	attempt := f.attempts[env.Recording.Title]
	f.running++
	f.maxRunning = max(f.maxRunning, f.running)
	f.cancels[env.Task.ID] = cancel
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running--
		delete(f.cancels, env.Task.ID)
		f.mu.Unlock()
	}()

	if f.behave == nil {
		return succeed(ctx, env)
	}
	return f.behave(ctx, env, attempt)
}

func (f *fakeExecutor) Cancel(taskID string, cause error) {
	f.mu.Lock()
	cancel := f.cancels[taskID]
	f.mu.Unlock()
	if cancel != nil {
		cancel(cause)
	}
}

func (f *fakeExecutor) processed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func succeed(ctx context.Context, env *executor.Envelope) error {
	return env.Update(ctx, func(tr *transcription.Transcription) error {
		tr.ResetForAttempt(env.Task)
		if err := tr.Apply(transcription.InProgress(0, 0)); err != nil {
			return err
		}
		tr.AppendSegment(transcription.Segment{StartMS: 0, EndMS: 1000, Text: env.Recording.Title})
		return nil
	})
}

func reportProgress(ctx context.Context, env *executor.Envelope, progress float64, offset int64) error {
	return env.Update(ctx, func(tr *transcription.Transcription) error {
		if tr.Status.Kind != transcription.KindProgress {
			tr.ResetForAttempt(env.Task)
		}
		return tr.Apply(transcription.InProgress(progress, offset))
	})
}

// blockUntilStopped waits for cancellation, tries one late write, and
// returns the cancellation cause.
func blockUntilStopped(ctx context.Context, env *executor.Envelope) error {
	<-ctx.Done()
	_ = env.Update(context.Background(), func(tr *transcription.Transcription) error {
		tr.AppendSegment(transcription.Segment{StartMS: 9000, EndMS: 9500, Text: "late"})
		return nil
	})
	return context.Cause(ctx)
}

type harness struct {
	cfg     *config.Config
	store   *queue.Store
	catalog *historyCatalog
	coord   *background.TimedCoordinator
	mgr     *workflow.Manager
}

func newHarness(t *testing.T, execs []executor.Executor, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	return newHarnessWithBudget(t, 0, execs, opts...)
}

// newHarnessWithBudget overrides the background grant budget when budget > 0.
func newHarnessWithBudget(t *testing.T, budget time.Duration, execs []executor.Executor, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	cat := &historyCatalog{Store: testsupport.MustOpenCatalog(t, cfg), history: make(map[string][]transcription.Status)}
	if budget <= 0 {
		budget = cfg.GrantDuration()
	}
	coord := background.NewTimedCoordinator(budget, nil)
	t.Cleanup(coord.Close)

	managerOpts := []workflow.ManagerOption{workflow.WithCoordinator(coord)}
	for _, exec := range execs {
		managerOpts = append(managerOpts, workflow.WithExecutor(exec))
	}
	mgr := workflow.NewManager(cfg, store, cat, nil, managerOpts...)
	return &harness{cfg: cfg, store: store, catalog: cat, coord: coord, mgr: mgr}
}

func (h *harness) recording(t *testing.T, title string) *transcription.Recording {
	t.Helper()
	return testsupport.NewRecording(t, h.catalog.Store, h.cfg, title, 1)
}

func (h *harness) enqueue(t *testing.T, rec *transcription.Recording, opts ...workflow.TaskOption) *transcription.Task {
	t.Helper()
	task, added, err := h.mgr.Enqueue(context.Background(), rec.ID, opts...)
	if err != nil {
		t.Fatalf("Enqueue(%s): %v", rec.Title, err)
	}
	if !added {
		t.Fatalf("Enqueue(%s): expected new task", rec.Title)
	}
	return task
}

func (h *harness) transcription(t *testing.T, rec *transcription.Recording) *transcription.Transcription {
	t.Helper()
	got, err := h.catalog.Recording(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Recording: %v", err)
	}
	if got == nil || got.Transcription == nil {
		t.Fatalf("recording %s has no transcription", rec.Title)
	}
	return got.Transcription
}

func (h *harness) processAsync() <-chan error {
	done := make(chan error, 1)
	go func() { done <- h.mgr.ProcessTasks(context.Background()) }()
	return done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitErr(t *testing.T, ch <-chan error) {
	t.Helper()
	select {
	case err := <-ch:
		if err != nil {
			t.Fatalf("ProcessTasks: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ProcessTasks did not return")
	}
}

func assertOrder(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}
