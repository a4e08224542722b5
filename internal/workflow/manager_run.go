package workflow

import (
	"context"
	"errors"
	"time"

	"scribe/internal/executor"
	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/transcription"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.executors) == 0 {
		m.mu.Unlock()
		return errors.New("workflow executors not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.stopping = false
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx)
	m.Kick()
	return nil
}

// Stop interrupts the active task, leaving it queued with its checkpoint,
// and waits for the run loop to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.stopping = true
	m.cancel = nil
	m.mu.Unlock()

	m.interruptActive(context.Background(), "", "scheduler stopping", true)
	cancel()
	m.wg.Wait()
}

// Kick wakes the run loop if it is idle.
func (m *Manager) Kick() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		if err := m.ProcessTasks(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("queue processing failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			m.wait(ctx, m.retryDelay)
			continue
		}
		m.wait(ctx, m.pollInterval)
	}
}

func (m *Manager) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-m.kick:
	case <-timer.C:
	}
}

// ProcessTasks drains the queue one task at a time. It returns immediately
// when another call is already draining.
func (m *Manager) ProcessTasks(ctx context.Context) error {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return nil
	}
	m.draining = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.draining = false
		m.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if m.isStopping() {
			return nil
		}
		task, err := m.store.PeekHead(ctx)
		if err != nil {
			m.setLastError(err)
			return err
		}
		if task == nil {
			return nil
		}
		if err := m.runTask(ctx, *task); err != nil {
			m.setLastError(err)
			return err
		}
	}
}

// runTask executes one task and folds its outcome back into the queue and
// catalog. Errors are returned only for bookkeeping failures.
func (m *Manager) runTask(ctx context.Context, head transcription.Task) error {
	active, err := m.claim(ctx, head)
	if err != nil {
		return err
	}
	if active == nil {
		return nil
	}
	defer m.setActive(nil)

	task := active.task
	taskCtx := services.WithTaskID(ctx, task.ID)
	taskCtx = services.WithRecordingID(taskCtx, task.RecordingID)
	taskCtx = services.WithStrategy(taskCtx, string(task.Strategy))
	logger := logging.WithContext(taskCtx, m.logger)
	bookCtx := context.WithoutCancel(taskCtx)

	rec, err := m.catalog.Recording(ctx, task.RecordingID)
	if err != nil {
		return err
	}
	if rec == nil {
		logger.Warn("dropping task for missing recording",
			logging.String(logging.FieldEventType, "task_orphaned"),
			logging.String(logging.FieldImpact, "task removed from queue"),
		)
		_, err := m.store.Remove(bookCtx, task.ID)
		return err
	}

	if active.executor == nil {
		failure := services.Wrap(services.ErrConfiguration, "workflow", "dispatch",
			"no executor for strategy "+string(task.Strategy), nil)
		m.finish(bookCtx, active, failure)
		return nil
	}

	// Canceled or interrupted while the recording was looked up.
	active.mu.Lock()
	sealed, cause := active.sealed, active.cause
	active.mu.Unlock()
	if sealed {
		m.finish(bookCtx, active, cause)
		return nil
	}

	grant := m.coordinator.BeginGrant(func() {
		m.interruptActive(bookCtx, task.ID, "background execution time expired", false)
	})
	if m.coordinator.InBackground() {
		m.coordinator.ScheduleContinuation(m.cfg.ContinuationDelay(), m.Kick)
	}
	logger.Info("task started",
		logging.String(logging.FieldEventType, "task_started"),
		logging.String("model", task.Model),
		logging.Int64("offset_ms", task.OffsetMS),
	)

	env := &executor.Envelope{
		Task:       task,
		Recording:  *rec,
		Update:     m.guardedUpdate(active, rec.ID),
		Checkpoint: m.checkpointer(active),
	}
	procErr := active.executor.Process(taskCtx, env)

	active.mu.Lock()
	active.sealLocked(nil, false)
	active.mu.Unlock()

	m.finish(bookCtx, active, procErr)
	m.coordinator.EndGrant(grant)
	return nil
}

// claim re-reads the head task and makes it the active task. It returns nil
// when the task left the queue after it was peeked.
func (m *Manager) claim(ctx context.Context, head transcription.Task) (*activeTask, error) {
	m.claimMu.Lock()
	defer m.claimMu.Unlock()
	task, err := m.store.Get(ctx, head.ID)
	if err != nil {
		return nil, err
	}
	if task == nil || task.Paused {
		return nil, nil
	}
	active := &activeTask{
		task:      *task,
		executor:  m.executors[task.Strategy],
		startedAt: time.Now(),
	}
	m.setActive(active)
	return active, nil
}

func (m *Manager) finish(ctx context.Context, active *activeTask, procErr error) {
	task := active.task
	logger := logging.WithContext(ctx, m.logger)

	var outcome executor.Outcome
	var status transcription.Status
	_, err := m.catalog.UpdateTranscription(ctx, task.RecordingID, func(tr *transcription.Transcription) error {
		outcome = executor.Finalize(tr, task, procErr, time.Now())
		status = tr.Status
		return nil
	})
	if err != nil {
		logger.Error("failed to record task outcome", logging.Error(err))
		outcome = executor.OutcomeOf(procErr)
	}

	switch {
	case outcome == executor.OutcomePaused && active.requeue:
		logger.Info("task interrupted; left at queue head", logging.String("reason", status.Message))
	case outcome == executor.OutcomePaused:
		if err := m.store.MarkPaused(ctx, task.ID, status.Progress, status.OffsetMS); err != nil {
			logger.Error("failed to mark task paused", logging.Error(err))
		}
	default:
		if _, err := m.store.Remove(ctx, task.ID); err != nil {
			logger.Error("failed to remove finished task", logging.Error(err))
		}
	}

	elapsed := time.Since(active.startedAt)
	m.metrics.TaskFinished(string(task.Strategy), string(outcome), elapsed)
	m.setLastTask(task)
	m.refreshQueueDepth(ctx)

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "task_finished"),
		logging.String("outcome", string(outcome)),
		logging.Duration("elapsed", elapsed),
	}
	switch outcome {
	case executor.OutcomeFailed:
		details := services.Details(procErr)
		attrs = append(attrs,
			logging.Alert("task_failure"),
			logging.String("error_kind", details.Kind),
			logging.String("error_operation", details.Operation),
			logging.String("error_message", status.Message),
			logging.Error(procErr),
		)
		m.setLastError(procErr)
		logger.Error("task failed", logging.Args(attrs...)...)
	case executor.OutcomePaused:
		attrs = append(attrs, logging.Float64("progress", status.Progress), logging.String("reason", status.Message))
		logger.Info("task paused", logging.Args(attrs...)...)
	default:
		logger.Info("task finished", logging.Args(attrs...)...)
	}
}

// guardedUpdate serialises writes with cancellation: once the task is sealed
// no mutation reaches the catalog.
func (m *Manager) guardedUpdate(active *activeTask, recordingID string) executor.UpdateFunc {
	return func(ctx context.Context, mutate func(*transcription.Transcription) error) error {
		active.mu.Lock()
		defer active.mu.Unlock()
		if active.sealed {
			if active.cause != nil {
				return active.cause
			}
			return executor.Canceled("task no longer active")
		}
		_, err := m.catalog.UpdateTranscription(context.WithoutCancel(ctx), recordingID, mutate)
		return err
	}
}

func (m *Manager) checkpointer(active *activeTask) executor.CheckpointFunc {
	return func(ctx context.Context, cp executor.Checkpoint) error {
		ctx = context.WithoutCancel(ctx)
		if cp.RemoteJobID != "" {
			if err := m.store.SetRemoteJobID(ctx, active.task.ID, cp.RemoteJobID); err != nil {
				return err
			}
		}
		if cp.OffsetMS > 0 {
			if err := m.store.SetOffset(ctx, active.task.ID, cp.OffsetMS); err != nil {
				return err
			}
		}
		return nil
	}
}

// interruptActive pauses the running task. An empty taskID matches any task.
func (m *Manager) interruptActive(ctx context.Context, taskID, reason string, requeue bool) bool {
	active := m.currentActive()
	if active == nil || (taskID != "" && active.task.ID != taskID) {
		return false
	}
	cause := executor.Interrupted(reason)
	active.mu.Lock()
	sealed := active.sealLocked(cause, requeue)
	active.mu.Unlock()
	if !sealed {
		return false
	}
	logging.WithContext(services.WithTaskID(ctx, active.task.ID), m.logger).Info("interrupting task",
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "task_interrupted"),
	)
	if active.executor != nil {
		active.executor.Cancel(active.task.ID, cause)
	}
	return true
}

func (m *Manager) isStopping() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stopping
}

func (m *Manager) currentActive() *activeTask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

func (m *Manager) setActive(active *activeTask) {
	m.mu.Lock()
	m.active = active
	m.mu.Unlock()
	m.metrics.SetProcessing(active != nil)
	m.publishProcessing(active != nil)
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastTask(task transcription.Task) {
	m.mu.Lock()
	m.lastTask = &task
	m.mu.Unlock()
}

func (m *Manager) refreshQueueDepth(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	total, _, err := m.store.Count(ctx)
	if err != nil {
		return
	}
	m.metrics.SetQueueDepth(total)
}
