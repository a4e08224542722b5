package workflow

import (
	"context"
	"fmt"

	"scribe/internal/config"
	"scribe/internal/executor"
	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/transcription"
)

// TaskOption adjusts a task before it is enqueued.
type TaskOption func(*transcription.Task)

func WithStrategy(s transcription.Strategy) TaskOption {
	return func(t *transcription.Task) { t.Strategy = s }
}

func WithModel(model string) TaskOption {
	return func(t *transcription.Task) { t.Model = model }
}

func WithLanguage(language string) TaskOption {
	return func(t *transcription.Task) { t.Parameters.Language = language }
}

func WithTranslate(translate bool) TaskOption {
	return func(t *transcription.Task) { t.Parameters.Translate = translate }
}

// Enqueue appends a task for recordingID unless one is already queued. The
// returned bool reports whether a new task was added.
func (m *Manager) Enqueue(ctx context.Context, recordingID string, opts ...TaskOption) (*transcription.Task, bool, error) {
	rec, err := m.catalog.Recording(ctx, recordingID)
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, false, services.Wrap(services.ErrNotFound, "workflow", "enqueue",
			fmt.Sprintf("recording %s not found", recordingID), nil)
	}

	task := transcription.Task{
		RecordingID: recordingID,
		Strategy:    transcription.Strategy(m.cfg.Transcription.Strategy),
		Model:       m.cfg.Transcription.Model,
		Parameters: transcription.Parameters{
			Language:          m.cfg.Transcription.Language,
			Translate:         m.cfg.Transcription.Translate,
			MaxSegmentSeconds: m.cfg.Transcription.MaxSegmentSeconds,
		},
	}
	for _, opt := range opts {
		opt(&task)
	}
	if task.Parameters.Language, err = config.NormalizeLanguage(task.Parameters.Language); err != nil {
		return nil, false, services.Wrap(services.ErrValidation, "workflow", "enqueue", "invalid language", err)
	}
	if _, ok := m.executors[task.Strategy]; !ok && len(m.executors) > 0 {
		return nil, false, services.Wrap(services.ErrValidation, "workflow", "enqueue",
			fmt.Sprintf("strategy %q is not available", task.Strategy), nil)
	}

	stored, added, err := m.enqueueClaimed(ctx, task)
	if err != nil || !added {
		return stored, added, err
	}

	logging.WithContext(services.WithTaskID(ctx, stored.ID), m.logger).Info("task enqueued",
		logging.String(logging.FieldRecordingID, recordingID),
		logging.String(logging.FieldStrategy, string(stored.Strategy)),
		logging.String(logging.FieldEventType, "task_enqueued"),
	)
	m.metrics.TaskEnqueued()
	m.refreshQueueDepth(ctx)
	m.Kick()
	return stored, true, nil
}

// enqueueClaimed inserts the task and resets the recording's Transcription
// before the run loop can claim the new row.
func (m *Manager) enqueueClaimed(ctx context.Context, task transcription.Task) (*transcription.Task, bool, error) {
	m.claimMu.Lock()
	defer m.claimMu.Unlock()
	stored, added, err := m.store.Enqueue(ctx, task)
	if err != nil || !added {
		return stored, false, err
	}
	if _, err := m.catalog.UpdateTranscription(ctx, task.RecordingID, func(tr *transcription.Transcription) error {
		tr.Status = transcription.NotStarted()
		tr.Strategy = stored.Strategy
		tr.Model = stored.Model
		tr.Parameters = stored.Parameters
		return nil
	}); err != nil {
		return stored, true, err
	}
	return stored, true, nil
}

// CancelTask cancels the task for recordingID. An active task is sealed and
// marked canceled before its executor is told to stop; it leaves the queue
// once the executor returns. A pending task is removed immediately.
func (m *Manager) CancelTask(ctx context.Context, recordingID string) (bool, error) {
	m.claimMu.Lock()
	if active := m.currentActive(); active != nil && active.task.RecordingID == recordingID {
		m.claimMu.Unlock()
		return m.cancelActive(ctx, active, "canceled by user")
	}
	task, err := m.store.RemoveByRecording(ctx, recordingID)
	m.claimMu.Unlock()
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	if err := m.markCanceled(ctx, recordingID); err != nil {
		return true, err
	}
	logging.WithContext(services.WithTaskID(ctx, task.ID), m.logger).Info("pending task canceled",
		logging.String(logging.FieldRecordingID, recordingID),
		logging.String(logging.FieldEventType, "task_canceled"),
	)
	m.refreshQueueDepth(ctx)
	return true, nil
}

func (m *Manager) cancelActive(ctx context.Context, active *activeTask, reason string) (bool, error) {
	cause := executor.Canceled(reason)
	active.mu.Lock()
	sealed := active.sealLocked(cause, false)
	var err error
	if sealed {
		err = m.markCanceled(ctx, active.task.RecordingID)
	}
	active.mu.Unlock()
	if !sealed {
		return false, nil
	}
	logging.WithContext(services.WithTaskID(ctx, active.task.ID), m.logger).Info("active task canceled",
		logging.String(logging.FieldEventType, "task_canceled"),
	)
	if active.executor != nil {
		active.executor.Cancel(active.task.ID, cause)
	}
	return true, err
}

func (m *Manager) markCanceled(ctx context.Context, recordingID string) error {
	_, err := m.catalog.UpdateTranscription(context.WithoutCancel(ctx), recordingID, func(tr *transcription.Transcription) error {
		if tr.Status.IsTerminal() {
			return nil
		}
		return tr.Apply(transcription.Canceled())
	})
	return err
}

// CancelAll cancels the active task and clears the rest of the queue.
func (m *Manager) CancelAll(ctx context.Context) (int, error) {
	m.claimMu.Lock()
	defer m.claimMu.Unlock()
	canceled := 0
	activeID := ""
	if active := m.currentActive(); active != nil {
		activeID = active.task.ID
		ok, err := m.cancelActive(ctx, active, "all tasks canceled")
		if err != nil {
			return 0, err
		}
		if ok {
			canceled++
		}
	}

	tasks, err := m.store.List(ctx)
	if err != nil {
		return canceled, err
	}
	for _, task := range tasks {
		if task.ID == activeID {
			continue
		}
		removed, err := m.store.Remove(ctx, task.ID)
		if err != nil {
			return canceled, err
		}
		if !removed {
			continue
		}
		if err := m.markCanceled(ctx, task.RecordingID); err != nil {
			return canceled, err
		}
		canceled++
	}
	m.logger.Info("queue cleared",
		logging.Int("canceled", canceled),
		logging.String(logging.FieldEventType, "queue_cleared"),
	)
	m.refreshQueueDepth(ctx)
	return canceled, nil
}

// ResumeTask moves the queued task for recordingID to the head of the queue
// and clears its paused flag.
func (m *Manager) ResumeTask(ctx context.Context, recordingID string) (*transcription.Task, error) {
	task, err := m.store.FindByRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "resume",
			fmt.Sprintf("no queued task for recording %s", recordingID), nil)
	}
	if active := m.currentActive(); active != nil && active.task.ID == task.ID {
		return task, nil
	}
	resumed, err := m.store.Resume(ctx, *task)
	if err != nil {
		return nil, err
	}
	logging.WithContext(services.WithTaskID(ctx, resumed.ID), m.logger).Info("task resumed",
		logging.Int64("offset_ms", resumed.OffsetMS),
		logging.Bool("remote_job", resumed.RemoteJobID != ""),
		logging.String(logging.FieldEventType, "task_resumed"),
	)
	m.Kick()
	return resumed, nil
}

// ResumePaused resumes every paused task, keeping their relative order.
func (m *Manager) ResumePaused(ctx context.Context) (int, error) {
	paused, err := m.store.ListPaused(ctx)
	if err != nil {
		return 0, err
	}
	// Resume inserts at the head, so walk backwards to keep FIFO among them.
	for i := len(paused) - 1; i >= 0; i-- {
		if _, err := m.store.Resume(ctx, paused[i]); err != nil {
			return len(paused) - 1 - i, err
		}
	}
	if len(paused) > 0 {
		m.Kick()
	}
	return len(paused), nil
}

// ReconcileResult summarises the startup reconciliation pass.
type ReconcileResult struct {
	Orphaned int
	Pending  int
	Paused   int
}

// Reconcile drops tasks whose recording no longer exists and re-offers the
// rest to the scheduler.
func (m *Manager) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult
	tasks, err := m.store.List(ctx)
	if err != nil {
		return result, err
	}
	var orphans []string
	for _, task := range tasks {
		rec, err := m.catalog.Recording(ctx, task.RecordingID)
		if err != nil {
			return result, err
		}
		if rec == nil {
			orphans = append(orphans, task.ID)
			continue
		}
		if task.Paused {
			result.Paused++
		} else {
			result.Pending++
		}
	}
	if len(orphans) > 0 {
		removed, err := m.store.RemoveMany(ctx, orphans...)
		if err != nil {
			return result, err
		}
		result.Orphaned = int(removed)
	}
	m.logger.Info("queue reconciled",
		logging.Int("orphaned", result.Orphaned),
		logging.Int("pending", result.Pending),
		logging.Int("paused", result.Paused),
		logging.String(logging.FieldEventType, "queue_reconciled"),
	)
	if m.cfg.Background.AutoResume && result.Paused > 0 {
		if _, err := m.ResumePaused(ctx); err != nil {
			return result, err
		}
	}
	m.refreshQueueDepth(ctx)
	m.Kick()
	return result, nil
}
