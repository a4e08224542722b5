package workflow

import (
	"context"

	"scribe/internal/logging"
	"scribe/internal/transcription"
)

// StatusSummary represents lightweight scheduler diagnostics.
type StatusSummary struct {
	Running      bool
	Processing   bool
	InBackground bool
	CurrentTask  *transcription.Task
	LastTask     *transcription.Task
	LastError    string
	Queued       int
	Runnable     int
}

// Status returns the latest scheduler information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running, Processing: m.active != nil}
	if m.active != nil {
		task := m.active.task
		summary.CurrentTask = &task
	}
	if m.lastTask != nil {
		task := *m.lastTask
		summary.LastTask = &task
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	summary.InBackground = m.coordinator.InBackground()
	total, runnable, err := m.store.Count(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue counts", logging.Error(err))
	}
	summary.Queued = total
	summary.Runnable = runnable
	return summary
}

// QueueSnapshot lists queued tasks in processing order, paused ones included.
func (m *Manager) QueueSnapshot(ctx context.Context) ([]transcription.Task, error) {
	return m.store.List(ctx)
}

// CurrentTaskID returns the task being processed, if any.
func (m *Manager) CurrentTaskID() (string, bool) {
	active := m.currentActive()
	if active == nil {
		return "", false
	}
	return active.task.ID, true
}

// IsProcessing reports whether a task is executing.
func (m *Manager) IsProcessing() bool {
	return m.currentActive() != nil
}

// SubscribeProcessing streams the processing flag. The current value is sent
// first; slow readers only see the latest value. The channel closes when ctx
// ends.
func (m *Manager) SubscribeProcessing(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)
	ch <- m.IsProcessing()

	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		m.subsMu.Lock()
		delete(m.subs, id)
		close(ch)
		m.subsMu.Unlock()
	}()
	return ch
}

func (m *Manager) publishProcessing(processing bool) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- processing
	}
}
