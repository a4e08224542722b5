package workflow

import (
	"context"

	"scribe/internal/logging"
)

// EnterBackground starts the grant budget for the running task and asks for
// a continuation so queued work picks up again later.
func (m *Manager) EnterBackground(ctx context.Context) {
	m.coordinator.EnterBackground()
	if m.IsProcessing() {
		m.coordinator.ScheduleContinuation(m.cfg.ContinuationDelay(), m.Kick)
	}
	m.logger.Info("application moved to background",
		logging.Bool("processing", m.IsProcessing()),
		logging.String(logging.FieldEventType, "lifecycle_background"),
	)
}

// EnterForeground drops any scheduled continuation. With auto_resume set,
// paused tasks are put back at the head of the queue.
func (m *Manager) EnterForeground(ctx context.Context) error {
	m.coordinator.EnterForeground()
	m.logger.Info("application moved to foreground",
		logging.String(logging.FieldEventType, "lifecycle_foreground"),
	)
	if !m.cfg.Background.AutoResume {
		m.Kick()
		return nil
	}
	resumed, err := m.ResumePaused(ctx)
	if err != nil {
		return err
	}
	if resumed > 0 {
		m.logger.Info("paused tasks resumed", logging.Int("count", resumed))
	}
	m.Kick()
	return nil
}

// Suspend pauses the running task immediately, as when the host suspends
// the application.
func (m *Manager) Suspend(ctx context.Context) bool {
	return m.interruptActive(ctx, "", "application suspended", false)
}
