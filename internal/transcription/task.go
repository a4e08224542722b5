package transcription

import (
	"fmt"
	"strings"
	"time"
)

// Strategy selects the executor for a task.
type Strategy string

const (
	StrategyLocal  Strategy = "local"
	StrategyRemote Strategy = "remote"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(value string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(value))) {
	case StrategyLocal:
		return StrategyLocal, nil
	case StrategyRemote:
		return StrategyRemote, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", value)
	}
}

// Parameters is the decoding configuration captured when a task is enqueued.
// Later settings changes never touch an existing task's parameters.
type Parameters struct {
	Language          string `json:"language"`
	Translate         bool   `json:"translate,omitempty"`
	MaxSegmentSeconds int    `json:"max_segment_seconds,omitempty"`
}

// Task is a durable request to transcribe one recording.
type Task struct {
	ID          string
	RecordingID string
	Strategy    Strategy
	Model       string
	Parameters  Parameters
	// RemoteJobID is set once the remote service accepted the upload.
	RemoteJobID string
	// OffsetMS is the audio position already transcribed.
	OffsetMS int64
	// Paused tasks stay queued but are skipped until resumed.
	Paused        bool
	PauseProgress float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Resumable reports whether the task carries checkpoint data.
func (t Task) Resumable() bool {
	return t.OffsetMS > 0 || t.RemoteJobID != ""
}
