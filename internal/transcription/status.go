package transcription

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind names a state of the transcription state machine.
type Kind string

const (
	KindNotStarted Kind = "notStarted"
	KindLoading    Kind = "loading"
	KindUploading  Kind = "uploading"
	KindProgress   Kind = "progress"
	KindDone       Kind = "done"
	KindError      Kind = "error"
	KindCanceled   Kind = "canceled"
	KindPaused     Kind = "paused"
)

// ErrInvalidTransition is returned by Apply for edges the state machine forbids.
var ErrInvalidTransition = errors.New("invalid status transition")

// Status is the tagged state value. Only the fields relevant to Kind are set.
type Status struct {
	Kind Kind `json:"kind"`
	// Progress is the upload fraction for uploading and the transcription
	// fraction for progress and paused, always within [0,1].
	Progress float64   `json:"progress,omitempty"`
	OffsetMS int64     `json:"offset_ms,omitempty"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at,omitzero"`
	// TaskID is the queued task a paused status can be resumed from.
	TaskID string `json:"task_id,omitempty"`
}

func NotStarted() Status { return Status{Kind: KindNotStarted} }

func Loading() Status { return Status{Kind: KindLoading} }

func Uploading(progress float64) Status {
	return Status{Kind: KindUploading, Progress: clamp(progress)}
}

func InProgress(progress float64, offsetMS int64) Status {
	return Status{Kind: KindProgress, Progress: clamp(progress), OffsetMS: max(offsetMS, 0)}
}

func Done(at time.Time) Status { return Status{Kind: KindDone, At: at.UTC()} }

func Failed(message string) Status { return Status{Kind: KindError, Message: message} }

func Canceled() Status { return Status{Kind: KindCanceled} }

func Paused(taskID string, progress float64, offsetMS int64, reason string) Status {
	return Status{Kind: KindPaused, TaskID: taskID, Progress: clamp(progress), OffsetMS: max(offsetMS, 0), Message: reason}
}

// IsTerminal reports whether the attempt has finished.
func (s Status) IsTerminal() bool {
	switch s.Kind {
	case KindDone, KindCanceled, KindError:
		return true
	}
	return false
}

// IsActive reports whether an executor is currently working on the attempt.
func (s Status) IsActive() bool {
	switch s.Kind {
	case KindLoading, KindUploading, KindProgress:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s Status) CanTransition(next Status) bool {
	if next.Kind == KindError {
		return true
	}
	if s.IsTerminal() {
		return next.Kind == KindNotStarted
	}
	switch s.Kind {
	case KindNotStarted:
		switch next.Kind {
		case KindNotStarted, KindLoading, KindUploading, KindProgress, KindPaused, KindCanceled:
			return true
		}
	case KindLoading:
		switch next.Kind {
		case KindLoading, KindUploading, KindProgress, KindPaused, KindCanceled:
			return true
		}
	case KindUploading:
		switch next.Kind {
		case KindUploading, KindProgress, KindPaused, KindCanceled:
			return true
		}
	case KindProgress:
		switch next.Kind {
		case KindProgress, KindDone, KindPaused, KindCanceled:
			return true
		}
	case KindPaused:
		switch next.Kind {
		case KindNotStarted, KindLoading, KindUploading, KindCanceled:
			return true
		}
	}
	return false
}

// Describe renders the status for people.
func (s Status) Describe() string {
	switch s.Kind {
	case KindNotStarted:
		return "not started"
	case KindLoading:
		return "loading model"
	case KindUploading:
		return fmt.Sprintf("uploading %s", percent(s.Progress))
	case KindProgress:
		if s.OffsetMS > 0 {
			return fmt.Sprintf("transcribing %s (at %s)", percent(s.Progress), FormatOffset(s.OffsetMS))
		}
		return fmt.Sprintf("transcribing %s", percent(s.Progress))
	case KindDone:
		if s.At.IsZero() {
			return "done"
		}
		return "done at " + s.At.Local().Format("2006-01-02 15:04:05")
	case KindError:
		if s.Message == "" {
			return "failed"
		}
		return "failed: " + s.Message
	case KindCanceled:
		return "canceled"
	case KindPaused:
		desc := fmt.Sprintf("paused at %s", percent(s.Progress))
		if s.Message != "" {
			desc += ": " + s.Message
		}
		return desc
	}
	return string(s.Kind)
}

// FormatOffset renders a millisecond offset as mm:ss or h:mm:ss.
func FormatOffset(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

func percent(v float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(v*100)))
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
