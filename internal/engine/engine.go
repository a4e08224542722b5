// Package engine runs speech recognition over audio and reports results as a
// typed event stream.
//
// The Engine interface hides the native recognizer: a single Transcribe call
// yields segment, progress, error, canceled, and finished events on a channel
// that is always closed after the terminal event. WindowedEngine walks the
// audio in fixed windows starting at a checkpoint offset and checks for
// cancellation before each window, so a cancel takes effect at the next
// window boundary rather than mid-decode.
package engine

import (
	"context"

	"scribe/internal/transcription"
)

// EventKind discriminates engine events.
type EventKind int

const (
	EventSegment EventKind = iota
	EventProgress
	EventError
	EventCanceled
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventSegment:
		return "segment"
	case EventProgress:
		return "progress"
	case EventError:
		return "error"
	case EventCanceled:
		return "canceled"
	case EventFinished:
		return "finished"
	}
	return "unknown"
}

// Event is one item of the transcription stream.
type Event struct {
	Kind    EventKind
	Segment transcription.Segment
	// Progress is the fraction of audio processed, OffsetMS the matching position.
	Progress float64
	OffsetMS int64
	Err      error
}

// Request describes one transcription run.
type Request struct {
	AudioPath string
	Params    transcription.Parameters
	// OffsetMS skips audio that an earlier attempt already transcribed.
	OffsetMS int64
}

// Engine is a loaded recognizer. Only one Transcribe may run at a time.
type Engine interface {
	Transcribe(ctx context.Context, req Request) (<-chan Event, error)
	// Cancel asks the running transcription to stop before its next step.
	Cancel()
	Close() error
}
