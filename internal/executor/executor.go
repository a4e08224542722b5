// Package executor implements the transcription strategies: in-process
// inference through a loaded Whisper model, and delegation to the remote
// service through chunked upload and result polling.
//
// Executors never own the Transcription. They report progress through the
// Envelope's Update hook, which the scheduler guards so that nothing is
// written once a task is canceled or interrupted. The final status of an
// attempt is written by Finalize from the error Process returns.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"scribe/internal/services"
	"scribe/internal/transcription"
)

// Checkpoint is resumption state persisted onto the queued task.
type Checkpoint struct {
	OffsetMS    int64
	Progress    float64
	RemoteJobID string
}

// UpdateFunc applies mutate to the live Transcription of the envelope.
type UpdateFunc func(ctx context.Context, mutate func(*transcription.Transcription) error) error

// CheckpointFunc persists resumption state for the task.
type CheckpointFunc func(ctx context.Context, cp Checkpoint) error

// Envelope binds a task to the recording it transcribes.
type Envelope struct {
	Task       transcription.Task
	Recording  transcription.Recording
	Update     UpdateFunc
	Checkpoint CheckpointFunc
}

func (e *Envelope) update(ctx context.Context, mutate func(*transcription.Transcription) error) error {
	if e.Update == nil {
		return nil
	}
	return e.Update(ctx, mutate)
}

func (e *Envelope) setStatus(ctx context.Context, status transcription.Status) error {
	return e.update(ctx, func(tr *transcription.Transcription) error {
		return tr.Apply(status)
	})
}

func (e *Envelope) checkpoint(ctx context.Context, cp Checkpoint) error {
	if e.Checkpoint == nil {
		return nil
	}
	return e.Checkpoint(ctx, cp)
}

// Executor runs one task at a time.
type Executor interface {
	Name() string
	// Process blocks until the attempt ends. A nil error means success.
	Process(ctx context.Context, env *Envelope) error
	// Cancel stops the task if it is running. cause should carry
	// services.ErrCanceled or services.ErrInterrupted.
	Cancel(taskID string, cause error)
}

// Outcome classifies how an attempt ended.
type Outcome string

const (
	OutcomeDone     Outcome = "done"
	OutcomeCanceled Outcome = "canceled"
	OutcomePaused   Outcome = "paused"
	OutcomeFailed   Outcome = "failed"
)

// OutcomeOf maps a Process error to an outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeDone
	case errors.Is(err, services.ErrInterrupted):
		return OutcomePaused
	case errors.Is(err, services.ErrCanceled), errors.Is(err, context.Canceled):
		return OutcomeCanceled
	default:
		return OutcomeFailed
	}
}

// Finalize writes the terminal status for an attempt onto tr. A status that
// is already terminal wins over the executor's outcome.
func Finalize(tr *transcription.Transcription, task transcription.Task, err error, now time.Time) Outcome {
	switch tr.Status.Kind {
	case transcription.KindCanceled:
		return OutcomeCanceled
	case transcription.KindDone:
		return OutcomeDone
	case transcription.KindError:
		return OutcomeFailed
	}

	outcome := OutcomeOf(err)
	var next transcription.Status
	switch outcome {
	case OutcomeDone:
		next = transcription.Done(now)
	case OutcomeCanceled:
		next = transcription.Canceled()
	case OutcomePaused:
		next = transcription.Paused(task.ID, tr.Status.Progress, tr.Status.OffsetMS, pauseReason(err))
	default:
		next = transcription.Failed(services.UserMessage(err))
	}
	if applyErr := tr.Apply(next); applyErr != nil {
		tr.Status = transcription.Failed(fmt.Sprintf("attempt ended in %s: %v", tr.Status.Kind, applyErr))
		return OutcomeFailed
	}
	tr.UpdatedAt = now.UTC()
	return outcome
}

func pauseReason(err error) string {
	details := services.Details(err)
	if details.Message != "" {
		return details.Message
	}
	return "interrupted"
}

// Interrupted is the cancellation cause used when background time runs out.
func Interrupted(reason string) error {
	return services.Wrap(services.ErrInterrupted, "executor", "interrupt", reason, nil)
}

// Canceled is the cancellation cause used for explicit user cancellation.
func Canceled(reason string) error {
	return services.Wrap(services.ErrCanceled, "executor", "cancel", reason, nil)
}

// runs tracks cancel functions for tasks in flight.
type runs struct {
	mu     sync.Mutex
	active map[string]context.CancelCauseFunc
}

func (r *runs) start(ctx context.Context, taskID string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	r.mu.Lock()
	if r.active == nil {
		r.active = make(map[string]context.CancelCauseFunc)
	}
	r.active[taskID] = cancel
	r.mu.Unlock()
	return ctx, func() {
		r.mu.Lock()
		delete(r.active, taskID)
		r.mu.Unlock()
		cancel(nil)
	}
}

func (r *runs) cancel(taskID string, cause error) bool {
	r.mu.Lock()
	cancel, ok := r.active[taskID]
	r.mu.Unlock()
	if ok {
		if cause == nil {
			cause = Canceled("canceled")
		}
		cancel(cause)
	}
	return ok
}

// stopCause returns the cancellation cause when ctx is done, otherwise err.
func stopCause(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
	}
	return err
}
