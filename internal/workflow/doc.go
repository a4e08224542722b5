// Package workflow schedules transcription tasks.
//
// The Manager owns the durable queue and runs at most one task at a time. It
// claims the queue head, requests a background execution grant, dispatches
// the task to the executor for its strategy, and folds the outcome back into
// the recording's Transcription before chaining to the next task. Paused
// tasks stay queued and are skipped until resumed; resumed tasks jump to the
// head of the queue.
//
// Only the active executor writes to a Transcription, and only through the
// update hook handed out in its Envelope. Cancellation and interruption seal
// that hook before the executor is asked to stop, so nothing lands after the
// caller has observed the canceled or paused state.
package workflow
