// Package transcription defines the durable task descriptor, the per-recording
// Transcription record, and the status state machine shared by the queue,
// executors, and scheduler.
//
// Status values are tagged structs rather than interfaces so they round-trip
// through JSON in the recording catalog. CanTransition encodes the legal
// edges; callers that mutate a Transcription should go through Apply so an
// attempt can never move out of a terminal state except by starting over.
package transcription
