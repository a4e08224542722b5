// Package services defines shared utilities consumed by the scheduler,
// executors, and collaborator clients.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, recording IDs, strategies, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified (resource, transport, cancellation, interruption) and
//     rendered as human-readable transcription status messages.
package services
