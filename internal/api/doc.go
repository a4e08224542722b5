// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates queue tasks, recordings, and scheduler status into
// transport-friendly DTOs so clients can render them without importing the
// internal models.
//
// # Key Types
//
// Task: a queued transcription request with its checkpoint and pause state.
//
// Recording: a catalog entry with its latest transcription status and text.
//
// WorkflowStatus / DaemonStatus: scheduler and daemon runtime information.
//
// # Converters
//
// FromTask, FromTasks, FromRecording, FromStatusSummary.
//
// DTOs use camelCase JSON tags. Status kinds are exposed as the lowercase
// strings defined by the transcription package. Timestamps use RFC3339 with
// milliseconds.
package api
