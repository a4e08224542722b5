// Package daemon coordinates the long-running Scribe process.
//
// It wires configuration, the task queue, the recording catalog, the
// workflow manager, and metrics into a single lifecycle with flock-based
// locking to prevent multiple instances. Startup reconciles the persisted
// queue against the catalog before the scheduler begins draining it.
//
// Keep orchestration logic here: transcription itself lives in the executor
// and workflow packages while the daemon focuses on startup, shutdown, and
// the request surface shared by IPC and the HTTP API.
package daemon
