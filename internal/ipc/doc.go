// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// Request and response types live in types.go; queue and recording payloads
// reuse the api DTOs so the socket and HTTP surfaces stay in step.
package ipc
