// Package logs tails the daemon log file for `scribe logs`.
//
// A negative offset returns the last N lines; a non-negative offset returns
// everything appended since that byte position. Follow mode polls until new
// lines arrive, the wait elapses, or the context ends.
package logs
