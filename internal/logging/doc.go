// Package logging assembles structured slog loggers and formatting helpers used
// across Scribe.
//
// It owns the console and JSON handlers, rotates file output with lumberjack,
// and exposes context-aware helpers so scheduler and executor code can tag log
// lines with task IDs, recording IDs, strategies, and correlation IDs. The
// package also provides a no-op logger for tests and wiring code that cannot fail.
package logging
