// Package queue persists pending transcription tasks in SQLite.
//
// The Store is the durable FIFO that the scheduler drains: tasks carry an
// integer position, new work is appended after the tail, and resumed work is
// placed before the head. A recording can own at most one task at a time
// (enforced by a unique index) so repeated requests never duplicate work.
// Paused tasks remain in the table but are skipped by PeekHead until resumed.
//
// The database is treated as transient storage for in-flight jobs rather than
// a long-term archive. Schema changes bump the version in schema.go; users
// clear the database to adopt the new schema.
package queue
