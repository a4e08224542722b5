// Package catalog stores recordings and their embedded Transcription record.
//
// Recordings live in a small SQLite database next to the task queue; the
// audio itself is copied into the data directory on registration so tasks
// never depend on the caller's original file. The Transcription is stored as
// a JSON column and is only ever mutated through UpdateTranscription, which
// performs the read-modify-write in a single transaction.
package catalog
