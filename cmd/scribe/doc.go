// Command scribe is the command-line client for the scribe transcription
// daemon. It starts and stops the daemon, registers recordings, queues
// transcriptions, and inspects the queue, recordings, and logs over the
// daemon's Unix socket.
package main
