// Package preflight provides readiness checks for the filesystem paths,
// local models, and remote service that scribe depends on.
//
// The daemon logs failing checks at startup, and `scribe status` prints
// every result under "System Checks". Checks for a strategy that is not
// configured are skipped.
package preflight
