// Package config loads, normalizes, and validates Scribe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, canonicalizes the default transcription
// language, and honours SCRIBE_REMOTE_API_KEY as a fallback for the remote
// service credential.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
