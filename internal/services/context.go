package services

import "context"

type contextKey string

const (
	taskIDKey      contextKey = "task_id"
	recordingIDKey contextKey = "recording_id"
	strategyKey    contextKey = "strategy"
	requestIDKey   contextKey = "request_id"
)

// WithTaskID annotates context with the transcription task identifier.
func WithTaskID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, taskIDKey, id)
}

// TaskIDFromContext extracts the task identifier if present.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, taskIDKey)
}

// WithRecordingID annotates context with the recording identifier.
func WithRecordingID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, recordingIDKey, id)
}

// RecordingIDFromContext returns the recording identifier if present.
func RecordingIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, recordingIDKey)
}

// WithStrategy annotates context with the executor strategy name (local/remote).
func WithStrategy(ctx context.Context, strategy string) context.Context {
	if strategy == "" {
		return ctx
	}
	return context.WithValue(ctx, strategyKey, strategy)
}

// StrategyFromContext returns the strategy name if present.
func StrategyFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, strategyKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
