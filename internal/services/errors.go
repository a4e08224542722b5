package services

import (
	"errors"
	"strings"
)

var (
	// ErrResource marks missing or insufficient local resources (memory, model files).
	ErrResource = errors.New("resource error")
	// ErrTransport marks remote API failures: network errors, non-success status, malformed payloads.
	ErrTransport = errors.New("transport error")
	// ErrCanceled marks user or system initiated cancellation.
	ErrCanceled = errors.New("canceled")
	// ErrInterrupted marks background-time exhaustion or app suspension.
	ErrInterrupted = errors.New("interrupted")

	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// Error carries classification and context for a failure.
type Error struct {
	Marker    error
	Component string
	Operation string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Marker.Error())
	b.WriteString(": ")
	b.WriteString(buildDetail(e.Component, e.Operation, e.Message))
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the marker and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Cause}
}

// Wrap builds an error that includes component context while tagging it with
// the provided marker for later outcome classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransport
	}
	return &Error{
		Marker:    marker,
		Component: strings.TrimSpace(component),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// ErrorDetails is the flattened view of a wrapped error used in logs and status messages.
type ErrorDetails struct {
	Kind      string
	Component string
	Operation string
	Message   string
	Cause     string
}

// Details extracts the outermost wrapped error's context. Errors that were not
// produced by Wrap report only their text as the message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		d := ErrorDetails{
			Kind:      svcErr.Marker.Error(),
			Component: svcErr.Component,
			Operation: svcErr.Operation,
			Message:   svcErr.Message,
		}
		if svcErr.Cause != nil {
			d.Cause = svcErr.Cause.Error()
		}
		return d
	}
	return ErrorDetails{Kind: "unknown", Message: err.Error()}
}

// UserMessage renders an error as the short text shown in a transcription status.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	d := Details(err)
	msg := d.Message
	if msg == "" {
		msg = d.Operation
	}
	if d.Cause != "" && d.Kind != "unknown" {
		if msg == "" {
			return d.Cause
		}
		return msg + ": " + d.Cause
	}
	if msg == "" {
		return err.Error()
	}
	return msg
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component != "" {
		parts = append(parts, component)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
