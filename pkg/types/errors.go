package types

import "errors"

// TraceID-related errors
var (
	// ErrInvalidTraceIDLength is returned when a TraceID string or byte slice has incorrect length
	ErrInvalidTraceIDLength = errors.New("invalid trace ID length")

	// ErrInvalidTraceIDCharacter is returned when a TraceID string contains invalid characters
	ErrInvalidTraceIDCharacter = errors.New("invalid trace ID character")
)

// Sequence-related errors
var (
	// ErrEventOutOfRange is returned when an event ID falls outside the sequence
	ErrEventOutOfRange = errors.New("event ID out of range")
)
