// Package errors provides structured error types for the gfxreplay system.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryTrace      ErrorCategory = "TRACE"
	ErrCategoryCatalog    ErrorCategory = "CATALOG"
	ErrCategoryArchive    ErrorCategory = "ARCHIVE"
	ErrCategoryReplay     ErrorCategory = "REPLAY"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidTraceID = "INVALID_TRACE_ID"
	CodeInvalidRange   = "INVALID_RANGE"
	CodeEmptyCapture   = "EMPTY_CAPTURE"

	// Trace codes
	CodeNotCaptureFile = "NOT_CAPTURE_FILE"
	CodeCaptureCorrupt = "CAPTURE_CORRUPT"

	// Catalog codes
	CodeTraceNotFound  = "TRACE_NOT_FOUND"
	CodeStepNotFound   = "STEP_NOT_FOUND"
	CodeWriteConflict  = "WRITE_CONFLICT"
	CodeDuplicateTrace = "DUPLICATE_TRACE"

	// Archive codes
	CodePushFailed     = "PUSH_FAILED"
	CodePullFailed     = "PULL_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Replay codes
	CodeUnknownContext = "UNKNOWN_CONTEXT"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// GfxError is the structured error type used throughout the system.
type GfxError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *GfxError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *GfxError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *GfxError) Is(target error) bool {
	var t *GfxError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new GfxError.
func New(category ErrorCategory, code, message string) *GfxError {
	return &GfxError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new GfxError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *GfxError {
	return &GfxError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *GfxError) WithDetails(details map[string]interface{}) *GfxError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ge *GfxError
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a GfxError.
func GetCategory(err error) ErrorCategory {
	var ge *GfxError
	if errors.As(err, &ge) {
		return ge.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a GfxError.
func GetCode(err error) string {
	var ge *GfxError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// isRetryable determines if an error code represents a transient condition.
// Only archive transfers and catalog write contention are retryable; pure
// view computations and validation never are.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryArchive && code == CodePushFailed:
		return true
	case category == ErrCategoryArchive && code == CodePullFailed:
		return true
	case category == ErrCategoryCatalog && code == CodeWriteConflict:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *GfxError {
	return New(ErrCategoryValidation, code, message)
}

func NewTraceError(code, message string, cause error) *GfxError {
	return Wrap(ErrCategoryTrace, code, message, cause)
}

func NewCatalogError(code, message string, cause error) *GfxError {
	return Wrap(ErrCategoryCatalog, code, message, cause)
}

func NewArchiveError(code, message string, cause error) *GfxError {
	return Wrap(ErrCategoryArchive, code, message, cause)
}

func NewReplayError(code, message string) *GfxError {
	return New(ErrCategoryReplay, code, message)
}

func NewInternalError(message string, cause error) *GfxError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
