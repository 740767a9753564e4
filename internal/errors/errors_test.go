package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestGfxError_Error(t *testing.T) {
	err := New(ErrCategoryArchive, CodePushFailed, "push failed")
	expected := "[ARCHIVE:PUSH_FAILED] push failed"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestGfxError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryArchive, CodePushFailed, "push failed", cause)
	expected := "[ARCHIVE:PUSH_FAILED] push failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestGfxError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryCatalog, CodeWriteConflict, "conflict", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestGfxError_Is(t *testing.T) {
	err1 := New(ErrCategoryArchive, CodePushFailed, "first")
	err2 := New(ErrCategoryArchive, CodePushFailed, "second")
	err3 := New(ErrCategoryArchive, CodePullFailed, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryArchive, CodePushFailed, true},
		{ErrCategoryArchive, CodePullFailed, true},
		{ErrCategoryArchive, CodeObjectNotFound, false},
		{ErrCategoryCatalog, CodeWriteConflict, true},
		{ErrCategoryCatalog, CodeTraceNotFound, false},
		{ErrCategoryTrace, CodeCaptureCorrupt, false},
		{ErrCategoryValidation, CodeInvalidRange, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if got := IsRetryable(err); got != tt.retryable {
			t.Errorf("IsRetryable(%s:%s) = %v, want %v", tt.category, tt.code, got, tt.retryable)
		}
	}

	if IsRetryable(fmt.Errorf("plain error")) {
		t.Error("plain errors should not be retryable")
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := NewCatalogError(CodeTraceNotFound, "missing", nil)
	wrapped := fmt.Errorf("outer: %w", err)

	if got := GetCategory(wrapped); got != ErrCategoryCatalog {
		t.Errorf("GetCategory = %q, want %q", got, ErrCategoryCatalog)
	}
	if got := GetCode(wrapped); got != CodeTraceNotFound {
		t.Errorf("GetCode = %q, want %q", got, CodeTraceNotFound)
	}

	if got := GetCategory(fmt.Errorf("plain")); got != "" {
		t.Errorf("GetCategory(plain) = %q, want empty", got)
	}
}

func TestWithDetails(t *testing.T) {
	base := New(ErrCategoryCatalog, CodeTraceNotFound, "missing")
	detailed := base.WithDetails(map[string]interface{}{"trace_id": "abc"})

	if base.Details != nil {
		t.Error("WithDetails must not mutate the original error")
	}
	if detailed.Details["trace_id"] != "abc" {
		t.Error("details not attached")
	}
}
