package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: "prompt is required",
	}

	expected := "invalid_request_error: prompt is required"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := NewRateLimitError("too many requests", 3).WithCode("rate_limit_exceeded")

	expected := "rate_limit_error: too many requests (code: rate_limit_exceeded)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if err.RetryAfter == nil || *err.RetryAfter != 3 {
		t.Errorf("RetryAfter = %v, want 3", err.RetryAfter)
	}
}

func TestNewProviderError_Unwraps(t *testing.T) {
	underlying := errors.New("upstream exploded")
	err := NewProviderError("gemini", underlying)

	if err.Type != ErrProvider {
		t.Errorf("Type = %v, want %v", err.Type, ErrProvider)
	}
	if !errors.Is(err, underlying) {
		t.Error("expected provider error to unwrap to the vendor error")
	}
}

func TestIsAPIKeyNotFound(t *testing.T) {
	keyErr := NewNotFoundError("Requested entity was not found").WithCode(CodeAPIKeyNotFound)
	wrapped := fmt.Errorf("generate video: %w", keyErr)

	if !IsAPIKeyNotFound(wrapped) {
		t.Error("expected wrapped key error to be detected")
	}
	if IsAPIKeyNotFound(NewNotFoundError("no such task")) {
		t.Error("plain not-found must not be treated as a key error")
	}
	if IsAPIKeyNotFound(errors.New("boom")) {
		t.Error("foreign errors must not be treated as key errors")
	}
}

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		typ  ErrorType
		want bool
	}{
		{ErrRateLimit, true},
		{ErrOverloaded, true},
		{ErrAPI, true},
		{ErrInvalidRequest, false},
		{ErrNotFound, false},
		{ErrProvider, false},
	}
	for _, tt := range tests {
		err := &Error{Type: tt.typ}
		if got := err.IsRetryable(); got != tt.want {
			t.Errorf("IsRetryable(%s) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
