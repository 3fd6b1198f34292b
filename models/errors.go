package models

import (
	"context"
	"errors"
	"fmt"
)

// Error codes used in API responses, log lines and exit-code mapping.
const (
	ErrCodeUsage        = "INVALID_USAGE"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeTimeout      = "RENDER_TIMEOUT"
	ErrCodeWriteFailed  = "WRITE_FAILED"
	ErrCodeBrowserCrash = "BROWSER_CRASH"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitWriteFailed = 2
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RenderError is the internal error type carrying an error code.
// Message is the single human-readable line reported to the operator.
type RenderError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// NewRenderError creates a new RenderError.
func NewRenderError(code, message string, err error) *RenderError {
	return &RenderError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *RenderError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// AsRenderError returns err as a *RenderError, wrapping foreign errors
// into an INTERNAL_ERROR.
func AsRenderError(err error) *RenderError {
	var re *RenderError
	if errors.As(err, &re) {
		return re
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NewRenderError(ErrCodeTimeout, "render canceled", err)
	default:
		return NewRenderError(ErrCodeInternal, err.Error(), err)
	}
}

// ExitCode maps an error returned by the CLI to the process exit code.
// Write failures are kept apart from render failures.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if AsRenderError(err).Code == ErrCodeWriteFailed {
		return ExitWriteFailed
	}
	return ExitFailure
}
