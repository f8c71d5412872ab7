package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the harness.
type ErrorCode string

// Registration error codes. Raised before any task runs; the scenario data must be fixed.
const (
	ErrDuplicateIdentity  ErrorCode = "DUPLICATE_IDENTITY"
	ErrUnknownAgent       ErrorCode = "UNKNOWN_AGENT"
	ErrUnknownTask        ErrorCode = "UNKNOWN_TASK"
	ErrCapabilityMismatch ErrorCode = "CAPABILITY_MISMATCH"
	ErrCrewIntegrity      ErrorCode = "CREW_INTEGRITY"
	ErrInvalidDefinition  ErrorCode = "INVALID_DEFINITION"
)

// Execution error codes. Recorded per task as an error verdict.
const (
	ErrCapabilityFailure ErrorCode = "CAPABILITY_FAILURE"
	ErrTimeout           ErrorCode = "TIMEOUT"
	ErrCancelled         ErrorCode = "CANCELLED"
	ErrUpstreamError     ErrorCode = "UPSTREAM_ERROR"
	ErrRateLimited       ErrorCode = "RATE_LIMITED"
)

// Reporting error codes.
const (
	ErrPersistence ErrorCode = "PERSISTENCE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Subject   string    `json:"subject,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable (transient).
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithSubject records the id of the agent, task or crew the error is about.
func (e *Error) WithSubject(subject string) *Error {
	e.Subject = subject
	return e
}

// IsRetryable reports whether err (or anything it wraps) is a transient *Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from the first *Error in the chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// TransientFailure is a convenience constructor for retryable capability failures.
func TransientFailure(message string, cause error) *Error {
	return &Error{Code: ErrCapabilityFailure, Message: message, Retryable: true, Cause: cause}
}

// PermanentFailure is a convenience constructor for non-retryable capability failures.
func PermanentFailure(message string, cause error) *Error {
	return &Error{Code: ErrCapabilityFailure, Message: message, Cause: cause}
}
