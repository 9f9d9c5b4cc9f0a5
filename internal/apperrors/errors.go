// Package apperrors defines the coded error taxonomy shared by the approval
// engine and its transport layer. Every error surfaced to a caller carries a
// machine-readable code plus enough context to render an actionable message.
package apperrors

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	// ErrCodeNotFound: request, tier, delegation or principal does not exist.
	ErrCodeNotFound = "not_found"
	// ErrCodeInvalidState: action attempted outside an actionable lifecycle
	// state, or no tier covers the amount (a configuration inconsistency).
	ErrCodeInvalidState = "invalid_state"
	// ErrCodeForbidden: authorization denied, including ownership checks.
	ErrCodeForbidden = "forbidden"
	// ErrCodeValidation: missing/too-short input, invalid date ranges.
	ErrCodeValidation = "validation_failed"
	// ErrCodeConflict: overlapping delegation, concurrent-transition guard.
	ErrCodeConflict = "conflict"
	// ErrCodeInternal: infrastructure failure (database, serialization).
	ErrCodeInternal = "internal"
)

// AppError is a coded application error.
type AppError struct {
	Code    string
	Message string
	cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *AppError) Unwrap() error {
	return e.cause
}

// New creates a coded error.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code, message string) *AppError {
	return &AppError{Code: code, Message: message, cause: err}
}

// NotFound reports that a named resource does not exist.
func NotFound(resource, id string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// InvalidInput reports a validation failure on a specific field.
func InvalidInput(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: fmt.Sprintf("%s: %s", field, message)}
}

// CodeOf extracts the error code from err, walking the wrap chain.
// Unknown errors map to ErrCodeInternal.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}
