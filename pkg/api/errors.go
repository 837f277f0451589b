package api

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a sandbox lifecycle failure.
type ErrorType string

const (
	// ErrorTypeNotFound covers a missing running sandbox or a missing
	// completed generation when one is required.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeInvalidState covers a sandbox that exists but is not running
	// when the operation needs a running one.
	ErrorTypeInvalidState ErrorType = "invalid_state"

	// ErrorTypeProviderFailure covers any failed call to the sandbox host
	// or to blob storage.
	ErrorTypeProviderFailure ErrorType = "provider_failure"

	// ErrorTypePersistenceFailure covers failed snapshot or generation writes.
	ErrorTypePersistenceFailure ErrorType = "persistence_failure"

	// ErrorTypeInvalidRequest is raised at the service boundary for
	// malformed input.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeInternal covers unexpected failures such as recovered panics.
	ErrorTypeInternal ErrorType = "internal_error"
)

// Error is a typed failure carrying the operation that failed and the
// underlying cause, if any.
type Error struct {
	Type    ErrorType `json:"type"`
	Op      string    `json:"-"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorResponse wraps an Error for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// NewNotFoundError creates an Error for resources that cannot be found.
func NewNotFoundError(op, message string) *Error {
	return &Error{Type: ErrorTypeNotFound, Op: op, Message: message}
}

// NewInvalidStateError creates an Error for a resource in the wrong lifecycle state.
func NewInvalidStateError(op, message string) *Error {
	return &Error{Type: ErrorTypeInvalidState, Op: op, Message: message}
}

// NewProviderError wraps a failed sandbox-host or blob-store call.
func NewProviderError(op string, cause error) *Error {
	return &Error{Type: ErrorTypeProviderFailure, Op: op, Message: "provider call failed", Cause: cause}
}

// NewPersistenceError wraps a failed store write or read.
func NewPersistenceError(op string, cause error) *Error {
	return &Error{Type: ErrorTypePersistenceFailure, Op: op, Message: "store operation failed", Cause: cause}
}

// NewInvalidRequestError creates an Error for malformed caller input.
func NewInvalidRequestError(op, message string) *Error {
	return &Error{Type: ErrorTypeInvalidRequest, Op: op, Message: message}
}

// NewInternalError creates an Error for unexpected failures.
func NewInternalError(op, message string) *Error {
	return &Error{Type: ErrorTypeInternal, Op: op, Message: message}
}

// AsError extracts the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsType reports whether err's chain contains an *Error of the given type.
func IsType(err error, t ErrorType) bool {
	apiErr, ok := AsError(err)
	return ok && apiErr.Type == t
}
