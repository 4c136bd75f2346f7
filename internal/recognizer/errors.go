package recognizer

import (
	"errors"
	"fmt"
)

// Status classifies a recognition failure
type Status string

const (
	// StatusBackendUnavailable means the real backend was unreachable at
	// startup. The gateway downgrades to the simulated variant; never fatal.
	StatusBackendUnavailable Status = "backend_unavailable"

	// StatusTimeout means recognition did not complete within the bound.
	// Callers must treat this as "no speech detected", not as an error.
	StatusTimeout Status = "recognition_timeout"

	// StatusRecognitionError means the backend reported a failure. It is
	// surfaced to the client as an error event.
	StatusRecognitionError Status = "recognition_error"

	// StatusUnsupported means the variant does not implement the requested
	// recognition protocol.
	StatusUnsupported Status = "unsupported_operation"
)

// Error is a typed recognition failure
type Error struct {
	Status  Status
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("recognizer: %s: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a typed recognition error
func NewError(status Status, message string) *Error {
	return &Error{Status: status, Message: message}
}

// NewErrorWithCause creates a typed recognition error wrapping a cause
func NewErrorWithCause(status Status, message string, cause error) *Error {
	return &Error{Status: status, Message: message, Cause: cause}
}

// IsStatus reports whether err carries the given recognition status
func IsStatus(err error, status Status) bool {
	var recErr *Error
	if errors.As(err, &recErr) {
		return recErr.Status == status
	}
	return false
}

// IsTimeout reports whether err is a recognition timeout
func IsTimeout(err error) bool {
	return IsStatus(err, StatusTimeout)
}
