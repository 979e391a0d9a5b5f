package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing key in Redis.
	RedisNotFoundMessage = "not found"
	// DatasetNotBoundMessage is returned when a turn references an unknown dataset.
	DatasetNotBoundMessage = "dataset is not registered"
)

// ErrDatasetNotBound is the caller-contract violation: a turn was submitted for
// a dataset that was never registered. It is the only fault the orchestrator
// reports directly instead of converting into workflow feedback.
var ErrDatasetNotBound = errors.New("dataset not bound")

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// DatasetNotBound builds the caller-error for an unregistered dataset id.
func DatasetNotBound(fileID string) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %s", ErrDatasetNotBound, fileID),
		Status:  http.StatusNotFound,
		Message: DatasetNotBoundMessage,
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
