package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrAlreadyLiked    = errors.New("already liked")
	ErrTooManyRequests = errors.New("too many requests")
)

// AppError is the typed error the service layer returns. Handlers map the
// wrapped sentinel (via errors.Is) to an HTTP status; Message is safe to show
// to clients.
type AppError struct {
	Err     error  // wrapped sentinel
	Message string // human-readable error message
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// AlreadyLiked is returned when a user attempts to like a script they have
// already liked. HTTP handlers map this to 409 Conflict.
func AlreadyLiked(scriptID string) *AppError {
	return &AppError{
		Err:     ErrAlreadyLiked,
		Message: fmt.Sprintf("script %s already liked by this user", scriptID),
	}
}

// TooManyRequests is returned for request-frequency violations detected at
// the service level, such as re-uploading identical code within the
// duplicate-upload window. HTTP handlers map this to 429.
func TooManyRequests(message string) *AppError {
	return &AppError{
		Err:     ErrTooManyRequests,
		Message: message,
	}
}
