// Package apperror defines the error taxonomy shared by every layer.
//
// Services and repositories return these errors; only the HTTP layer turns
// them into status codes (see handler/response.go). Callers branch with
// errors.Is on the sentinels below, never on message text.
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
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUnknownSubject means the token was valid but its subject does not
	// map to exactly one user. It is still an authentication failure.
	ErrUnknownSubject = fmt.Errorf("%w: unknown subject", ErrUnauthenticated)

	// ErrNotOwner means the caller is known and authorized in general but
	// does not own the resource it addressed.
	ErrNotOwner = fmt.Errorf("%w: not owner", ErrForbidden)
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource string, id any) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %v", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource string, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict: %s", resource, message),
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

// NotOwner is a Forbidden refinement for ownership checks.
func NotOwner(resource string, id any) *AppError {
	return &AppError{
		Err:     ErrNotOwner,
		Message: fmt.Sprintf("caller does not own %s %v", resource, id),
	}
}

func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

func UnknownSubject(sub string, matches int) *AppError {
	return &AppError{
		Err:     ErrUnknownSubject,
		Message: fmt.Sprintf("subject %q matched %d users", sub, matches),
	}
}
