// Package apperr defines the error kinds shared by the repositories, the
// services and the HTTP layer.  Each kind is a sentinel; constructors wrap it
// with a message so callers can match with errors.Is and still report detail.
// Gateway failures have their own type in package gateway.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict reports a state conflict such as a timeslot already held
	// by an active appointment or a transition the current state forbids.
	ErrConflict = errors.New("conflict")

	// ErrNotFound reports an unknown resource, including unknown payment
	// references.
	ErrNotFound = errors.New("not found")

	// ErrValidation reports malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrSignature reports a webhook whose signature does not match.
	ErrSignature = errors.New("invalid signature")

	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")
)

func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}
