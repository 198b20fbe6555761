package library

import (
	"errors"
	"fmt"
)

// Sentinel errors mapped to HTTP status codes by the API layer.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError wraps ErrValidation with a user-facing message.
type ValidationError struct {
	Msg string
}

// Error returns the user-facing message.
func (e *ValidationError) Error() string {
	return e.Msg
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
