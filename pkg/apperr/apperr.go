// Package apperr defines the error kinds shared by services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kinds. Match with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrExpired    = errors.New("expired")
	ErrForbidden  = errors.New("forbidden")
)

// Error carries a user-facing message and unwraps to its kind.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newf(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Validationf returns a validation error with a formatted message.
func Validationf(format string, args ...interface{}) error {
	return newf(ErrValidation, format, args...)
}

// NotFoundf returns a not-found error with a formatted message.
func NotFoundf(format string, args ...interface{}) error {
	return newf(ErrNotFound, format, args...)
}

// Conflictf returns a conflict error with a formatted message.
func Conflictf(format string, args ...interface{}) error {
	return newf(ErrConflict, format, args...)
}

// Expiredf returns an expired error with a formatted message.
func Expiredf(format string, args ...interface{}) error {
	return newf(ErrExpired, format, args...)
}

// Forbiddenf returns a forbidden error with a formatted message.
func Forbiddenf(format string, args ...interface{}) error {
	return newf(ErrForbidden, format, args...)
}

// Message returns the user-facing message of err, or fallback when err is not an *Error.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return fallback
}
