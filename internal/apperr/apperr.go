// Package apperr defines the structured error kinds surfaced by the chat services.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers and transports.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindStore      Kind = "store"
)

var (
	// ErrValidation matches any error of KindValidation via errors.Is.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound matches any error of KindNotFound via errors.Is.
	ErrNotFound = errors.New("not found")
	// ErrConflict matches any error of KindConflict via errors.Is.
	ErrConflict = errors.New("conflict")
	// ErrStore matches any error of KindStore via errors.Is.
	ErrStore = errors.New("store failure")
)

// Error carries a kind and a caller-facing message, optionally wrapping a cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	return sentinel(e.Kind) == target
}

// Validation reports malformed or missing input.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a referenced user, request or message that does not exist.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a transition attempted from an invalid state.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Store wraps an underlying persistence failure for the named operation.
func Store(op string, err error) *Error {
	return &Error{Kind: KindStore, Message: op + " failed", Err: err}
}

// KindOf returns the kind of err, treating unclassified errors as store failures.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindStore
}

// MessageOf returns the caller-facing message of err. Unclassified errors get a
// generic message so driver details never leak to clients.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

func sentinel(kind Kind) error {
	switch kind {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	default:
		return ErrStore
	}
}
