package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the service's taxonomy. The HTTP layer
// maps kinds onto status codes; handlers never inspect messages.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindInternal   Kind = "internal"
)

// Error carries a kind, a machine-stable code, and a human-readable
// message safe to show to clients.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func Auth(code, message string) *Error {
	return &Error{Kind: KindAuth, Code: code, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: "not_found", Message: message}
}

// Internal wraps an unexpected failure. The wrapped cause is logged
// server-side; clients only see the generic message.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Message: "internal server error", err: err}
}

// KindOf extracts the taxonomy kind from an error chain, defaulting to
// KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError returns the taxonomy error in the chain, or wraps err as an
// internal error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// Common validation sentinels.
var (
	ErrEmptyTitle       = Validation("empty_title", "title must not be empty")
	ErrInvalidAmount    = Validation("invalid_amount", "amount must be a positive decimal")
	ErrInvalidFrequency = Validation("invalid_frequency", "frequency must be at least 1")
	ErrInvalidCategory  = Validation("invalid_category", "category does not exist")
)
