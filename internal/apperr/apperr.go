// Package apperr implements the error taxonomy of spec.md §7: a small set of
// kinds that every coordinator boundary normalises leaf errors into before
// they reach the HTTP surface. Leaf errors are never leaked verbatim.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the seven stable error kinds. HTTP status mapping lives in
// internal/httperr, not here — apperr stays transport-agnostic.
type Kind string

const (
	KindAuthentication    Kind = "authentication"
	KindAuthorization     Kind = "authorization"
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindDependencyFailure Kind = "dependency_failure"
	KindInternal          Kind = "internal"
)

// Error is the typed value every coordinator boundary returns. Message is
// safe to surface to a caller; the wrapped cause is not (it may carry a
// leaf's internal detail) and is only logged.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error that carries cause for logging, without leaking it
// into Message.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the Kind of err, defaulting to KindInternal when err is not
// (or does not wrap) an *Error — the fail-closed default spec.md §7 requires.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
