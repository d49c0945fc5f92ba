// Package apperr defines the error taxonomy shared by the domain and
// use-case layers. Handlers map each kind onto an HTTP status code.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	// KindValidation marks malformed input. Never retried.
	KindValidation Kind = iota
	// KindInvalidState marks an operation that violates an entity's
	// state machine. Surfaced to clients as a conflict.
	KindInvalidState
	// KindNotFound marks a reference to a row that does not exist.
	KindNotFound
	// KindLimitExceeded marks a rejected request due to a usage quota.
	KindLimitExceeded
)

// Error is a typed application error.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// Validation returns a validation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// InvalidState returns a state-machine violation error.
func InvalidState(format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

// NotFound returns a not-found error for the named resource.
func NotFound(resource string) error {
	return &Error{Kind: KindNotFound, Msg: resource + " not found"}
}

// LimitExceeded returns a quota rejection error.
func LimitExceeded(format string, args ...any) error {
	return &Error{Kind: KindLimitExceeded, Msg: fmt.Sprintf(format, args...)}
}

func is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return is(err, KindValidation) }

// IsInvalidState reports whether err is a state-machine violation.
func IsInvalidState(err error) bool { return is(err, KindInvalidState) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return is(err, KindNotFound) }

// IsLimitExceeded reports whether err is a quota rejection.
func IsLimitExceeded(err error) bool { return is(err, KindLimitExceeded) }
