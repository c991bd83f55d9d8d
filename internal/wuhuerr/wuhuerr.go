// Package wuhuerr defines the engine's error taxonomy (spec.md §7).
//
// Every error surfaced by a component is wrapped in one of the
// sentinel kinds below so callers can branch with errors.Is without
// parsing messages. Kinds are deliberately few and coarse: they map
// to the propagation policy in the agent loop, not to fine-grained
// diagnostics (those belong in the wrapped message).
package wuhuerr

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy's error classes.
type Kind string

const (
	Transport     Kind = "transport"
	Provider      Kind = "provider"
	Decoding      Kind = "decoding"
	Storage       Kind = "storage"
	Tool          Kind = "tool"
	ExecutorFault Kind = "executor_fault"
	Cancelled     Kind = "cancelled"
	ConfigInvalid Kind = "config_invalid"
)

// Error is a Kind-tagged error with an optional wrapped cause and a
// Retryable hint used by the provider retry policy.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, wuhuerr.Transport) etc. work by comparing
// kinds when the target is itself a bare *Error with only Kind set.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Cause == nil
}

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around cause, or returns
// nil if cause is nil — callers may chain it directly around a
// fallible call's error return (e.g. `return wuhuerr.Wrap(Storage,
// tx.Commit(), "...")`) without an extra nil check.
func Wrap(kind Kind, cause error, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Retryable marks the error as eligible for the provider backoff loop.
func Retryable(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause, Retryable: true}
}

// KindOf extracts the Kind from err if it (or something it wraps) is
// an *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
