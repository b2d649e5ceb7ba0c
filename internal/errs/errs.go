// Package errs defines the module's error taxonomy. Every kind is a Kind
// tag on the single *Error type, so callers errors.As() for *Error and
// switch on Kind; each carries a short human message. WorkerFailure also
// wraps its cause with github.com/pkg/errors so the original site
// survives crossing a worker-to-engine boundary.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind tags which branch of the taxonomy an error belongs to.
type Kind string

const (
	KindAllocationFailure Kind = "allocation_failure"
	KindInvalidBlock      Kind = "invalid_block"
	KindMalformedTable    Kind = "malformed_table"
	KindSchemaMismatch    Kind = "schema_mismatch"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindWorkerFailure     Kind = "worker_failure"
)

// Error is the structured, user-visible error kruda returns: a kind tag
// plus a short message, optionally wrapping a cause.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func newErr(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func AllocationFailure(format string, args ...interface{}) *Error {
	return newErr(KindAllocationFailure, fmt.Sprintf(format, args...))
}

func InvalidBlock(format string, args ...interface{}) *Error {
	return newErr(KindInvalidBlock, fmt.Sprintf(format, args...))
}

func MalformedTable(format string, args ...interface{}) *Error {
	return newErr(KindMalformedTable, fmt.Sprintf(format, args...))
}

func SchemaMismatch(format string, args ...interface{}) *Error {
	return newErr(KindSchemaMismatch, fmt.Sprintf(format, args...))
}

func OutOfBounds(format string, args ...interface{}) *Error {
	return newErr(KindOutOfBounds, fmt.Sprintf(format, args...))
}

// WorkerFailure wraps a worker-surfaced cause (which may itself be one of
// the typed errors above) so the engine can propagate "first error wins"
// without losing the original site.
func WorkerFailure(cause error) *Error {
	e := newErr(KindWorkerFailure, "worker task failed")
	e.cause = errors.WithStack(cause)
	return e
}

// Cause unwraps to the original error at the bottom of the chain, e.g.
// the worker's own *Error before WorkerFailure wrapped it.
func Cause(err error) error {
	for {
		next := errors.Cause(err)
		e, ok := next.(*Error)
		if !ok || e.cause == nil {
			return next
		}
		err = e.cause
	}
}
