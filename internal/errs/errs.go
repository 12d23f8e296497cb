// Package errs defines the error kinds shared by every ringtsdb component,
// per spec.md §7 "Kinds, not types". Components attach a Kind to a message
// (and optionally a wrapped cause) with New or Wrap; callers classify with
// Is/KindOf rather than type-asserting concrete error values.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds spec.md §7 enumerates.
type Kind int

const (
	_ Kind = iota
	Validation
	NotFound
	Conflict
	TypeMismatch
	LimitExceeded
	BackendTransient
	BackendFatal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "VALIDATION"
	case NotFound:
		return "NOT_FOUND"
	case Conflict:
		return "CONFLICT"
	case TypeMismatch:
		return "TYPE_MISMATCH"
	case LimitExceeded:
		return "LIMIT_EXCEEDED"
	case BackendTransient:
		return "BACKEND_TRANSIENT"
	case BackendFatal:
		return "BACKEND_FATAL"
	default:
		return "UNKNOWN"
	}
}

// Error pairs a Kind with a human-readable message and optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with the given kind and formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error carrying cause as the wrapped error.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, walking Unwrap chains. Returns false
// if neither err nor anything in its chain is a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err's Kind equals kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsRetryable reports whether err is BACKEND_TRANSIENT and thus safe to
// retry with exponential backoff, per spec.md §7.
func IsRetryable(err error) bool {
	return Is(err, BackendTransient)
}
