package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures crossing the repository and service layers
type Kind int

const (
	// KindInternal is any failure that fits no other kind
	KindInternal Kind = iota
	// KindStorageUnavailable means the store file or its directory cannot be
	// opened or created. Fatal at startup.
	KindStorageUnavailable
	// KindConstraint means a uniqueness or foreign-key rule rejected a write
	KindConstraint
	// KindNotFound is only raised by the prescription detail read
	KindNotFound
	// KindIOFailure covers backup, restore and document file copies
	KindIOFailure
	// KindCancelled means the user dismissed a file selection
	KindCancelled
	// KindInvalid means the caller sent a malformed or incomplete value
	KindInvalid
)

// String returns the human-readable kind text used in error messages
func (k Kind) String() string {
	switch k {
	case KindStorageUnavailable:
		return "storage unavailable"
	case KindConstraint:
		return "constraint violation"
	case KindNotFound:
		return "not found"
	case KindIOFailure:
		return "i/o failure"
	case KindCancelled:
		return "cancelled"
	case KindInvalid:
		return "invalid input"
	default:
		return "internal error"
	}
}

// Error is the typed error returned by the repository and services.
// Op names the failed operation, e.g. "create patient".
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// E builds an *Error
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error with a formatted cause
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrCancelled is returned when the user dismissed a file selection
var ErrCancelled = &Error{Kind: KindCancelled, Op: "file selection", Err: errors.New("operation cancelled")}

// KindOf returns the Kind of the outermost *Error in err's chain, or
// KindInternal when there is none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
