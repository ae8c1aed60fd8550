// Package failure defines the closed set of error kinds used across the poller.
// Callers inspect the kind to decide whether a failure skips one item or aborts the run.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind uint8

const (
	Config Kind = iota + 1
	Network
	Decode
	Database
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case Network:
		return "network"
	case Decode:
		return "decode"
	case Database:
		return "database"
	default:
		return "unknown"
	}
}

// Error is a failure tagged with its kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New tags err with kind. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is New with a formatted message as the underlying error.
func Newf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost tagged failure in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
