// Package kifuerr defines the error kinds shared across the game tree,
// codec, engine and session components. Components return these so callers
// can errors.Is/errors.As them rather than string-matching messages, per
// the propagation policy in the design.
package kifuerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds named by the design: UnknownNode,
// BadPermutation, InvalidMove, Malformed, UnsupportedFormat, SpawnFailed,
// HandshakeTimeout, ProtocolError, EngineExited, Stale, NotOwner, NotFound,
// TooLarge.
type Kind string

const (
	UnknownNode       Kind = "UnknownNode"
	BadPermutation    Kind = "BadPermutation"
	InvalidMove       Kind = "InvalidMove"
	Malformed         Kind = "Malformed"
	UnsupportedFormat Kind = "UnsupportedFormat"
	SpawnFailed       Kind = "SpawnFailed"
	HandshakeTimeout  Kind = "HandshakeTimeout"
	ProtocolError     Kind = "ProtocolError"
	EngineExited      Kind = "EngineExited"
	Stale             Kind = "Stale"
	NotOwner          Kind = "NotOwner"
	NotFound          Kind = "NotFound"
	TooLarge          Kind = "TooLarge"
)

// Error wraps a Kind with a human-readable detail and, optionally, a
// location (line/column) for Malformed import errors.
type Error struct {
	Kind   Kind
	Detail string
	Line   int
	Column int
	err    error
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%v: %v (line %v, col %v)", e.Kind, e.Detail, e.Line, e.Column)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, kifuerr.New(kifuerr.NotFound, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New constructs an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), err: err}
}

// At attaches a line/column location, for Malformed import errors.
func (e *Error) At(line, column int) *Error {
	e.Line = line
	e.Column = column
	return e
}

// KindOf extracts the Kind from err, if it (or something it wraps) is an
// *Error. Returns ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
