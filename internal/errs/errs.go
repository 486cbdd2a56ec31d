// Package errs defines the error taxonomy shared by every layer of the
// symbolization engine, so a caller at the top (package symbolize) can tell
// a missing file apart from a malformed one without string-matching error
// text.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// NotFound means a required file, symbol, or sub-resolver is absent.
	NotFound Kind = iota
	// Io means an underlying read/mmap failure occurred.
	Io
	// ParseError means malformed ELF, DWARF, GSYM, archive directory, maps
	// line, or kallsyms line.
	ParseError
	// PermissionDenied means kallsyms is present but addresses are zeroed.
	PermissionDenied
	// InvalidInput means an address fell inside a mapped archive region but
	// no member contained it, or a path isn't openable as the claimed format.
	InvalidInput
	// Unsupported means a detected feature (e.g. a compressed archive
	// member) isn't implemented.
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case Io:
		return "io"
	case ParseError:
		return "parse error"
	case PermissionDenied:
		return "permission denied"
	case InvalidInput:
		return "invalid input"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error carries the failed operation's kind plus a contextual chain: Op
// describes what the engine was trying to do, and Err is either the
// underlying cause or another *Error one level down.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op, wrapping err (which may be nil).
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, if it (or something it wraps) is an
// *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
