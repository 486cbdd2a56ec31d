package symbolize

import "github.com/mvandenburgh/symbolize/internal/errs"

// ErrorKind classifies why a call into this package failed.
type ErrorKind = errs.Kind

// The error kinds every public call can return.
const (
	NotFound         = errs.NotFound
	Io               = errs.Io
	ParseError       = errs.ParseError
	PermissionDenied = errs.PermissionDenied
	InvalidInput     = errs.InvalidInput
	Unsupported      = errs.Unsupported
)

// Error is the concrete error type every public call returns: Kind
// classifies the failure, Op names what the engine was attempting, and
// unwrapping reaches the underlying cause.
type Error = errs.Error

// IsKind reports whether err is (or wraps) an Error of the given kind.
func IsKind(err error, kind ErrorKind) bool { return errs.Is(err, kind) }

// KindOf extracts the ErrorKind from err, if it (or something it wraps) is
// an Error.
func KindOf(err error) (ErrorKind, bool) { return errs.KindOf(err) }
