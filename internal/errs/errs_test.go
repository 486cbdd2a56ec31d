package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestIs_MatchesWrappedKind(t *testing.T) {
	base := New(NotFound, "load symbol", errors.New("missing"))
	wrapped := fmt.Errorf("context: %w", base)

	if !Is(wrapped, NotFound) {
		t.Fatalf("Is() = false, want true for wrapped NotFound")
	}
	if Is(wrapped, Io) {
		t.Fatalf("Is() = true for Io, want false")
	}
}

func TestKindOf(t *testing.T) {
	err := New(ParseError, "parse maps", nil)
	kind, ok := KindOf(err)
	if !ok || kind != ParseError {
		t.Fatalf("KindOf() = (%v, %v), want (ParseError, true)", kind, ok)
	}

	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatalf("KindOf() on a plain error = true, want false")
	}
}

func TestError_UnwrapsUnderlyingCause(t *testing.T) {
	cause := errors.New("disk full")
	err := New(Io, "write cache", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is() didn't find the wrapped cause")
	}
}
