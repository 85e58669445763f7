package patch

import (
	"errors"
	"fmt"
)

var (
	// ErrSpanMismatch is matched by every SpanMismatchError.
	ErrSpanMismatch = errors.New("unexpected node kind at span")

	// ErrParseFailure is matched by every ParseError.
	ErrParseFailure = errors.New("parse failure")

	// ErrStaleFile is returned when a file changed after its spans were
	// computed.
	ErrStaleFile = errors.New("file changed since analysis")
)

// SpanMismatchError reports that the node enclosing a span is not a
// removable declaration, or not the one the span expected. The source text
// is left unchanged.
type SpanMismatchError struct {
	Path string
	Span Span
	// Kind and Name describe the node found, empty when no node encloses
	// the span.
	Kind string
	Name string
}

func (e *SpanMismatchError) Error() string {
	found := "no enclosing node"
	if e.Kind != "" {
		found = e.Kind
		if e.Name != "" {
			found += " " + e.Name
		}
	}
	want := ""
	if e.Span.Name != "" {
		want = fmt.Sprintf(" (want %s)", e.Span.Name)
	}
	return fmt.Sprintf("%s: %s [%d,%d): found %s%s",
		ErrSpanMismatch, e.Path, e.Span.Start, e.Span.End, found, want)
}

// Is reports whether target is ErrSpanMismatch.
func (e *SpanMismatchError) Is(target error) bool {
	return target == ErrSpanMismatch
}

// ParseError reports source text that could not be parsed cleanly, either
// before patching or after a removal.
type ParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrParseFailure, e.Path)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the parser error, if any.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrParseFailure.
func (e *ParseError) Is(target error) bool {
	return target == ErrParseFailure
}
