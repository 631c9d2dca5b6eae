// Package core holds the dissection primitives: byte cursors, values, field trees
// and per-frame context.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors, matched with errors.Is.
var (
	// Buffer access errors
	ErrBounds = errors.New("strix: read beyond captured data")

	// Record (TLV / chunk) errors
	ErrRecordTooShort  = errors.New("strix: record too short")
	ErrRecordTruncated = errors.New("strix: record truncated")

	// Dissection errors
	ErrMalformed       = errors.New("strix: malformed packet")
	ErrNestingTooDeep  = errors.New("strix: nesting too deep")
	ErrInvalidArgument = errors.New("strix: invalid argument")

	// Registry errors
	ErrUnknownTable = errors.New("strix: unknown dissector table")

	// Configuration errors
	ErrConfigInvalid = errors.New("strix: invalid configuration")
)

// BoundsError reports a read that does not fit in the captured bytes of a Cursor.
// Truncated is set when the read fits in the reported (on-wire) length, i.e. the
// bytes existed on the wire but were cut off by the capture snap length.
type BoundsError struct {
	Offset    int
	Requested int
	Available int
	Truncated bool
}

func (e *BoundsError) Error() string {
	if e.Truncated {
		return fmt.Sprintf("packet size limited during capture: %d bytes requested at offset %d, %d captured",
			e.Requested, e.Offset, e.Available)
	}
	return fmt.Sprintf("read beyond end of data: %d bytes requested at offset %d, %d available",
		e.Requested, e.Offset, e.Available)
}

func (e *BoundsError) Unwrap() error { return ErrBounds }

// RecordErrorKind classifies a RecordError.
type RecordErrorKind int

const (
	// RecordTooShort: the declared length is smaller than the record header.
	RecordTooShort RecordErrorKind = iota
	// RecordTruncated: the declared length (plus padding) overruns the region.
	RecordTruncated
)

// RecordError is raised by the TLV walker when a record cannot be framed.
type RecordError struct {
	Kind      RecordErrorKind
	Type      uint64
	Offset    int
	Declared  int
	Header    int
	Available int
}

func (e *RecordError) Error() string {
	switch e.Kind {
	case RecordTooShort:
		return fmt.Sprintf("record too short: type %d at offset %d declares length %d, header is %d bytes",
			e.Type, e.Offset, e.Declared, e.Header)
	default:
		return fmt.Sprintf("record truncated: type %d at offset %d declares %d bytes, %d remain",
			e.Type, e.Offset, e.Declared, e.Available)
	}
}

func (e *RecordError) Unwrap() error {
	if e.Kind == RecordTooShort {
		return ErrRecordTooShort
	}
	return ErrRecordTruncated
}

// FieldError binds an error to the tree item under which it should be reported.
// The layer fault boundary attaches its malformed annotation to Field instead of
// the layer's protocol item.
type FieldError struct {
	Field *Field
	Err   error
}

func (e *FieldError) Error() string { return e.Err.Error() }
func (e *FieldError) Unwrap() error { return e.Err }

// At wraps err so that it is reported under f. A nil err stays nil.
func At(f *Field, err error) error {
	if err == nil {
		return nil
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		// The innermost location wins.
		return err
	}
	return &FieldError{Field: f, Err: err}
}

// Malformedf builds an ErrMalformed-wrapping error with a protocol specific cause.
func Malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
