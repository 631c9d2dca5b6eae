// Package tlv walks sequences of self-describing type-length-value records.
//
// Two disciplines are supported: a sequential scan that consumes records until
// the region is exhausted (SCTP chunks, parameters and error causes) and a chain
// in which each record header names the type of the record that follows,
// terminated by a zero "none" type (ISAKMP payloads).
//
// Every step advances by at least the header width, so malformed input cannot
// make a walk loop.
package tlv

import (
	"fmt"

	"firestige.xyz/strix/internal/core"
)

// None terminates a chain.
const None = 0

// DefaultMaxRecords caps the records decoded from a single region.
const DefaultMaxRecords = 4096

// Format describes the record header. Offsets and widths are in bytes.
type Format struct {
	TypeOffset   int
	TypeWidth    int // 0 for chains whose type comes from the previous header
	NextOffset   int
	NextWidth    int // 0 for sequential formats
	LengthOffset int
	LengthWidth  int
	HeaderWidth  int
	Align        int
	// LengthIncludesHeader is set when the declared length counts the header bytes.
	LengthIncludesHeader bool
	// AllowShortFinalPad accepts a last record whose trailing padding was omitted.
	AllowShortFinalPad bool
}

// Padding returns the bytes needed to bring length up to a multiple of align.
func Padding(length, align int) int {
	if align <= 1 {
		return 0
	}
	return (align - length%align) % align
}

// Record is one framed element of a sequence.
type Record struct {
	Type    uint64
	Next    uint64 // chain formats only
	Offset  int    // offset of the header in the walked cursor
	Length  int    // declared length normalized to include the header
	Padding int
	Total   int // Length + Padding, the distance to the next record

	// Record covers the header and value, Value only the value.
	Record *core.Cursor
	Value  *core.Cursor
}

// ValueLength is Length minus the header.
func (r Record) ValueLength() int { return r.Value.ReportedLen() }

// Walker carries the framing rules for one record family.
type Walker struct {
	Format     Format
	MaxRecords int
	// Partial receives the header of a record that cannot be framed so callers can
	// render what is known before the fault. Record covers the bytes that remain and
	// Value may be nil. Its return value replaces err.
	Partial func(r Record, err *core.RecordError) error
}

// Walk runs a sequential walk of cur from start to the end of the reported data.
func Walk(cur *core.Cursor, start int, f Format, fn func(Record) error) error {
	return Walker{Format: f}.Walk(cur, start, fn)
}

// Chain follows a linked payload chain beginning with type first.
func Chain(cur *core.Cursor, start int, first uint64, f Format, fn func(Record) error) (uint64, error) {
	return Walker{Format: f}.Chain(cur, start, first, fn)
}

// Walk decodes records sequentially until the region is exhausted or a record
// faults. Records handed to fn before the fault stay decoded.
func (w Walker) Walk(cur *core.Cursor, start int, fn func(Record) error) error {
	off := start
	for n := 0; cur.ReportedRemaining(off) > 0; n++ {
		if err := w.checkCount(n); err != nil {
			return err
		}
		rec, err := w.frame(cur, off, 0, true)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		off += rec.Total
	}
	return nil
}

// Chain decodes records following each header's next-type field. It stops at a
// None type or at the end of the region and returns the type that was still
// expected when the region ran out (None after a proper termination).
func (w Walker) Chain(cur *core.Cursor, start int, first uint64, fn func(Record) error) (uint64, error) {
	off := start
	typ := first
	for n := 0; typ != None; n++ {
		if cur.ReportedRemaining(off) == 0 {
			return typ, nil
		}
		if err := w.checkCount(n); err != nil {
			return typ, err
		}
		rec, err := w.frame(cur, off, typ, false)
		if err != nil {
			return typ, err
		}
		if err := fn(rec); err != nil {
			return typ, err
		}
		typ = rec.Next
		off += rec.Total
	}
	return None, nil
}

func (w Walker) checkCount(n int) error {
	limit := w.MaxRecords
	if limit <= 0 {
		limit = DefaultMaxRecords
	}
	if n >= limit {
		return core.Malformedf("more than %d records", limit)
	}
	return nil
}

func (w Walker) frame(cur *core.Cursor, off int, typ uint64, readType bool) (Record, error) {
	f := w.Format
	rem := cur.ReportedRemaining(off)
	rec := Record{Type: typ, Offset: off}

	if rem < f.HeaderWidth {
		rec.Record, _ = cur.Slice(off, rem)
		return rec, w.fault(rec, &core.RecordError{
			Kind:      core.RecordTruncated,
			Type:      typ,
			Offset:    cur.Origin() + off,
			Declared:  f.HeaderWidth,
			Header:    f.HeaderWidth,
			Available: rem,
		})
	}

	var err error
	if readType && f.TypeWidth > 0 {
		if rec.Type, err = cur.UintN(off+f.TypeOffset, f.TypeWidth, false); err != nil {
			return rec, err
		}
	}
	if f.NextWidth > 0 {
		if rec.Next, err = cur.UintN(off+f.NextOffset, f.NextWidth, false); err != nil {
			return rec, err
		}
	}
	declared, err := cur.UintN(off+f.LengthOffset, f.LengthWidth, false)
	if err != nil {
		return rec, err
	}

	length := int(declared)
	if !f.LengthIncludesHeader {
		length += f.HeaderWidth
	}
	rec.Length = length

	if length < f.HeaderWidth {
		rec.Record, _ = cur.Slice(off, min(f.HeaderWidth, rem))
		return rec, w.fault(rec, &core.RecordError{
			Kind:      core.RecordTooShort,
			Type:      rec.Type,
			Offset:    cur.Origin() + off,
			Declared:  length,
			Header:    f.HeaderWidth,
			Available: rem,
		})
	}

	rec.Padding = Padding(length, f.Align)
	rec.Total = length + rec.Padding
	if rec.Total > rem {
		if length <= rem && f.AllowShortFinalPad {
			rec.Padding = rem - length
			rec.Total = rem
		} else {
			rec.Record, _ = cur.Slice(off, rem)
			if rec.Record != nil {
				rec.Value, _ = rec.Record.Slice(f.HeaderWidth, rem-f.HeaderWidth)
			}
			return rec, w.fault(rec, &core.RecordError{
				Kind:      core.RecordTruncated,
				Type:      rec.Type,
				Offset:    cur.Origin() + off,
				Declared:  length,
				Header:    f.HeaderWidth,
				Available: rem,
			})
		}
	}

	if rec.Record, err = cur.Slice(off, length); err != nil {
		return rec, err
	}
	if rec.Value, err = rec.Record.Slice(f.HeaderWidth, length-f.HeaderWidth); err != nil {
		return rec, err
	}
	return rec, nil
}

func (w Walker) fault(rec Record, err *core.RecordError) error {
	if w.Partial == nil || rec.Record == nil {
		return err
	}
	return w.Partial(rec, err)
}

// Encode builds one record. typ is written when the format has a type field and
// next when it has a next-type field. The value is followed by zero padding.
func Encode(f Format, typ, next uint64, value []byte) ([]byte, error) {
	length := f.HeaderWidth + len(value)
	declared := length
	if !f.LengthIncludesHeader {
		declared = len(value)
	}
	if f.LengthWidth < 1 || f.LengthWidth > 8 {
		return nil, fmt.Errorf("%w: length width %d", core.ErrInvalidArgument, f.LengthWidth)
	}
	if f.LengthWidth < 8 && uint64(declared) >= 1<<(8*uint(f.LengthWidth)) {
		return nil, fmt.Errorf("%w: %d-byte value does not fit the length field", core.ErrInvalidArgument, len(value))
	}
	out := make([]byte, length+Padding(length, f.Align))
	if f.TypeWidth > 0 {
		putUint(out[f.TypeOffset:], f.TypeWidth, typ)
	}
	if f.NextWidth > 0 {
		putUint(out[f.NextOffset:], f.NextWidth, next)
	}
	putUint(out[f.LengthOffset:], f.LengthWidth, uint64(declared))
	copy(out[f.HeaderWidth:], value)
	return out, nil
}

func putUint(b []byte, width int, v uint64) {
	for i := width - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}
