package core

import (
	"encoding/binary"
	"net/netip"
	"strings"
	"unicode/utf8"
)

// Cursor is a bounds-checked, read-only view over packet bytes.
//
// A Cursor has a captured length (bytes actually present) and a reported length
// (the on-wire size). Reads must lie within the captured length; the gap between
// captured and reported length is legal but never readable. Sub-views created
// with Slice share the backing array and never copy.
type Cursor struct {
	data     []byte
	reported int
	origin   int // absolute offset of data[0] in the top-level frame
}

// NewCursor creates a cursor over data. A reportedLen smaller than len(data)
// is raised to len(data).
func NewCursor(data []byte, reportedLen int) *Cursor {
	if reportedLen < len(data) {
		reportedLen = len(data)
	}
	return &Cursor{data: data, reported: reportedLen}
}

// Len returns the captured length.
func (c *Cursor) Len() int { return len(c.data) }

// ReportedLen returns the reported (on-wire) length.
func (c *Cursor) ReportedLen() int { return c.reported }

// Origin returns the absolute offset of this view inside the top-level frame.
func (c *Cursor) Origin() int { return c.origin }

// Truncated reports whether part of this view was not captured.
func (c *Cursor) Truncated() bool { return c.reported > len(c.data) }

// Remaining returns the captured bytes available from off, or 0.
func (c *Cursor) Remaining(off int) int {
	if off < 0 || off >= len(c.data) {
		return 0
	}
	return len(c.data) - off
}

// ReportedRemaining returns the reported bytes from off, or 0.
func (c *Cursor) ReportedRemaining(off int) int {
	if off < 0 || off >= c.reported {
		return 0
	}
	return c.reported - off
}

// Check validates that n bytes at off are captured.
func (c *Cursor) Check(off, n int) error {
	if off < 0 || n < 0 || off > len(c.data) || n > len(c.data)-off {
		avail := c.Remaining(off)
		return &BoundsError{
			Offset:    off,
			Requested: n,
			Available: avail,
			Truncated: off >= 0 && n >= 0 && off <= c.reported && n <= c.reported-off,
		}
	}
	return nil
}

// Uint8 reads one byte.
func (c *Cursor) Uint8(off int) (uint8, error) {
	if err := c.Check(off, 1); err != nil {
		return 0, err
	}
	return c.data[off], nil
}

// Uint16 reads a big-endian 16-bit value.
func (c *Cursor) Uint16(off int) (uint16, error) {
	if err := c.Check(off, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(c.data[off:]), nil
}

// Uint24 reads a big-endian 24-bit value.
func (c *Cursor) Uint24(off int) (uint32, error) {
	if err := c.Check(off, 3); err != nil {
		return 0, err
	}
	b := c.data[off:]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

// Uint32 reads a big-endian 32-bit value.
func (c *Cursor) Uint32(off int) (uint32, error) {
	if err := c.Check(off, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(c.data[off:]), nil
}

// Uint64 reads a big-endian 64-bit value.
func (c *Cursor) Uint64(off int) (uint64, error) {
	if err := c.Check(off, 8); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(c.data[off:]), nil
}

// Uint16LE reads a little-endian 16-bit value.
func (c *Cursor) Uint16LE(off int) (uint16, error) {
	if err := c.Check(off, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(c.data[off:]), nil
}

// Uint32LE reads a little-endian 32-bit value.
func (c *Cursor) Uint32LE(off int) (uint32, error) {
	if err := c.Check(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(c.data[off:]), nil
}

// Uint64LE reads a little-endian 64-bit value.
func (c *Cursor) Uint64LE(off int) (uint64, error) {
	if err := c.Check(off, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(c.data[off:]), nil
}

// UintN reads an unsigned big-endian (or little-endian) integer of 1..8 bytes.
func (c *Cursor) UintN(off, size int, little bool) (uint64, error) {
	if size < 1 || size > 8 {
		return 0, &BoundsError{Offset: off, Requested: size, Available: c.Remaining(off)}
	}
	if err := c.Check(off, size); err != nil {
		return 0, err
	}
	var v uint64
	b := c.data[off : off+size]
	if little {
		for i := size - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v, nil
	}
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

// Int8 reads a signed byte.
func (c *Cursor) Int8(off int) (int8, error) {
	v, err := c.Uint8(off)
	return int8(v), err
}

// Int16 reads a big-endian signed 16-bit value.
func (c *Cursor) Int16(off int) (int16, error) {
	v, err := c.Uint16(off)
	return int16(v), err
}

// Int32 reads a big-endian signed 32-bit value.
func (c *Cursor) Int32(off int) (int32, error) {
	v, err := c.Uint32(off)
	return int32(v), err
}

// Bytes returns n bytes at off without copying. n == -1 means "to the end of captured data".
// The returned slice must not be modified.
func (c *Cursor) Bytes(off, n int) ([]byte, error) {
	if n == -1 {
		n = c.Remaining(off)
	}
	if err := c.Check(off, n); err != nil {
		return nil, err
	}
	return c.data[off : off+n : off+n], nil
}

// CopyBytes returns a copy of n bytes at off.
func (c *Cursor) CopyBytes(off, n int) ([]byte, error) {
	b, err := c.Bytes(off, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// String reads at most n bytes at off as text. Reading stops at the first NUL;
// invalid UTF-8 sequences are replaced.
func (c *Cursor) String(off, n int) (string, error) {
	b, err := c.Bytes(off, n)
	if err != nil {
		return "", err
	}
	for i, x := range b {
		if x == 0 {
			b = b[:i]
			break
		}
	}
	if utf8.Valid(b) {
		return string(b), nil
	}
	return strings.ToValidUTF8(string(b), "�"), nil
}

// IPv4 reads a 4-byte address.
func (c *Cursor) IPv4(off int) (netip.Addr, error) {
	b, err := c.Bytes(off, 4)
	if err != nil {
		return netip.Addr{}, err
	}
	return netip.AddrFrom4([4]byte(b)), nil
}

// IPv6 reads a 16-byte address.
func (c *Cursor) IPv6(off int) (netip.Addr, error) {
	b, err := c.Bytes(off, 16)
	if err != nil {
		return netip.Addr{}, err
	}
	return netip.AddrFrom16([16]byte(b)), nil
}

// Slice returns a sub-view of n bytes starting at off; n == -1 means "to the end".
//
// The sub-view may extend past the captured bytes as long as it stays within the
// reported length: its own captured length is clipped and its reported length
// keeps the remainder, so truncation stays visible to nested dissectors.
func (c *Cursor) Slice(off, n int) (*Cursor, error) {
	if off < 0 || off > c.reported {
		return nil, &BoundsError{Offset: off, Requested: max(n, 0), Available: c.Remaining(off)}
	}
	if n == -1 {
		n = c.reported - off
	}
	if n < 0 || n > c.reported-off {
		return nil, &BoundsError{Offset: off, Requested: n, Available: c.ReportedRemaining(off)}
	}
	captured := min(n, c.Remaining(off))
	start := min(off, len(c.data))
	return &Cursor{
		data:     c.data[start : start+captured : start+captured],
		reported: n,
		origin:   c.origin + off,
	}, nil
}

// Rest is Slice(off, -1).
func (c *Cursor) Rest(off int) (*Cursor, error) {
	return c.Slice(off, -1)
}
