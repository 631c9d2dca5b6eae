// Package checksum verifies packet checksums. Results are informational: a
// mismatch is a fact about the packet, never an error.
package checksum

import (
	"fmt"
	"hash/adler32"
	"hash/crc32"
	"math/bits"
	"strings"

	"firestige.xyz/strix/internal/core"
)

// Algorithm identifies a checksum computation.
type Algorithm uint8

const (
	AlgNone Algorithm = iota
	AlgInternet
	AlgAdler32
	AlgCRC32C
)

func (a Algorithm) String() string {
	switch a {
	case AlgNone:
		return "none"
	case AlgInternet:
		return "internet"
	case AlgAdler32:
		return "adler32"
	case AlgCRC32C:
		return "crc32c"
	}
	return fmt.Sprintf("algorithm(%d)", uint8(a))
}

// Mode selects which substitution checksum a protocol instance verifies.
type Mode uint8

const (
	ModeNone Mode = iota
	ModeAdler32
	ModeCRC32C
	ModeEither // accept whichever algorithm matches
)

var modeNames = map[string]Mode{
	"none":    ModeNone,
	"adler32": ModeAdler32,
	"crc32c":  ModeCRC32C,
	"either":  ModeEither,
}

func (m Mode) String() string {
	for k, v := range modeNames {
		if v == m {
			return k
		}
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode parses "none", "adler32", "crc32c" or "either".
func ParseMode(s string) (Mode, error) {
	m, ok := modeNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return ModeNone, fmt.Errorf("%w: unknown checksum mode %q", core.ErrConfigInvalid, s)
	}
	return m, nil
}

// UnmarshalText lets config decoders fill a Mode from its name.
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Status is the outcome of a verification.
type Status uint8

const (
	Unverified Status = iota
	Good
	Bad
)

func (s Status) String() string {
	switch s {
	case Good:
		return "Good"
	case Bad:
		return "Bad"
	}
	return "Unverified"
}

// Result of one verification. Computed is the value the field should hold.
type Result struct {
	Algorithm Algorithm
	Computed  uint32
	Expected  uint32
	Status    Status
}

// Label renders the result the way a checksum field line reads, e.g.
// "0x1234 [correct]" or "0x1234 [incorrect, should be 0x4321]".
func (r Result) Label(digits int) string {
	switch r.Status {
	case Good:
		return fmt.Sprintf("0x%0*x [correct]", digits, r.Expected)
	case Bad:
		return fmt.Sprintf("0x%0*x [incorrect, should be 0x%0*x]", digits, r.Expected, digits, r.Computed)
	}
	return fmt.Sprintf("0x%0*x [unverified]", digits, r.Expected)
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Internet computes the ones-complement checksum over the concatenation of parts.
// An odd trailing byte of one part pairs with the first byte of the next.
func Internet(parts ...[]byte) uint16 {
	return ^fold(sum(parts))
}

func sum(parts [][]byte) uint32 {
	var s uint32
	var odd bool
	var hi byte
	for _, p := range parts {
		i := 0
		if odd && len(p) > 0 {
			s += uint32(hi)<<8 | uint32(p[0])
			i = 1
			odd = false
		}
		for ; i+1 < len(p); i += 2 {
			s += uint32(p[i])<<8 | uint32(p[i+1])
		}
		if i < len(p) {
			hi = p[i]
			odd = true
		}
		s = uint32(fold(s))
	}
	if odd {
		s += uint32(hi) << 8
	}
	return s
}

func fold(s uint32) uint16 {
	for s>>16 != 0 {
		s = s&0xffff + s>>16
	}
	return uint16(s)
}

// VerifyInternet checks received bytes (checksum field included as received).
// They verify when the checksum over them is zero. Computed is derived by
// removing expected from the running sum, so callers never patch the packet.
func VerifyInternet(expected uint16, parts ...[]byte) Result {
	s := sum(parts)
	r := Result{Algorithm: AlgInternet, Expected: uint32(expected)}
	without := fold(uint32(fold(s)) + uint32(^expected))
	r.Computed = uint32(^without)
	if ^fold(s) == 0 {
		r.Status = Good
		r.Computed = uint32(expected)
	} else {
		r.Status = Bad
	}
	return r
}

// Adler32Substituted computes Adler-32 over data with the four bytes at fieldOff
// replaced by zeros.
func Adler32Substituted(data []byte, fieldOff int) uint32 {
	h := adler32.New()
	substitute(data, fieldOff, func(b []byte) { _, _ = h.Write(b) })
	return h.Sum32()
}

// CRC32CSubstituted computes CRC-32C over data with the four bytes at fieldOff
// replaced by zeros. The result is the complemented accumulator byte-swapped,
// which is what a big-endian read of the checksum field yields.
func CRC32CSubstituted(data []byte, fieldOff int) uint32 {
	var crc uint32
	substitute(data, fieldOff, func(b []byte) { crc = crc32.Update(crc, castagnoli, b) })
	return bits.ReverseBytes32(crc)
}

var zero4 [4]byte

func substitute(data []byte, off int, write func([]byte)) {
	if off < 0 || off+4 > len(data) {
		write(data)
		return
	}
	write(data[:off])
	write(zero4[:])
	write(data[off+4:])
}

// Verify checks the 4-byte checksum at fieldOff in cur against expected using mode.
// Regions with uncaptured bytes are left unverified.
func Verify(mode Mode, cur *core.Cursor, fieldOff int, expected uint32) Result {
	r := Result{Expected: expected}
	switch mode {
	case ModeNone:
		return r
	case ModeAdler32:
		r.Algorithm = AlgAdler32
	case ModeCRC32C, ModeEither:
		r.Algorithm = AlgCRC32C
	}
	if cur.Truncated() {
		return r
	}
	data, err := cur.Bytes(0, -1)
	if err != nil {
		return r
	}

	switch mode {
	case ModeAdler32:
		r.Computed = Adler32Substituted(data, fieldOff)
	case ModeCRC32C:
		r.Computed = CRC32CSubstituted(data, fieldOff)
	case ModeEither:
		r.Computed = CRC32CSubstituted(data, fieldOff)
		if r.Computed != expected {
			if a := Adler32Substituted(data, fieldOff); a == expected {
				r.Algorithm = AlgAdler32
				r.Computed = a
			}
		}
	}
	if r.Computed == expected {
		r.Status = Good
	} else {
		r.Status = Bad
	}
	return r
}
