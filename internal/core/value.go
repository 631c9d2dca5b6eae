package core

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Kind is the closed set of field value types.
type Kind uint8

const (
	KindNone Kind = iota // zero-length marker
	KindUint
	KindInt
	KindBool
	KindIPv4
	KindIPv6
	KindBytes
	KindString
	KindAbsTime
	KindRelTime
	KindProtocol // protocol root item; carries no value
)

var kindNames = [...]string{
	KindNone:     "none",
	KindUint:     "uint",
	KindInt:      "int",
	KindBool:     "bool",
	KindIPv4:     "ipv4",
	KindIPv6:     "ipv6",
	KindBytes:    "bytes",
	KindString:   "string",
	KindAbsTime:  "abs_time",
	KindRelTime:  "rel_time",
	KindProtocol: "protocol",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Base selects how integers are rendered.
type Base uint8

const (
	BaseDec Base = iota
	BaseHex
	BaseDecHex
	BaseNone
)

const maxBytesShown = 24

// Value is a decoded field value. Only the members selected by Kind are meaningful.
type Value struct {
	kind  Kind
	width int // bit width for integers
	u     uint64
	i     int64
	mask  uint64
	addr  netip.Addr
	b     []byte
	s     string
	t     time.Time
	d     time.Duration
}

func NoneValue() Value { return Value{kind: KindNone} }

// UintValue holds an unsigned integer of the given bit width.
func UintValue(width int, v uint64) Value { return Value{kind: KindUint, width: width, u: v} }

// IntValue holds a signed integer of the given bit width.
func IntValue(width int, v int64) Value { return Value{kind: KindInt, width: width, i: v} }

// BoolValue holds a flag. raw is the full field value; the flag is set when raw&mask != 0.
// A zero mask treats any nonzero raw as set.
func BoolValue(width int, mask, raw uint64) Value {
	return Value{kind: KindBool, width: width, mask: mask, u: raw}
}

// AddrValue holds an IPv4 or IPv6 address.
func AddrValue(a netip.Addr) Value {
	if a.Is4() {
		return Value{kind: KindIPv4, addr: a}
	}
	return Value{kind: KindIPv6, addr: a}
}

func BytesValue(b []byte) Value { return Value{kind: KindBytes, b: b} }
func StringValue(s string) Value { return Value{kind: KindString, s: s} }
func AbsTimeValue(t time.Time) Value { return Value{kind: KindAbsTime, t: t} }
func RelTimeValue(d time.Duration) Value { return Value{kind: KindRelTime, d: d} }

func (v Value) Kind() Kind { return v.kind }

// Uint returns the integer value; booleans yield 1 when set.
func (v Value) Uint() uint64 {
	switch v.kind {
	case KindUint:
		return v.u
	case KindInt:
		return uint64(v.i)
	case KindBool:
		if v.Bool() {
			return 1
		}
	}
	return 0
}

func (v Value) Int() int64 {
	if v.kind == KindInt {
		return v.i
	}
	return int64(v.Uint())
}

func (v Value) Bool() bool {
	switch v.kind {
	case KindBool:
		if v.mask == 0 {
			return v.u != 0
		}
		return v.u&v.mask != 0
	case KindUint:
		return v.u != 0
	}
	return false
}

func (v Value) Addr() netip.Addr { return v.addr }
func (v Value) Bytes() []byte { return v.b }
func (v Value) Time() time.Time { return v.t }
func (v Value) Duration() time.Duration { return v.d }

// Text returns the string member of KindString values.
func (v Value) Text() string { return v.s }

// Interface returns the value as a plain Go value for encoders.
func (v Value) Interface() any {
	switch v.kind {
	case KindUint:
		return v.u
	case KindInt:
		return v.i
	case KindBool:
		return v.Bool()
	case KindIPv4, KindIPv6:
		return v.addr.String()
	case KindBytes:
		return hex.EncodeToString(v.b)
	case KindString:
		return v.s
	case KindAbsTime:
		return v.t.UTC().Format(time.RFC3339Nano)
	case KindRelTime:
		return v.d.Seconds()
	}
	return nil
}

func (v Value) String() string { return v.Format(BaseDec) }

// Format renders the value. base only affects integers.
func (v Value) Format(base Base) string {
	switch v.kind {
	case KindNone, KindProtocol:
		return ""
	case KindUint:
		return formatUint(v.u, v.width, base)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindBool:
		if v.Bool() {
			return "Set"
		}
		return "Not set"
	case KindIPv4, KindIPv6:
		return v.addr.String()
	case KindBytes:
		return formatBytes(v.b)
	case KindString:
		return v.s
	case KindAbsTime:
		return v.t.UTC().Format("Jan  2, 2006 15:04:05.000000000 UTC")
	case KindRelTime:
		return fmt.Sprintf("%.9f seconds", v.d.Seconds())
	}
	panic(fmt.Sprintf("core: unhandled value kind %d", v.kind))
}

func formatUint(u uint64, width int, base Base) string {
	digits := (width + 3) / 4
	if digits == 0 {
		digits = 1
	}
	switch base {
	case BaseHex:
		return fmt.Sprintf("0x%0*x", digits, u)
	case BaseDecHex:
		return fmt.Sprintf("%d (0x%0*x)", u, digits, u)
	}
	return fmt.Sprintf("%d", u)
}

func formatBytes(b []byte) string {
	if len(b) == 0 {
		return "<MISSING>"
	}
	n := min(len(b), maxBytesShown)
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02x", b[i])
	}
	if len(b) > n {
		sb.WriteString("…")
	}
	return sb.String()
}

// BitPattern renders the mask as a dotted bit string for the value, e.g. "..1. ....".
func BitPattern(width int, mask, raw uint64) string {
	var sb strings.Builder
	for i := width - 1; i >= 0; i-- {
		bit := uint64(1) << uint(i)
		switch {
		case mask&bit == 0:
			sb.WriteByte('.')
		case raw&bit != 0:
			sb.WriteByte('1')
		default:
			sb.WriteByte('0')
		}
		if i > 0 && i%4 == 0 {
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}
