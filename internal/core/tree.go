package core

import (
	"fmt"
	"math/bits"
	"strings"
	"time"
)

// FieldSpec describes one kind of field. Specs are declared once per protocol
// and shared by every tree.
type FieldSpec struct {
	Name   string // display name
	Filter string // stable dotted filter name, e.g. "sctp.chunk_type"
	Kind   Kind
	Width  int // integer width in bits; 0 means derived from the byte length
	Base   Base
	Mask   uint64
	// Strings maps integer values to names, rendered as "NAME (value)".
	Strings map[uint64]string
	// LittleEndian selects byte order for integer reads.
	LittleEndian bool
}

// Field is one node of a dissection tree. Every field may own children.
type Field struct {
	Spec      *FieldSpec
	Start     int // absolute offset in the top-level frame
	Length    int
	Value     Value
	Label     string
	Generated bool
	Hidden    bool
	State     LayerState // protocol items only
	Children  []*Field

	parent *Field
	sink   bool
}

// Filter returns the field's filter name, or "" for text items.
func (f *Field) Filter() string {
	if f.Spec == nil {
		return ""
	}
	return f.Spec.Filter
}

func (f *Field) Parent() *Field { return f.parent }

// Subtree returns the handle under which children are added. It is f itself.
func (f *Field) Subtree() *Field { return f }

// SetGenerated marks f as computed rather than present in the bytes.
func (f *Field) SetGenerated() *Field {
	if !f.sink {
		f.Generated = true
	}
	return f
}

// SetHidden hides f from rendered output while keeping it filterable.
func (f *Field) SetHidden() *Field {
	if !f.sink {
		f.Hidden = true
	}
	return f
}

// AppendText extends f's label.
func (f *Field) AppendText(format string, args ...any) *Field {
	if !f.sink {
		f.Label += fmt.Sprintf(format, args...)
	}
	return f
}

// SetText replaces f's label.
func (f *Field) SetText(format string, args ...any) *Field {
	if !f.sink {
		f.Label = fmt.Sprintf(format, args...)
	}
	return f
}

// SetLength changes f's byte extent once it is known.
func (f *Field) SetLength(n int) *Field {
	if !f.sink && n >= 0 {
		f.Length = n
	}
	return f
}

// Truncate drops all but the first n children.
func (f *Field) Truncate(n int) {
	if !f.sink && n >= 0 && n < len(f.Children) {
		f.Children = f.Children[:n]
	}
}

// Tree is the hierarchical result of dissecting one frame.
//
// An invisible tree performs every bounds check but records nothing: all Add
// calls return a shared sink field that ignores mutation.
type Tree struct {
	visible bool
	root    *Field
	sink    *Field
}

func NewTree(visible bool) *Tree {
	return &Tree{
		visible: visible,
		root:    &Field{},
		sink:    &Field{sink: true},
	}
}

func (t *Tree) Visible() bool { return t.visible }

// Root returns the synthetic top node. Top-level protocol items are its children.
func (t *Tree) Root() *Field { return t.root }

func (t *Tree) attach(parent, f *Field) *Field {
	if parent == nil {
		parent = t.root
	}
	if parent.sink {
		return parent
	}
	f.parent = parent
	parent.Children = append(parent.Children, f)
	return f
}

func span(cur *Cursor, off, length int) (int, error) {
	if length == -1 {
		length = cur.Remaining(off)
	}
	if err := cur.Check(off, length); err != nil {
		return 0, err
	}
	return length, nil
}

// Add decodes a field of spec.Kind from cur[off:off+length] and attaches it under parent.
func (t *Tree) Add(parent *Field, spec *FieldSpec, cur *Cursor, off, length int) (*Field, error) {
	length, err := span(cur, off, length)
	if err != nil {
		return t.sink, err
	}
	v, err := readValue(spec, cur, off, length)
	if err != nil {
		return t.sink, err
	}
	if !t.visible {
		return t.sink, nil
	}
	f := &Field{Spec: spec, Start: cur.Origin() + off, Length: length, Value: v}
	f.Label = label(spec, v)
	return t.attach(parent, f), nil
}

// Item places a field spec at a fixed offset, for laying out headers.
type Item struct {
	Spec   *FieldSpec
	Offset int
	Length int
}

// AddItems adds items under parent in order and stops at the first error, so
// the fields before a truncation are kept.
func (t *Tree) AddItems(parent *Field, cur *Cursor, items []Item) error {
	for _, it := range items {
		if _, err := t.Add(parent, it.Spec, cur, it.Offset, it.Length); err != nil {
			return err
		}
	}
	return nil
}

// AddValue attaches a field whose value was computed by the caller over cur[off:off+length].
func (t *Tree) AddValue(parent *Field, spec *FieldSpec, cur *Cursor, off, length int, v Value) (*Field, error) {
	length, err := span(cur, off, length)
	if err != nil {
		return t.sink, err
	}
	if !t.visible {
		return t.sink, nil
	}
	f := &Field{Spec: spec, Start: cur.Origin() + off, Length: length, Value: v}
	f.Label = label(spec, v)
	return t.attach(parent, f), nil
}

// AddText attaches a label-only item over cur[off:off+length].
func (t *Tree) AddText(parent *Field, cur *Cursor, off, length int, format string, args ...any) (*Field, error) {
	length, err := span(cur, off, length)
	if err != nil {
		return t.sink, err
	}
	if !t.visible {
		return t.sink, nil
	}
	f := &Field{Start: cur.Origin() + off, Length: length, Label: fmt.Sprintf(format, args...)}
	return t.attach(parent, f), nil
}

// AddProtocol attaches a protocol item. length -1 covers the captured rest of cur.
func (t *Tree) AddProtocol(parent *Field, spec *FieldSpec, cur *Cursor, off, length int) (*Field, error) {
	length, err := span(cur, off, length)
	if err != nil {
		return t.sink, err
	}
	if !t.visible {
		return t.sink, nil
	}
	f := &Field{Spec: spec, Start: cur.Origin() + off, Length: length, Label: spec.Name}
	return t.attach(parent, f), nil
}

// AddGenerated attaches a zero-length generated field that has no byte source.
func (t *Tree) AddGenerated(parent *Field, spec *FieldSpec, v Value) *Field {
	if !t.visible {
		return t.sink
	}
	start := 0
	if parent != nil {
		start = parent.Start
	}
	f := &Field{Spec: spec, Start: start, Value: v, Label: label(spec, v), Generated: true}
	return t.attach(parent, f)
}

// Walk visits every field depth-first. Returning false from fn skips the field's children.
func (t *Tree) Walk(fn func(f *Field, depth int) bool) {
	var walk func(f *Field, depth int)
	walk = func(f *Field, depth int) {
		for _, c := range f.Children {
			if fn(c, depth) {
				walk(c, depth+1)
			}
		}
	}
	walk(t.root, 0)
}

// Find returns all fields whose filter name is filter, in tree order.
func (t *Tree) Find(filter string) []*Field {
	var out []*Field
	t.Walk(func(f *Field, _ int) bool {
		if f.Filter() == filter {
			out = append(out, f)
		}
		return true
	})
	return out
}

// First returns the first field named filter, or nil.
func (t *Tree) First(filter string) *Field {
	var found *Field
	t.Walk(func(f *Field, _ int) bool {
		if found != nil {
			return false
		}
		if f.Filter() == filter {
			found = f
			return false
		}
		return true
	})
	return found
}

func readValue(spec *FieldSpec, cur *Cursor, off, length int) (Value, error) {
	switch spec.Kind {
	case KindNone, KindProtocol:
		return NoneValue(), nil
	case KindUint, KindBool, KindInt:
		if length < 1 || length > 8 {
			return Value{}, fmt.Errorf("%w: field %s has length %d", ErrInvalidArgument, spec.Filter, length)
		}
		raw, err := cur.UintN(off, length, spec.LittleEndian)
		if err != nil {
			return Value{}, err
		}
		width := spec.Width
		if width == 0 {
			width = length * 8
		}
		switch spec.Kind {
		case KindBool:
			return BoolValue(width, spec.Mask, raw), nil
		case KindInt:
			shift := 64 - uint(length*8)
			return IntValue(width, int64(raw<<shift)>>shift), nil
		}
		if spec.Mask != 0 {
			raw = (raw & spec.Mask) >> uint(bits.TrailingZeros64(spec.Mask))
		}
		return UintValue(width, raw), nil
	case KindIPv4:
		a, err := cur.IPv4(off)
		return AddrValue(a), err
	case KindIPv6:
		a, err := cur.IPv6(off)
		return AddrValue(a), err
	case KindBytes:
		b, err := cur.Bytes(off, length)
		return BytesValue(b), err
	case KindString:
		s, err := cur.String(off, length)
		return StringValue(s), err
	case KindAbsTime:
		secs, err := cur.Uint32(off)
		return AbsTimeValue(time.Unix(int64(secs), 0)), err
	case KindRelTime:
		ms, err := cur.Uint32(off)
		return RelTimeValue(time.Duration(ms) * time.Millisecond), err
	}
	return Value{}, fmt.Errorf("%w: field %s has unknown kind %s", ErrInvalidArgument, spec.Filter, spec.Kind)
}

// FormatValue renders v the way spec asks: value strings first, then base.
func (spec *FieldSpec) FormatValue(v Value) string {
	if spec.Strings != nil && (v.Kind() == KindUint || v.Kind() == KindInt) {
		if name, ok := spec.Strings[v.Uint()]; ok {
			return fmt.Sprintf("%s (%s)", name, v.Format(spec.Base))
		}
		return fmt.Sprintf("Unknown (%s)", v.Format(spec.Base))
	}
	return v.Format(spec.Base)
}

func label(spec *FieldSpec, v Value) string {
	var sb strings.Builder
	if spec.Mask != 0 && (v.Kind() == KindBool || v.Kind() == KindUint) {
		width := v.width
		raw := v.u
		if v.Kind() == KindUint {
			raw = v.u << uint(bits.TrailingZeros64(spec.Mask))
		}
		sb.WriteString(BitPattern(width, spec.Mask, raw))
		sb.WriteString(" = ")
	}
	sb.WriteString(spec.Name)
	if v.Kind() == KindNone || v.Kind() == KindProtocol {
		return sb.String()
	}
	sb.WriteString(": ")
	sb.WriteString(spec.FormatValue(v))
	return sb.String()
}
