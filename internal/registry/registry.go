// Package registry holds the dissector tables.
//
// Registration happens once, on a single goroutine, through a Builder. Build
// freezes the result into a Registry that is never mutated again and may be
// shared by any number of dissecting goroutines.
package registry

import (
	"sort"
	"strconv"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/log"
)

// KeyKind is the type of a table's dispatch keys.
type KeyKind uint8

const (
	KeyUint KeyKind = iota
	KeyString
)

func (k KeyKind) String() string {
	if k == KeyString {
		return "string"
	}
	return "uint"
}

// Table maps dispatch keys to dissectors.
type Table struct {
	Name    string
	Display string
	Kind    KeyKind

	uints      map[uint64]Handle
	strs       map[string]Handle
	heuristics []HeuristicHandle
}

// Entry is one registered key, for listings.
type Entry struct {
	Key      string
	Protocol *Protocol
}

// Entries returns the table's keys in ascending order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.uints)+len(t.strs))
	if t.Kind == KeyUint {
		keys := make([]uint64, 0, len(t.uints))
		for k := range t.uints {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, k := range keys {
			out = append(out, Entry{Key: strconv.FormatUint(k, 10), Protocol: t.uints[k].Protocol})
		}
		return out
	}
	keys := make([]string, 0, len(t.strs))
	for k := range t.strs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, Entry{Key: k, Protocol: t.strs[k].Protocol})
	}
	return out
}

// Heuristics returns the table's heuristic dissectors in registration order.
func (t *Table) Heuristics() []HeuristicHandle { return t.heuristics }

// Registry is the frozen, read-only set of tables, protocols and fields.
type Registry struct {
	tables    map[string]*Table
	protocols map[string]*Protocol
	followers map[string][]Handle
	fields    map[string]*core.FieldSpec
	disabled  map[string]bool
}

func newRegistry() *Registry {
	return &Registry{
		tables:    make(map[string]*Table),
		protocols: make(map[string]*Protocol),
		followers: make(map[string][]Handle),
		fields:    make(map[string]*core.FieldSpec),
		disabled:  make(map[string]bool),
	}
}

func (r *Registry) table(op, name string, kind KeyKind) *Table {
	t, ok := r.tables[name]
	if !ok {
		panic(programmerError(op, core.ErrUnknownTable, "table %q is not registered", name))
	}
	if t.Kind != kind {
		panic(programmerError(op, core.ErrInvalidArgument, "table %q has %s keys, not %s", name, t.Kind, kind))
	}
	return t
}

// Lookup finds the dissector for key in an integer table. An unknown key is a
// normal miss. An unknown table panics with a *ProgrammerError.
func (r *Registry) Lookup(table string, key uint64) (Handle, bool) {
	t := r.table("lookup", table, KeyUint)
	h, ok := t.uints[key]
	if !ok || r.disabled[h.Protocol.Filter] {
		return Handle{}, false
	}
	return h, true
}

// LookupString is Lookup for string-keyed tables.
func (r *Registry) LookupString(table, key string) (Handle, bool) {
	t := r.table("lookup", table, KeyString)
	h, ok := t.strs[key]
	if !ok || r.disabled[h.Protocol.Filter] {
		return Handle{}, false
	}
	return h, true
}

// Heuristics returns the enabled heuristic dissectors registered on table.
func (r *Registry) Heuristics(table string) []HeuristicHandle {
	t, ok := r.tables[table]
	if !ok {
		panic(programmerError("heuristics", core.ErrUnknownTable, "table %q is not registered", table))
	}
	if len(r.disabled) == 0 {
		return t.heuristics
	}
	out := make([]HeuristicHandle, 0, len(t.heuristics))
	for _, h := range t.heuristics {
		if !r.disabled[h.Protocol.Filter] {
			out = append(out, h)
		}
	}
	return out
}

// Followers returns the dissectors that always run after a layer of protocol.
func (r *Registry) Followers(protocol string) []Handle { return r.followers[protocol] }

func (r *Registry) HasTable(name string) bool {
	_, ok := r.tables[name]
	return ok
}

// Tables returns every table sorted by name.
func (r *Registry) Tables() []*Table {
	out := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Protocol returns the protocol with the given filter name, or nil.
func (r *Registry) Protocol(filter string) *Protocol { return r.protocols[filter] }

// Protocols returns every protocol sorted by filter name.
func (r *Registry) Protocols() []*Protocol {
	out := make([]*Protocol, 0, len(r.protocols))
	for _, p := range r.protocols {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filter < out[j].Filter })
	return out
}

func (r *Registry) Enabled(filter string) bool { return !r.disabled[filter] }

// Field returns the spec registered under filter, or nil.
func (r *Registry) Field(filter string) *core.FieldSpec { return r.fields[filter] }

// Fields returns every registered field spec sorted by filter name.
func (r *Registry) Fields() []*core.FieldSpec {
	out := make([]*core.FieldSpec, 0, len(r.fields))
	for _, f := range r.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filter < out[j].Filter })
	return out
}

// Builder collects registrations. It is not safe for concurrent use.
type Builder struct {
	r     *Registry
	built bool
	log   log.Logger
}

func NewBuilder(logger log.Logger) *Builder {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Builder{r: newRegistry(), log: logger}
}

func (b *Builder) mustOpen(op string) {
	if b.built {
		panic(programmerError(op, nil, "builder used after Build"))
	}
}

// RegisterTable declares a dispatch table. Declaring the same table twice with
// the same key kind is allowed.
func (b *Builder) RegisterTable(name string, kind KeyKind, display string) {
	b.mustOpen("register table")
	if t, ok := b.r.tables[name]; ok {
		if t.Kind != kind {
			panic(programmerError("register table", core.ErrInvalidArgument,
				"table %q already registered with %s keys", name, t.Kind))
		}
		return
	}
	b.r.tables[name] = &Table{
		Name:    name,
		Display: display,
		Kind:    kind,
		uints:   make(map[uint64]Handle),
		strs:    make(map[string]Handle),
	}
}

// RegisterProtocol declares a protocol. Registering the same *Protocol again is a no-op.
func (b *Builder) RegisterProtocol(p *Protocol) {
	b.mustOpen("register protocol")
	if p == nil || p.Filter == "" {
		panic(programmerError("register protocol", core.ErrInvalidArgument, "protocol without a filter name"))
	}
	if prev, ok := b.r.protocols[p.Filter]; ok {
		if prev != p {
			panic(programmerError("register protocol", core.ErrInvalidArgument, "protocol %q registered twice", p.Filter))
		}
		return
	}
	b.r.protocols[p.Filter] = p
	b.r.fields[p.Filter] = p.spec
}

// RegisterDissector binds key in an integer table. A second registration of the
// same key replaces the first.
func (b *Builder) RegisterDissector(table string, key uint64, h Handle) {
	b.mustOpen("register dissector")
	t := b.r.table("register dissector", table, KeyUint)
	b.checkHandle(h)
	if prev, ok := t.uints[key]; ok {
		b.log.WithFields(map[string]interface{}{"table": table, "key": key}).
			Debugf("replacing dissector %s with %s", prev.Protocol, h.Protocol)
	}
	t.uints[key] = h
}

// RegisterDissectorString binds key in a string table. Last registration wins.
func (b *Builder) RegisterDissectorString(table, key string, h Handle) {
	b.mustOpen("register dissector")
	t := b.r.table("register dissector", table, KeyString)
	b.checkHandle(h)
	if prev, ok := t.strs[key]; ok {
		b.log.WithFields(map[string]interface{}{"table": table, "key": key}).
			Debugf("replacing dissector %s with %s", prev.Protocol, h.Protocol)
	}
	t.strs[key] = h
}

// RegisterHeuristic appends a heuristic dissector to table.
func (b *Builder) RegisterHeuristic(table string, h HeuristicHandle) {
	b.mustOpen("register heuristic")
	t, ok := b.r.tables[table]
	if !ok {
		panic(programmerError("register heuristic", core.ErrUnknownTable, "table %q is not registered", table))
	}
	if h.Protocol == nil || h.Heuristic == nil {
		panic(programmerError("register heuristic", core.ErrInvalidArgument, "incomplete heuristic handle"))
	}
	b.RegisterProtocol(h.Protocol)
	t.heuristics = append(t.heuristics, h)
}

// RegisterPostDissector makes h run after every layer of protocol, faulted or not.
func (b *Builder) RegisterPostDissector(protocol string, h Handle) {
	b.mustOpen("register post-dissector")
	b.checkHandle(h)
	b.r.followers[protocol] = append(b.r.followers[protocol], h)
}

// RegisterFields adds field specs to the filter namespace. A filter name may be
// registered only once.
func (b *Builder) RegisterFields(specs ...*core.FieldSpec) {
	b.mustOpen("register fields")
	for _, s := range specs {
		if s == nil || s.Filter == "" {
			panic(programmerError("register fields", core.ErrInvalidArgument, "field without a filter name"))
		}
		if prev, ok := b.r.fields[s.Filter]; ok && prev != s {
			panic(programmerError("register fields", core.ErrInvalidArgument, "field %q registered twice", s.Filter))
		}
		b.r.fields[s.Filter] = s
	}
}

// DisableProtocol keeps a protocol registered but makes lookups skip it.
func (b *Builder) DisableProtocol(filter string) {
	b.mustOpen("disable protocol")
	b.r.disabled[filter] = true
}

// Build freezes the registrations. The builder cannot be used afterwards.
func (b *Builder) Build() *Registry {
	b.mustOpen("build")
	b.built = true
	for name := range b.r.disabled {
		if _, ok := b.r.protocols[name]; !ok {
			b.log.Warnf("disabled protocol %q is not registered", name)
		}
	}
	b.log.WithFields(map[string]interface{}{
		"tables":    len(b.r.tables),
		"protocols": len(b.r.protocols),
		"fields":    len(b.r.fields),
	}).Debug("dissector registry built")
	return b.r
}

func (b *Builder) checkHandle(h Handle) {
	if !h.valid() {
		panic(programmerError("register dissector", core.ErrInvalidArgument, "incomplete handle"))
	}
	b.RegisterProtocol(h.Protocol)
}
