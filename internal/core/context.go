package core

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// DefaultMaxDepth bounds layer nesting per frame.
const DefaultMaxDepth = 64

// Column identifies a summary column.
type Column int

const (
	ColProtocol Column = iota
	ColInfo
	ColSource
	ColDestination
	numColumns
)

// Severity of a warning.
type Severity int

const (
	SeverityChat Severity = iota
	SeverityNote
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityChat:
		return "chat"
	case SeverityNote:
		return "note"
	case SeverityWarn:
		return "warning"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Warning is an annotation about the packet, e.g. a bad checksum or a malformed layer.
type Warning struct {
	Severity Severity
	Group    string // "malformed", "checksum", "protocol", "sequence"
	Protocol string
	Message  string
	Field    *Field
}

// LayerState is the lifecycle of one dissected layer.
type LayerState uint8

const (
	LayerIdle LayerState = iota
	LayerRunning
	LayerCompleted
	LayerFaulted
)

func (s LayerState) String() string {
	switch s {
	case LayerIdle:
		return "idle"
	case LayerRunning:
		return "running"
	case LayerCompleted:
		return "completed"
	case LayerFaulted:
		return "faulted"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Layer records the outcome of one layer in a frame.
type Layer struct {
	Protocol string
	State    LayerState
	Err      error
}

// Context is per-frame mutable scratch state. It is never shared between frames.
type Context struct {
	Frame     int
	Timestamp time.Time
	Visible   bool

	// Addressing of the innermost network and transport layers seen so far.
	SrcAddr, DstAddr netip.Addr
	SrcPort, DstPort uint32

	Warnings []Warning
	Layers   []Layer

	MaxDepth int
	depth    int

	protocols []string
	columns   [numColumns]string
}

func NewContext(frame int, ts time.Time, visible bool) *Context {
	return &Context{Frame: frame, Timestamp: ts, Visible: visible, MaxDepth: DefaultMaxDepth}
}

// PushProtocol records that a layer of the named protocol was entered.
func (c *Context) PushProtocol(name string) {
	c.protocols = append(c.protocols, name)
	c.columns[ColProtocol] = strings.ToUpper(name)
}

// Protocols returns the colon-joined protocol stack, e.g. "frame:eth:ip:sctp".
func (c *Context) Protocols() string { return strings.Join(c.protocols, ":") }

func (c *Context) ProtocolStack() []string { return append([]string(nil), c.protocols...) }

// Mark captures the parts of the context a rejected layer must not leave behind.
type Mark struct {
	protocols        int
	warnings         int
	layers           int
	columns          [numColumns]string
	srcAddr, dstAddr netip.Addr
	srcPort, dstPort uint32
}

func (c *Context) Mark() Mark {
	return Mark{
		protocols: len(c.protocols),
		warnings:  len(c.Warnings),
		layers:    len(c.Layers),
		columns:   c.columns,
		srcAddr:   c.SrcAddr,
		dstAddr:   c.DstAddr,
		srcPort:   c.SrcPort,
		dstPort:   c.DstPort,
	}
}

// Rewind drops protocols, warnings and layer records added after m and restores
// the columns and addressing seen at m.
func (c *Context) Rewind(m Mark) {
	c.protocols = c.protocols[:m.protocols]
	c.Warnings = c.Warnings[:m.warnings]
	c.Layers = c.Layers[:m.layers]
	c.columns = m.columns
	c.SrcAddr, c.DstAddr = m.srcAddr, m.dstAddr
	c.SrcPort, c.DstPort = m.srcPort, m.dstPort
}

func (c *Context) SetColumn(col Column, format string, args ...any) {
	c.columns[col] = fmt.Sprintf(format, args...)
}

// AppendColumn appends text to col, separated by sep when col is not empty.
func (c *Context) AppendColumn(col Column, sep, text string) {
	if c.columns[col] != "" {
		c.columns[col] += sep
	}
	c.columns[col] += text
}

func (c *Context) Column(col Column) string { return c.columns[col] }

func (c *Context) AddWarning(sev Severity, group string, f *Field, format string, args ...any) {
	proto := ""
	if n := len(c.protocols); n > 0 {
		proto = c.protocols[n-1]
	}
	c.Warnings = append(c.Warnings, Warning{
		Severity: sev,
		Group:    group,
		Protocol: proto,
		Message:  fmt.Sprintf(format, args...),
		Field:    f,
	})
}

// Enter increases the nesting depth and fails once MaxDepth is exceeded.
func (c *Context) Enter() error {
	if c.depth >= c.MaxDepth {
		return fmt.Errorf("%w: %d layers", ErrNestingTooDeep, c.depth)
	}
	c.depth++
	return nil
}

func (c *Context) Leave() {
	if c.depth > 0 {
		c.depth--
	}
}

func (c *Context) Depth() int { return c.depth }

// BeginLayer appends a running layer record and returns its index.
func (c *Context) BeginLayer(protocol string) int {
	c.Layers = append(c.Layers, Layer{Protocol: protocol, State: LayerRunning})
	return len(c.Layers) - 1
}

func (c *Context) EndLayer(idx int, state LayerState, err error) {
	c.Layers[idx].State = state
	c.Layers[idx].Err = err
}

// Malformed reports whether any layer faulted.
func (c *Context) Malformed() bool {
	for _, l := range c.Layers {
		if l.State == LayerFaulted {
			return true
		}
	}
	return false
}
