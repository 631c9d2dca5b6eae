package registry

import (
	"errors"

	"firestige.xyz/strix/internal/core"
)

// ErrRejected is returned by a dissector that inspected its data and decided it
// does not belong to its protocol. The caller treats the lookup as a miss.
var ErrRejected = errors.New("strix: dissector rejected data")

// Dissector decodes one layer.
type Dissector interface {
	Dissect(c *Call) error
}

// DissectorFunc adapts a function to Dissector.
type DissectorFunc func(c *Call) error

func (f DissectorFunc) Dissect(c *Call) error { return f(c) }

// Heuristic inspects data without a dispatch key and claims it by returning true.
type Heuristic interface {
	Dissect(c *Call) (bool, error)
}

type HeuristicFunc func(c *Call) (bool, error)

func (f HeuristicFunc) Dissect(c *Call) (bool, error) { return f(c) }

// Runner executes nested layers. The engine implements it.
type Runner interface {
	// RunLayer runs h over cur as a new layer under parent, inside a fault boundary.
	// It reports false when the dissector rejected the data.
	RunLayer(c *Call, h Handle, cur *core.Cursor) bool
	// RunHeuristics tries the heuristics of table in order.
	RunHeuristics(c *Call, table string, cur *core.Cursor) bool
	// RunData runs the generic fallback over cur.
	RunData(c *Call, cur *core.Cursor)
}

// Call is the state handed to a dissector for one layer.
type Call struct {
	Cursor   *core.Cursor
	Ctx      *core.Context
	Tree     *core.Tree
	Registry *Registry
	Protocol *Protocol

	// Parent is the item the layer's protocol item is attached under.
	Parent *core.Field
	// Root is the layer's protocol item, set by AddRoot.
	Root *core.Field

	runner Runner
}

// NewCall is used by the engine to start a layer.
func NewCall(r Runner, reg *Registry, p *Protocol, cur *core.Cursor, ctx *core.Context, tree *core.Tree, parent *core.Field) *Call {
	return &Call{
		Cursor:   cur,
		Ctx:      ctx,
		Tree:     tree,
		Registry: reg,
		Protocol: p,
		Parent:   parent,
		runner:   r,
	}
}

// Child derives the call for a nested layer of protocol p over cur.
func (c *Call) Child(p *Protocol, cur *core.Cursor) *Call {
	parent := c.Root
	if parent == nil {
		parent = c.Parent
	}
	return NewCall(c.runner, c.Registry, p, cur, c.Ctx, c.Tree, parent)
}

// Under returns a copy of c whose nested layers attach under f instead of the
// layer's protocol item.
func (c *Call) Under(f *core.Field) *Call {
	u := *c
	u.Root = f
	return &u
}

// AddRoot adds the layer's protocol item covering cur[off:off+length] and
// remembers it as Root. length -1 covers the rest.
func (c *Call) AddRoot(off, length int) (*core.Field, error) {
	f, err := c.Tree.AddProtocol(c.Parent, c.Protocol.Spec(), c.Cursor, off, length)
	c.Root = f
	return f, err
}

// Add is Tree.Add against the layer's cursor.
func (c *Call) Add(parent *core.Field, spec *core.FieldSpec, off, length int) (*core.Field, error) {
	return c.Tree.Add(parent, spec, c.Cursor, off, length)
}

// AddItems is Tree.AddItems against the layer's cursor.
func (c *Call) AddItems(parent *core.Field, items []core.Item) error {
	return c.Tree.AddItems(parent, c.Cursor, items)
}

// Try dispatches cur through an integer table as a new layer. It reports whether
// a dissector claimed the data; nothing else runs on a miss.
func (c *Call) Try(table string, key uint64, cur *core.Cursor) bool {
	h, ok := c.Registry.Lookup(table, key)
	if !ok {
		return false
	}
	return c.runner.RunLayer(c, h, cur)
}

// TryString is Try for string tables.
func (c *Call) TryString(table, key string, cur *core.Cursor) bool {
	h, ok := c.Registry.LookupString(table, key)
	if !ok {
		return false
	}
	return c.runner.RunLayer(c, h, cur)
}

// TryHeuristics offers cur to the heuristic dissectors of table.
func (c *Call) TryHeuristics(table string, cur *core.Cursor) bool {
	return c.runner.RunHeuristics(c, table, cur)
}

// Data hands cur to the generic fallback, which records "N unclaimed bytes".
func (c *Call) Data(cur *core.Cursor) {
	c.runner.RunData(c, cur)
}

// Next dispatches cur on key, then heuristics, then the fallback. It reports
// whether a registered dissector matched.
func (c *Call) Next(table string, key uint64, cur *core.Cursor) bool {
	if c.Try(table, key, cur) || c.TryHeuristics(table, cur) {
		return true
	}
	c.Data(cur)
	return false
}

// NextPorts tries the lower port first, then the higher one, then heuristics,
// then the fallback.
func (c *Call) NextPorts(table string, a, b uint64, cur *core.Cursor) bool {
	low, high := a, b
	if high < low {
		low, high = high, low
	}
	if c.Try(table, low, cur) || (high != low && c.Try(table, high, cur)) || c.TryHeuristics(table, cur) {
		return true
	}
	c.Data(cur)
	return false
}

// Invoke runs the dissector for key on cur inside the current layer: no new
// protocol item, no fault boundary. Errors propagate to the caller. It is used
// for record families dispatched through a table, such as ISAKMP payloads.
func (c *Call) Invoke(table string, key uint64, cur *core.Cursor, parent *core.Field) (bool, error) {
	h, ok := c.Registry.Lookup(table, key)
	if !ok {
		return false, nil
	}
	sub := &Call{
		Cursor:   cur,
		Ctx:      c.Ctx,
		Tree:     c.Tree,
		Registry: c.Registry,
		Protocol: h.Protocol,
		Parent:   parent,
		Root:     parent,
		runner:   c.runner,
	}
	if err := h.Dissector.Dissect(sub); err != nil {
		if errors.Is(err, ErrRejected) {
			return false, nil
		}
		return true, err
	}
	return true, nil
}
