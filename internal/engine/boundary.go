package engine

import (
	"errors"
	"fmt"
	"runtime/debug"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/metrics"
	"firestige.xyz/strix/internal/registry"
)

// PanicError is a recovered dissector panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("dissector panic: %v", e.Value) }

// Unwrap exposes the panic value when it was an error, e.g. a runtime bounds error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// guard runs d and turns a panic into a PanicError. A *registry.ProgrammerError
// is re-raised: registry misuse is a bug, not a malformed packet.
func guard(d registry.Dissector, c *registry.Call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			var pe *registry.ProgrammerError
			if e, ok := r.(error); ok && errors.As(e, &pe) {
				panic(r)
			}
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return d.Dissect(c)
}

// run executes one layer inside its fault boundary and reports whether the
// dissector accepted the data. A rejected layer leaves no trace in the context
// or the tree.
func (e *Engine) run(c *registry.Call, d registry.Dissector) bool {
	ctx := c.Ctx
	mark := ctx.Mark()
	holder := c.Parent
	if holder == nil {
		holder = c.Tree.Root()
	}
	kept := len(holder.Children)

	ctx.PushProtocol(c.Protocol.Filter)
	ctx.SetColumn(core.ColProtocol, "%s", c.Protocol.Short)
	idx := ctx.BeginLayer(c.Protocol.Filter)

	err := ctx.Enter()
	if err == nil {
		err = guard(d, c)
		ctx.Leave()
	}

	if errors.Is(err, registry.ErrRejected) {
		ctx.Rewind(mark)
		holder.Truncate(kept)
		return false
	}

	state := core.LayerCompleted
	if err != nil {
		state = core.LayerFaulted
		e.fault(c, err)
	}
	ctx.EndLayer(idx, state, err)
	if c.Root != nil && c.Tree.Visible() {
		c.Root.State = state
	}

	for _, h := range e.reg.Followers(c.Protocol.Filter) {
		e.follow(c, h)
	}
	return true
}

// follow runs a post-dissector under the item of the layer it follows. It gets
// its own boundary but no protocol stack entry and no layer record.
func (e *Engine) follow(c *registry.Call, h registry.Handle) {
	fc := registry.NewCall(e, e.reg, h.Protocol, c.Cursor, c.Ctx, c.Tree, c.Root)
	fc.Root = c.Root
	if err := guard(h.Dissector, fc); err != nil && !errors.Is(err, registry.ErrRejected) {
		e.fault(fc, err)
	}
}

// fault records err as a malformed annotation under the nearest enclosing item,
// adds a warning and marks the info column.
func (e *Engine) fault(c *registry.Call, err error) {
	target := c.Root
	if target == nil {
		target = c.Parent
	}
	var fe *core.FieldError
	if errors.As(err, &fe) && fe.Field != nil {
		target = fe.Field
	}

	var (
		be    *core.BoundsError
		item  *core.Field
		short = errors.As(err, &be) && be.Truncated
	)
	if short {
		item = c.Tree.AddGenerated(target, ShortSpec, core.StringValue(c.Protocol.Short)).
			SetText("[Packet size limited during capture]")
		c.Ctx.AddWarning(core.SeverityWarn, "malformed", item, "%s: %v", c.Protocol.Short, err)
		c.Ctx.AppendColumn(core.ColInfo, " ", "[Packet size limited during capture]")
	} else {
		item = c.Tree.AddGenerated(target, MalformedSpec, core.StringValue(c.Protocol.Short)).
			SetText("malformed: %v", err)
		c.Ctx.AddWarning(core.SeverityError, "malformed", item, "%s: %v", c.Protocol.Short, err)
		c.Ctx.AppendColumn(core.ColInfo, " ", "[Malformed Packet]")
	}

	if e.metrics {
		metrics.MalformedTotal.WithLabelValues(c.Protocol.Filter).Inc()
	}
	if e.log.IsDebugEnabled() {
		e.log.WithFields(map[string]interface{}{
			"frame":    c.Ctx.Frame,
			"protocol": c.Protocol.Filter,
		}).Debugf("layer faulted: %v", err)
	}
}
