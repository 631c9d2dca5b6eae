package engine

import (
	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/registry"
)

// TableEncap dispatches a frame's payload by capture encapsulation (link type).
const TableEncap = "wtap_encap"

var (
	FrameProtocol = registry.NewProtocol("frame", "FRAME", "Frame")
	DataProtocol  = registry.NewProtocol("data", "DATA", "Data")
)

var (
	hfFrameNumber    = &core.FieldSpec{Name: "Frame Number", Filter: "frame.number", Kind: core.KindUint, Width: 32}
	hfFrameTime      = &core.FieldSpec{Name: "Arrival Time", Filter: "frame.time", Kind: core.KindAbsTime}
	hfFrameTimeDelta = &core.FieldSpec{Name: "Time delta from previous captured frame", Filter: "frame.time_delta", Kind: core.KindRelTime}
	hfFrameLen       = &core.FieldSpec{Name: "Frame Length", Filter: "frame.len", Kind: core.KindUint, Width: 32}
	hfFrameCapLen    = &core.FieldSpec{Name: "Capture Length", Filter: "frame.cap_len", Kind: core.KindUint, Width: 32}
	hfFrameEncap     = &core.FieldSpec{Name: "Encapsulation type", Filter: "frame.encap_type", Kind: core.KindUint, Width: 32}
	hfFrameProtocols = &core.FieldSpec{Name: "Protocols in frame", Filter: "frame.protocols", Kind: core.KindString}
	hfFrameIgnored   = &core.FieldSpec{Name: "Ignored Frame", Filter: "frame.ignored", Kind: core.KindNone}

	hfData    = &core.FieldSpec{Name: "Data", Filter: "data.data", Kind: core.KindBytes}
	hfDataLen = &core.FieldSpec{Name: "Length", Filter: "data.len", Kind: core.KindUint, Width: 32}

	// MalformedSpec is the item a faulted layer gets.
	MalformedSpec = &core.FieldSpec{Name: "Malformed Packet", Filter: "_ws.malformed", Kind: core.KindString}
	// ShortSpec marks a layer cut off by the capture snap length.
	ShortSpec = &core.FieldSpec{Name: "Packet size limited during capture", Filter: "_ws.short", Kind: core.KindString}
)

// Register installs the frame and data protocols, the encapsulation table and
// the frame.protocols post-dissector. Every registry used with an Engine needs it.
func Register(b *registry.Builder) {
	b.RegisterTable(TableEncap, registry.KeyUint, "Capture encapsulation")
	b.RegisterProtocol(FrameProtocol)
	b.RegisterProtocol(DataProtocol)
	b.RegisterFields(
		hfFrameNumber, hfFrameTime, hfFrameTimeDelta, hfFrameLen, hfFrameCapLen,
		hfFrameEncap, hfFrameProtocols, hfFrameIgnored,
		hfData, hfDataLen,
		MalformedSpec, ShortSpec,
	)
	b.RegisterPostDissector(FrameProtocol.Filter, registry.Handle{
		Protocol:  FrameProtocol,
		Dissector: registry.DissectorFunc(fillProtocols),
	})
}

func frameDissector(f Frame) registry.Dissector {
	return registry.DissectorFunc(func(c *registry.Call) error {
		root, err := c.AddRoot(0, -1)
		if err != nil {
			return err
		}
		captured := c.Cursor.Len()
		reported := c.Cursor.ReportedLen()
		root.SetText("Frame %d: %d bytes on wire (%d bits), %d bytes captured (%d bits)",
			f.Number, reported, reported*8, captured, captured*8)

		c.Tree.AddGenerated(root, hfFrameNumber, core.UintValue(32, uint64(f.Number)))
		if !f.Timestamp.IsZero() {
			c.Tree.AddGenerated(root, hfFrameTime, core.AbsTimeValue(f.Timestamp))
		}
		c.Tree.AddGenerated(root, hfFrameTimeDelta, core.RelTimeValue(f.Delta))
		c.Tree.AddGenerated(root, hfFrameLen, core.UintValue(32, uint64(reported)))
		c.Tree.AddGenerated(root, hfFrameCapLen, core.UintValue(32, uint64(captured)))
		c.Tree.AddGenerated(root, hfFrameEncap, core.UintValue(32, uint64(f.Encap)))
		// Placeholder; fillProtocols sets it once the whole stack is known.
		c.Tree.AddGenerated(root, hfFrameProtocols, core.StringValue(""))

		if f.Ignored {
			c.Tree.AddGenerated(root, hfFrameIgnored, core.NoneValue())
			return nil
		}
		c.Next(TableEncap, uint64(f.Encap), c.Cursor)
		return nil
	})
}

// fillProtocols runs after the frame layer, so the stack includes every inner layer.
func fillProtocols(c *registry.Call) error {
	if c.Root == nil {
		return nil
	}
	v := core.StringValue(c.Ctx.Protocols())
	for _, f := range c.Root.Children {
		if f.Spec == hfFrameProtocols {
			f.Value = v
			f.SetText("%s: %s", hfFrameProtocols.Name, v.Text())
			return nil
		}
	}
	return nil
}
