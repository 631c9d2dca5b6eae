// Package isakmp dissects ISAKMP (IKEv1) messages. Payloads form a linked
// chain in which each generic header names the type of the next payload;
// SA, Proposal and Transform payloads nest chains of their own.
package isakmp

import (
	"fmt"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/core/tlv"
	"firestige.xyz/strix/internal/protocols/udp"
	"firestige.xyz/strix/internal/registry"
)

// TablePayload holds the per-payload dissectors, keyed by payload type.
const TablePayload = "isakmp.payload"

const (
	Port     = 500
	NATTPort = 4500

	headerLen    = 28
	nonESPMarker = 4
	flagEncrypt  = 0x01
)

var Protocol = registry.NewProtocol("isakmp", "ISAKMP", "Internet Security Association and Key Management Protocol")

var payloadFormat = tlv.Format{
	NextOffset:           0,
	NextWidth:            1,
	LengthOffset:         2,
	LengthWidth:          2,
	HeaderWidth:          4,
	LengthIncludesHeader: true,
}

func Register(b *registry.Builder) {
	b.RegisterTable(udp.TablePort, registry.KeyUint, "UDP port")
	b.RegisterTable(TablePayload, registry.KeyUint, "ISAKMP payload type")
	b.RegisterFields(fields...)

	b.RegisterDissector(udp.TablePort, Port, registry.Handle{Protocol: Protocol, Dissector: registry.DissectorFunc(dissect)})
	b.RegisterDissector(udp.TablePort, NATTPort, registry.Handle{Protocol: Protocol, Dissector: registry.DissectorFunc(dissectNATT)})

	for typ, fn := range payloadDissectors {
		b.RegisterDissector(TablePayload, typ, registry.Handle{Protocol: Protocol, Dissector: fn})
	}
}

func payloadName(typ uint64) string {
	if name, ok := payloadNames[typ]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (%d)", typ)
}

func dissect(c *registry.Call) error {
	return message(c, 0)
}

// dissectNATT handles UDP 4500, where IKE messages carry a four byte zero
// marker and anything else is ESP.
func dissectNATT(c *registry.Call) error {
	marker, err := c.Cursor.Uint32(0)
	if err != nil || marker != 0 {
		return registry.ErrRejected
	}
	return message(c, nonESPMarker)
}

func message(c *registry.Call, off int) error {
	cur := c.Cursor
	root, err := c.AddRoot(0, -1)
	if err != nil {
		return err
	}
	if off > 0 {
		if _, err := c.Add(root, hfNonESP, 0, off); err != nil {
			return err
		}
	}
	if err := c.AddItems(root, []core.Item{
		{Spec: hfICookie, Offset: off, Length: 8},
		{Spec: hfRCookie, Offset: off + 8, Length: 8},
		{Spec: hfNextPayload, Offset: off + 16, Length: 1},
	}); err != nil {
		return err
	}
	ver, err := c.Add(root, hfVersion, off+17, 1)
	if err != nil {
		return err
	}
	if err := c.AddItems(ver, []core.Item{
		{Spec: hfMjVer, Offset: off + 17, Length: 1},
		{Spec: hfMnVer, Offset: off + 17, Length: 1},
	}); err != nil {
		return err
	}
	if _, err := c.Add(root, hfExchType, off+18, 1); err != nil {
		return err
	}
	fl, err := c.Add(root, hfFlags, off+19, 1)
	if err != nil {
		return err
	}
	if err := c.AddItems(fl, []core.Item{
		{Spec: hfFlagEnc, Offset: off + 19, Length: 1},
		{Spec: hfFlagCommit, Offset: off + 19, Length: 1},
		{Spec: hfFlagAuth, Offset: off + 19, Length: 1},
	}); err != nil {
		return err
	}
	if _, err := c.Add(root, hfMessageID, off+20, 4); err != nil {
		return err
	}
	lf, err := c.Add(root, hfLength, off+24, 4)
	if err != nil {
		return err
	}

	next, _ := cur.Uint8(off + 16)
	exch, _ := cur.Uint8(off + 18)
	flags, _ := cur.Uint8(off + 19)
	length, _ := cur.Uint32(off + 24)
	c.Ctx.SetColumn(core.ColInfo, "%s", hfExchType.FormatValue(core.UintValue(8, uint64(exch))))

	if length < headerLen {
		return core.At(lf, core.Malformedf("message length %d is less than the %d-byte header", length, headerLen))
	}
	avail := cur.ReportedRemaining(off)
	if int(length) > avail {
		return core.At(lf, core.Malformedf("message length %d exceeds the %d bytes available", length, avail))
	}
	root.SetLength(min(off+int(length), cur.Len()))

	body, err := cur.Slice(off+headerLen, int(length)-headerLen)
	if err != nil {
		return err
	}
	if flags&flagEncrypt != 0 {
		c.Ctx.AppendColumn(core.ColInfo, " ", "(encrypted)")
		if body.ReportedLen() == 0 {
			return nil
		}
		_, err := c.Tree.Add(root, hfEncData, body, 0, -1)
		return err
	}
	return chain(c, root, body, 0, uint64(next))
}

// chain decodes the payload chain of cur starting at start with type first.
// Each payload becomes a subtree under parent, sized from its own length field.
func chain(c *registry.Call, parent *core.Field, cur *core.Cursor, start int, first uint64) error {
	w := tlv.Walker{
		Format: payloadFormat,
		Partial: func(rec tlv.Record, rerr *core.RecordError) error {
			item, _ := payloadHeader(c, parent, rec)
			return core.At(item, rerr)
		},
	}
	pending, err := w.Chain(cur, start, first, func(rec tlv.Record) error {
		item, err := payloadHeader(c, parent, rec)
		if err != nil {
			return err
		}
		ok, err := c.Invoke(TablePayload, rec.Type, rec.Value, item)
		if err != nil {
			return core.At(item, err)
		}
		if !ok && rec.ValueLength() > 0 {
			v, err := c.Tree.Add(item, hfPayloadData, rec.Value, 0, -1)
			if err != nil {
				return core.At(item, err)
			}
			v.SetText("%d-byte value", rec.ValueLength())
		}
		return nil
	})
	if err != nil {
		return err
	}
	if pending != tlv.None {
		c.Ctx.AddWarning(core.SeverityWarn, "protocol", parent,
			"payload chain ends before the %s payload it announces", payloadName(pending))
	}
	return nil
}

func payloadHeader(c *registry.Call, parent *core.Field, rec tlv.Record) (*core.Field, error) {
	r := rec.Record
	item, err := c.Tree.AddText(parent, r, 0, -1, "Payload: %s", payloadName(rec.Type))
	if err != nil {
		return parent, err
	}
	if err := c.Tree.AddItems(item, r, []core.Item{
		{Spec: hfPayloadNext, Offset: 0, Length: 1},
		{Spec: hfPayloadRsvd, Offset: 1, Length: 1},
		{Spec: hfPayloadLength, Offset: 2, Length: 2},
	}); err != nil {
		return item, err
	}
	return item, nil
}
