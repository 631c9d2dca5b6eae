package sctp

import (
	"fmt"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/core/tlv"
	"firestige.xyz/strix/internal/registry"
)

var chunkFormat = tlv.Format{
	TypeWidth:            1,
	LengthOffset:         2,
	LengthWidth:          2,
	HeaderWidth:          4,
	Align:                4,
	LengthIncludesHeader: true,
	AllowShortFinalPad:   true,
}

// walk holds the per-packet state shared by chunk, parameter and cause decoding.
type walk struct {
	c        *registry.Call
	src, dst uint16
}

func chunkName(typ uint64) string {
	if name, ok := chunkNames[typ]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", typ)
}

// chunks walks the chunk sequence of cur from start. nested is set for chunks
// quoted inside an error cause: they are not listed in the info column and
// their user data is not dispatched.
func (w *walk) chunks(parent *core.Field, cur *core.Cursor, start int, nested bool) error {
	walker := tlv.Walker{
		Format: chunkFormat,
		Partial: func(rec tlv.Record, rerr *core.RecordError) error {
			item, _ := w.chunk(parent, cur, rec, true, nested)
			return core.At(item, rerr)
		},
	}
	return walker.Walk(cur, start, func(rec tlv.Record) error {
		_, err := w.chunk(parent, cur, rec, false, nested)
		return err
	})
}

// chunk renders one chunk. partial is set when the chunk could not be framed;
// its body is then decoded only as far as the captured bytes allow and no
// body error is returned.
func (w *walk) chunk(parent *core.Field, cur *core.Cursor, rec tlv.Record, partial, nested bool) (*core.Field, error) {
	c := w.c
	name := chunkName(rec.Type)
	if !nested {
		c.Ctx.AppendColumn(core.ColInfo, ", ", name)
	}

	span := max(rec.Record.Len(), min(rec.Total, cur.Remaining(rec.Offset)))
	item, err := c.Tree.AddText(parent, cur, rec.Offset, span, "%s chunk", name)
	if err != nil {
		return parent, err
	}

	r := rec.Record
	if _, err := c.Tree.Add(item, hfChunkType, r, 0, 1); err != nil {
		return item, err
	}
	if _, known := chunkNames[rec.Type]; !known {
		if err := c.Tree.AddItems(item, r, []core.Item{
			{Spec: hfChunkBit1, Offset: 0, Length: 1},
			{Spec: hfChunkBit2, Offset: 0, Length: 1},
		}); err != nil {
			return item, err
		}
	}
	flags, err := c.Tree.Add(item, hfChunkFlags, r, 1, 1)
	if err != nil {
		return item, err
	}
	if _, err := c.Tree.Add(item, hfChunkLength, r, 2, 2); err != nil {
		return item, err
	}

	if rec.Value != nil {
		err = w.body(item, flags, rec, partial, nested)
		if partial {
			return item, nil
		}
		if err != nil {
			return item, core.At(item, err)
		}
	}

	if !partial && rec.Padding > 0 && cur.Remaining(rec.Offset+rec.Length) >= rec.Padding {
		if _, err := c.Tree.Add(item, hfChunkPadding, cur, rec.Offset+rec.Length, rec.Padding); err != nil {
			return item, err
		}
	}
	return item, nil
}

// body decodes the chunk value. Offsets are relative to the chunk header.
func (w *walk) body(item, flags *core.Field, rec tlv.Record, partial, nested bool) error {
	c := w.c
	r := rec.Record
	switch rec.Type {
	case chunkData:
		return w.data(item, flags, rec, partial || nested)
	case chunkInit:
		return w.init(item, r, []*core.FieldSpec{hfInitTag, hfInitCredit, hfInitOutbound, hfInitInbound, hfInitTSN})
	case chunkInitAck:
		return w.init(item, r, []*core.FieldSpec{hfInitAckTag, hfInitAckCredit, hfInitAckOut, hfInitAckIn, hfInitAckTSN})
	case chunkSack:
		return w.sack(item, r)
	case chunkHeartbeat, chunkHeartbeatAck:
		return w.params(item, r, 4)
	case chunkAbort:
		if _, err := c.Tree.Add(flags, hfAbortTBit, r, 1, 1); err != nil {
			return err
		}
		return w.causes(item, r, 4)
	case chunkError:
		return w.causes(item, r, 4)
	case chunkShutdown:
		_, err := c.Tree.Add(item, hfShutdownCumTSN, r, 4, 4)
		return err
	case chunkShutdownAck, chunkCookieAck:
		return nil
	case chunkCookieEcho:
		if rec.ValueLength() == 0 {
			return nil
		}
		_, err := c.Tree.Add(item, hfCookie, r, 4, -1)
		return err
	case chunkEcne:
		_, err := c.Tree.Add(item, hfEcneLowestTSN, r, 4, 4)
		return err
	case chunkCwr:
		_, err := c.Tree.Add(item, hfCwrLowestTSN, r, 4, 4)
		return err
	case chunkShutdownComplete:
		_, err := c.Tree.Add(flags, hfShutdownTBit, r, 1, 1)
		return err
	case chunkForwardTSN:
		return w.forwardTSN(item, r)
	}
	if rec.ValueLength() == 0 {
		return nil
	}
	v, err := c.Tree.Add(item, hfChunkValue, r, 4, -1)
	if err != nil {
		return err
	}
	v.SetText("Chunk value (%d byte%s)", rec.ValueLength(), plural(rec.ValueLength()))
	return nil
}

const dataHeaderLen = 16

// data decodes a DATA chunk and hands its user data to the next layer unless
// quiet is set.
func (w *walk) data(item, flags *core.Field, rec tlv.Record, quiet bool) error {
	c := w.c
	r := rec.Record
	if rec.Length < dataHeaderLen {
		return core.Malformedf("DATA chunk length %d is less than %d", rec.Length, dataHeaderLen)
	}
	if err := c.Tree.AddItems(flags, r, []core.Item{
		{Spec: hfDataIBit, Offset: 1, Length: 1},
		{Spec: hfDataUBit, Offset: 1, Length: 1},
		{Spec: hfDataBBit, Offset: 1, Length: 1},
		{Spec: hfDataEBit, Offset: 1, Length: 1},
	}); err != nil {
		return err
	}
	if err := c.Tree.AddItems(item, r, []core.Item{
		{Spec: hfDataTSN, Offset: 4, Length: 4},
		{Spec: hfDataSID, Offset: 8, Length: 2},
		{Spec: hfDataSSN, Offset: 10, Length: 2},
		{Spec: hfDataPPI, Offset: 12, Length: 4},
	}); err != nil {
		return err
	}
	tsn, _ := r.Uint32(4)
	ppi, _ := r.Uint32(12)
	plen := rec.Length - dataHeaderLen
	item.AppendText(" (TSN: %d, payload length: %d byte%s)", tsn, plen, plural(plen))
	c.Tree.AddGenerated(item, hfDataLength, core.UintValue(16, uint64(plen)))

	if quiet || plen == 0 {
		return nil
	}
	payload, err := r.Rest(dataHeaderLen)
	if err != nil {
		return err
	}
	u := c.Under(item)
	if !u.Try(TablePPI, uint64(ppi), payload) {
		u.NextPorts(TablePort, uint64(w.src), uint64(w.dst), payload)
	}
	return nil
}

func (w *walk) init(item *core.Field, r *core.Cursor, specs []*core.FieldSpec) error {
	c := w.c
	if err := c.Tree.AddItems(item, r, []core.Item{
		{Spec: specs[0], Offset: 4, Length: 4},
		{Spec: specs[1], Offset: 8, Length: 4},
		{Spec: specs[2], Offset: 12, Length: 2},
		{Spec: specs[3], Offset: 14, Length: 2},
		{Spec: specs[4], Offset: 16, Length: 4},
	}); err != nil {
		return err
	}
	out, _ := r.Uint16(12)
	in, _ := r.Uint16(14)
	item.AppendText(" (Outbound streams: %d, inbound streams: %d)", out, in)
	return w.params(item, r, 20)
}

func (w *walk) sack(item *core.Field, r *core.Cursor) error {
	c := w.c
	if err := c.Tree.AddItems(item, r, []core.Item{
		{Spec: hfSackCumTSN, Offset: 4, Length: 4},
		{Spec: hfSackCredit, Offset: 8, Length: 4},
		{Spec: hfSackGaps, Offset: 12, Length: 2},
		{Spec: hfSackDups, Offset: 14, Length: 2},
	}); err != nil {
		return err
	}
	gaps, _ := r.Uint16(12)
	dups, _ := r.Uint16(14)
	cum, _ := r.Uint32(4)
	item.AppendText(" (Cumulative TSN: %d, gaps: %d, duplicates: %d)", cum, gaps, dups)

	off := 16
	for i := 0; i < int(gaps); i++ {
		start, err := r.Uint16(off)
		if err != nil {
			return err
		}
		end, err := r.Uint16(off + 2)
		if err != nil {
			return err
		}
		g, err := c.Tree.AddText(item, r, off, 4, "Gap Acknowledgement for TSN %d to %d", uint64(cum)+uint64(start), uint64(cum)+uint64(end))
		if err != nil {
			return err
		}
		if err := c.Tree.AddItems(g, r, []core.Item{
			{Spec: hfSackGapStart, Offset: off, Length: 2},
			{Spec: hfSackGapEnd, Offset: off + 2, Length: 2},
		}); err != nil {
			return err
		}
		off += 4
	}
	for i := 0; i < int(dups); i++ {
		if _, err := c.Tree.Add(item, hfSackDuplicate, r, off, 4); err != nil {
			return err
		}
		off += 4
	}
	return nil
}

func (w *walk) forwardTSN(item *core.Field, r *core.Cursor) error {
	c := w.c
	if _, err := c.Tree.Add(item, hfForwardTSN, r, 4, 4); err != nil {
		return err
	}
	for off := 8; off+4 <= r.ReportedLen(); off += 4 {
		if err := c.Tree.AddItems(item, r, []core.Item{
			{Spec: hfForwardTSNSID, Offset: off, Length: 2},
			{Spec: hfForwardTSNSSN, Offset: off + 2, Length: 2},
		}); err != nil {
			return err
		}
	}
	return nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
