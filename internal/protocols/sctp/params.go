package sctp

import (
	"fmt"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/core/tlv"
)

// Parameters and error causes share the 2-byte type, 2-byte length layout.
var paramFormat = tlv.Format{
	TypeWidth:            2,
	LengthOffset:         2,
	LengthWidth:          2,
	HeaderWidth:          4,
	Align:                4,
	LengthIncludesHeader: true,
	AllowShortFinalPad:   true,
}

func paramName(typ uint64) string {
	if name, ok := paramNames[typ]; ok {
		return name
	}
	return fmt.Sprintf("Unknown parameter (0x%04x)", typ)
}

func causeName(code uint64) string {
	if name, ok := causeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Unknown cause (0x%04x)", code)
}

// params walks a parameter sequence of cur from start.
func (w *walk) params(parent *core.Field, cur *core.Cursor, start int) error {
	walker := tlv.Walker{
		Format: paramFormat,
		Partial: func(rec tlv.Record, rerr *core.RecordError) error {
			item, _ := w.param(parent, cur, rec, true)
			return core.At(item, rerr)
		},
	}
	return walker.Walk(cur, start, func(rec tlv.Record) error {
		_, err := w.param(parent, cur, rec, false)
		return err
	})
}

func (w *walk) param(parent *core.Field, cur *core.Cursor, rec tlv.Record, partial bool) (*core.Field, error) {
	c := w.c
	span := max(rec.Record.Len(), min(rec.Total, cur.Remaining(rec.Offset)))
	item, err := c.Tree.AddText(parent, cur, rec.Offset, span, "%s parameter", paramName(rec.Type))
	if err != nil {
		return parent, err
	}
	r := rec.Record
	if err := c.Tree.AddItems(item, r, []core.Item{
		{Spec: hfParamType, Offset: 0, Length: 2},
		{Spec: hfParamBit1, Offset: 0, Length: 2},
		{Spec: hfParamBit2, Offset: 0, Length: 2},
		{Spec: hfParamLength, Offset: 2, Length: 2},
	}); err != nil {
		return item, err
	}
	if rec.Value != nil {
		err := w.paramValue(item, rec)
		if partial {
			return item, nil
		}
		if err != nil {
			return item, core.At(item, err)
		}
	}
	if !partial && rec.Padding > 0 && cur.Remaining(rec.Offset+rec.Length) >= rec.Padding {
		if _, err := c.Tree.Add(item, hfParamPadding, cur, rec.Offset+rec.Length, rec.Padding); err != nil {
			return item, err
		}
	}
	return item, nil
}

func (w *walk) paramValue(item *core.Field, rec tlv.Record) error {
	c := w.c
	r := rec.Record
	n := rec.ValueLength()
	switch rec.Type {
	case paramHeartbeatInfo:
		if n == 0 {
			return nil
		}
		_, err := c.Tree.Add(item, hfHeartbeatInfo, r, 4, n)
		return err
	case paramIPv4:
		f, err := c.Tree.Add(item, hfIPv4Addr, r, 4, 4)
		if err != nil {
			return err
		}
		item.AppendText(" (Address: %s)", f.Value.Addr())
		return nil
	case paramIPv6:
		f, err := c.Tree.Add(item, hfIPv6Addr, r, 4, 16)
		if err != nil {
			return err
		}
		item.AppendText(" (Address: %s)", f.Value.Addr())
		return nil
	case paramStateCookie:
		if n == 0 {
			return nil
		}
		_, err := c.Tree.Add(item, hfStateCookie, r, 4, n)
		return err
	case paramUnrecognized:
		return w.params(item, r, 4)
	case paramCookiePreservative:
		_, err := c.Tree.Add(item, hfCookieInc, r, 4, 4)
		return err
	case paramHostname:
		f, err := c.Tree.Add(item, hfHostname, r, 4, n)
		if err != nil {
			return err
		}
		item.AppendText(" (Hostname: %s)", f.Value.Text())
		return nil
	case paramSupportedAddrTypes:
		for off := 4; off+2 <= r.ReportedLen(); off += 2 {
			if _, err := c.Tree.Add(item, hfAddrType, r, off, 2); err != nil {
				return err
			}
		}
		return nil
	case paramECN, paramForwardTSNSupported:
		return nil
	case paramAdaptationLayer:
		_, err := c.Tree.Add(item, hfAdaptation, r, 4, 4)
		return err
	}
	if n == 0 {
		return nil
	}
	v, err := c.Tree.Add(item, hfParamValue, r, 4, -1)
	if err != nil {
		return err
	}
	v.SetText("Parameter value (%d byte%s)", n, plural(n))
	return nil
}

// causes walks the error causes of an ABORT or ERROR chunk.
func (w *walk) causes(parent *core.Field, cur *core.Cursor, start int) error {
	walker := tlv.Walker{
		Format: paramFormat,
		Partial: func(rec tlv.Record, rerr *core.RecordError) error {
			item, _ := w.cause(parent, cur, rec, true)
			return core.At(item, rerr)
		},
	}
	return walker.Walk(cur, start, func(rec tlv.Record) error {
		_, err := w.cause(parent, cur, rec, false)
		return err
	})
}

func (w *walk) cause(parent *core.Field, cur *core.Cursor, rec tlv.Record, partial bool) (*core.Field, error) {
	c := w.c
	span := max(rec.Record.Len(), min(rec.Total, cur.Remaining(rec.Offset)))
	item, err := c.Tree.AddText(parent, cur, rec.Offset, span, "%s cause", causeName(rec.Type))
	if err != nil {
		return parent, err
	}
	r := rec.Record
	if err := c.Tree.AddItems(item, r, []core.Item{
		{Spec: hfCauseCode, Offset: 0, Length: 2},
		{Spec: hfCauseLength, Offset: 2, Length: 2},
	}); err != nil {
		return item, err
	}
	if rec.Value != nil {
		err := w.causeValue(item, rec)
		if partial {
			return item, nil
		}
		if err != nil {
			return item, core.At(item, err)
		}
	}
	if !partial && rec.Padding > 0 && cur.Remaining(rec.Offset+rec.Length) >= rec.Padding {
		if _, err := c.Tree.Add(item, hfCausePadding, cur, rec.Offset+rec.Length, rec.Padding); err != nil {
			return item, err
		}
	}
	return item, nil
}

func (w *walk) causeValue(item *core.Field, rec tlv.Record) error {
	c := w.c
	r := rec.Record
	n := rec.ValueLength()
	switch rec.Type {
	case causeInvalidStreamID:
		return c.Tree.AddItems(item, r, []core.Item{
			{Spec: hfCauseStreamID, Offset: 4, Length: 2},
			{Spec: hfCauseReserved, Offset: 6, Length: 2},
		})
	case causeMissingMandatoryParams:
		if _, err := c.Tree.Add(item, hfCauseMissingNum, r, 4, 4); err != nil {
			return err
		}
		count, _ := r.Uint32(4)
		off := 8
		for i := uint32(0); i < count; i++ {
			if _, err := c.Tree.Add(item, hfCauseMissing, r, off, 2); err != nil {
				return err
			}
			off += 2
		}
		return nil
	case causeStaleCookie:
		_, err := c.Tree.Add(item, hfCauseStaleness, r, 4, 4)
		return err
	case causeOutOfResource, causeCookieWhileShuttingDown:
		return nil
	case causeUnresolvableAddress, causeUnrecognizedParams, causeRestartWithNewAddresses:
		return w.params(item, r, 4)
	case causeUnrecognizedChunkType:
		return w.chunks(item, r, 4, true)
	case causeInvalidMandatoryParam:
		return nil
	case causeNoUserData:
		_, err := c.Tree.Add(item, hfCauseTSN, r, 4, 4)
		return err
	}
	if n == 0 {
		return nil
	}
	v, err := c.Tree.Add(item, hfCauseInfo, r, 4, -1)
	if err != nil {
		return err
	}
	v.SetText("Cause information (%d byte%s)", n, plural(n))
	return nil
}
