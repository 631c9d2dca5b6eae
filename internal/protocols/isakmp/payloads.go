package isakmp

import (
	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/registry"
)

// Payload dissectors receive the payload value, without its generic header,
// and add their fields under c.Root.
var payloadDissectors = map[uint64]registry.DissectorFunc{
	payloadSA:        dissectSA,
	payloadProposal:  dissectProposal,
	payloadTransform: dissectTransform,
	payloadKE:        bytesPayload(hfKeyExch),
	payloadID:        dissectID,
	payloadCert:      dissectCert,
	payloadCR:        dissectCR,
	payloadHash:      bytesPayload(hfHash),
	payloadSig:       bytesPayload(hfSignature),
	payloadNonce:     bytesPayload(hfNonce),
	payloadN:         dissectNotify,
	payloadD:         dissectDelete,
	payloadVID:       bytesPayload(hfVendorID),
}

const doiIPsec = 1

func dissectSA(c *registry.Call) error {
	if _, err := c.Add(c.Root, hfDOI, 0, 4); err != nil {
		return err
	}
	doi, _ := c.Cursor.Uint32(0)
	if doi != doiIPsec {
		if c.Cursor.ReportedLen() > 4 {
			_, err := c.Add(c.Root, hfPayloadData, 4, -1)
			return err
		}
		return nil
	}
	if _, err := c.Add(c.Root, hfSituation, 4, 4); err != nil {
		return err
	}
	return chain(c, c.Root, c.Cursor, 8, payloadProposal)
}

func dissectProposal(c *registry.Call) error {
	if err := c.AddItems(c.Root, []core.Item{
		{Spec: hfPropNumber, Offset: 0, Length: 1},
		{Spec: hfProtoID, Offset: 1, Length: 1},
		{Spec: hfSPISize, Offset: 2, Length: 1},
		{Spec: hfPropTransforms, Offset: 3, Length: 1},
	}); err != nil {
		return err
	}
	num, _ := c.Cursor.Uint8(0)
	proto, _ := c.Cursor.Uint8(1)
	spiSize, _ := c.Cursor.Uint8(2)
	count, _ := c.Cursor.Uint8(3)
	c.Root.AppendText(" (#%d) %s, %d transform%s", num, protocolIDs[uint64(proto)], count, plural(int(count)))
	if spiSize > 0 {
		if _, err := c.Add(c.Root, hfSPI, 4, int(spiSize)); err != nil {
			return err
		}
	}
	return chain(c, c.Root, c.Cursor, 4+int(spiSize), payloadTransform)
}

func dissectTransform(c *registry.Call) error {
	if err := c.AddItems(c.Root, []core.Item{
		{Spec: hfTransNumber, Offset: 0, Length: 1},
		{Spec: hfTransID, Offset: 1, Length: 1},
		{Spec: hfTransRsvd, Offset: 2, Length: 2},
	}); err != nil {
		return err
	}
	num, _ := c.Cursor.Uint8(0)
	c.Root.AppendText(" (#%d)", num)
	return attributes(c, 4)
}

// attributes decodes SA attributes from start to the end of the value. With
// the format bit set an attribute is a 2-byte type and a 2-byte value (TV),
// otherwise the second word is the length of a variable value (TLV).
func attributes(c *registry.Call, start int) error {
	cur := c.Cursor
	for off := start; cur.ReportedRemaining(off) > 0; {
		word, err := cur.Uint16(off)
		if err != nil {
			return err
		}
		second, err := cur.Uint16(off + 2)
		if err != nil {
			return err
		}
		typ := uint64(word & 0x7fff)
		name := attributeTypes[typ]
		if name == "" {
			name = "Unknown"
		}

		size := 4
		if word&0x8000 == 0 {
			size += int(second)
		}
		if cur.ReportedRemaining(off) < size {
			return core.Malformedf("attribute %s at offset %d declares %d bytes, %d remain", name, off, size, cur.ReportedRemaining(off))
		}
		item, err := c.Tree.AddText(c.Root, cur, off, size, "Transform Attribute (t=%d,l=%d): %s", typ, size, name)
		if err != nil {
			return err
		}
		if err := c.AddItems(item, []core.Item{
			{Spec: hfAttrFormat, Offset: off, Length: 2},
			{Spec: hfAttrType, Offset: off, Length: 2},
		}); err != nil {
			return err
		}
		switch {
		case word&0x8000 != 0:
			if _, err := c.Add(item, hfAttrValue, off+2, 2); err != nil {
				return err
			}
			item.AppendText(" = %d", second)
		case second > 0 && second <= 8:
			if err := c.AddItems(item, []core.Item{
				{Spec: hfAttrLength, Offset: off + 2, Length: 2},
				{Spec: hfAttrValue, Offset: off + 4, Length: int(second)},
			}); err != nil {
				return err
			}
		default:
			if err := c.AddItems(item, []core.Item{
				{Spec: hfAttrLength, Offset: off + 2, Length: 2},
				{Spec: hfAttrBytes, Offset: off + 4, Length: int(second)},
			}); err != nil {
				return err
			}
		}
		off += size
	}
	return nil
}

func bytesPayload(spec *core.FieldSpec) registry.DissectorFunc {
	return func(c *registry.Call) error {
		if c.Cursor.ReportedLen() == 0 {
			return nil
		}
		_, err := c.Add(c.Root, spec, 0, -1)
		return err
	}
}

const (
	idIPv4Addr = 1
	idFQDN     = 2
	idUserFQDN = 3
	idIPv6Addr = 5
)

func dissectID(c *registry.Call) error {
	if err := c.AddItems(c.Root, []core.Item{
		{Spec: hfIDType, Offset: 0, Length: 1},
		{Spec: hfIDProtocol, Offset: 1, Length: 1},
		{Spec: hfIDPort, Offset: 2, Length: 2},
	}); err != nil {
		return err
	}
	typ, _ := c.Cursor.Uint8(0)
	n := c.Cursor.ReportedRemaining(4)
	if n == 0 {
		return nil
	}
	var (
		f   *core.Field
		err error
	)
	switch typ {
	case idIPv4Addr:
		f, err = c.Add(c.Root, hfIDIPv4, 4, 4)
	case idIPv6Addr:
		f, err = c.Add(c.Root, hfIDIPv6, 4, 16)
	case idFQDN, idUserFQDN:
		f, err = c.Add(c.Root, hfIDName, 4, n)
	default:
		_, err = c.Add(c.Root, hfIDData, 4, n)
		return err
	}
	if err != nil {
		return err
	}
	c.Root.AppendText(" (%s)", hfIDName.FormatValue(f.Value))
	return nil
}

func dissectCert(c *registry.Call) error {
	if _, err := c.Add(c.Root, hfCertEncoding, 0, 1); err != nil {
		return err
	}
	if c.Cursor.ReportedRemaining(1) == 0 {
		return nil
	}
	_, err := c.Add(c.Root, hfCertData, 1, -1)
	return err
}

func dissectCR(c *registry.Call) error {
	if _, err := c.Add(c.Root, hfCertType, 0, 1); err != nil {
		return err
	}
	if c.Cursor.ReportedRemaining(1) == 0 {
		return nil
	}
	_, err := c.Add(c.Root, hfCertAuth, 1, -1)
	return err
}

func dissectNotify(c *registry.Call) error {
	if err := c.AddItems(c.Root, []core.Item{
		{Spec: hfDOI, Offset: 0, Length: 4},
		{Spec: hfProtoID, Offset: 4, Length: 1},
		{Spec: hfSPISize, Offset: 5, Length: 1},
		{Spec: hfNotifyType, Offset: 6, Length: 2},
	}); err != nil {
		return err
	}
	spiSize, _ := c.Cursor.Uint8(5)
	msg, _ := c.Cursor.Uint16(6)
	c.Root.AppendText(" (%s)", hfNotifyType.FormatValue(core.UintValue(16, uint64(msg))))
	off := 8
	if spiSize > 0 {
		if _, err := c.Add(c.Root, hfSPI, off, int(spiSize)); err != nil {
			return err
		}
		off += int(spiSize)
	}
	if c.Cursor.ReportedRemaining(off) == 0 {
		return nil
	}
	_, err := c.Add(c.Root, hfNotifyData, off, -1)
	return err
}

func dissectDelete(c *registry.Call) error {
	if err := c.AddItems(c.Root, []core.Item{
		{Spec: hfDOI, Offset: 0, Length: 4},
		{Spec: hfProtoID, Offset: 4, Length: 1},
		{Spec: hfSPISize, Offset: 5, Length: 1},
		{Spec: hfNumSPIs, Offset: 6, Length: 2},
	}); err != nil {
		return err
	}
	spiSize, _ := c.Cursor.Uint8(5)
	count, _ := c.Cursor.Uint16(6)
	if spiSize == 0 {
		return nil
	}
	off := 8
	for i := 0; i < int(count); i++ {
		if _, err := c.Add(c.Root, hfDeleteSPI, off, int(spiSize)); err != nil {
			return err
		}
		off += int(spiSize)
	}
	return nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
