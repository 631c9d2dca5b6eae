package ip

import (
	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/core/checksum"
	"firestige.xyz/strix/internal/registry"
)

const ipv4MinHeaderLen = 20

var (
	hfVersion    = &core.FieldSpec{Name: "Version", Filter: "ip.version", Kind: core.KindUint, Width: 8, Mask: 0xf0}
	hfHdrLen     = &core.FieldSpec{Name: "Header Length", Filter: "ip.hdr_len", Kind: core.KindUint}
	hfDSField    = &core.FieldSpec{Name: "Differentiated Services Field", Filter: "ip.dsfield", Kind: core.KindUint, Base: core.BaseHex}
	hfLen        = &core.FieldSpec{Name: "Total Length", Filter: "ip.len", Kind: core.KindUint}
	hfID         = &core.FieldSpec{Name: "Identification", Filter: "ip.id", Kind: core.KindUint, Base: core.BaseDecHex}
	hfFlagDF     = &core.FieldSpec{Name: "Don't fragment", Filter: "ip.flags.df", Kind: core.KindBool, Width: 16, Mask: 0x4000}
	hfFlagMF     = &core.FieldSpec{Name: "More fragments", Filter: "ip.flags.mf", Kind: core.KindBool, Width: 16, Mask: 0x2000}
	hfFragOffset = &core.FieldSpec{Name: "Fragment Offset", Filter: "ip.frag_offset", Kind: core.KindUint, Width: 16, Mask: 0x1fff}
	hfTTL        = &core.FieldSpec{Name: "Time to Live", Filter: "ip.ttl", Kind: core.KindUint}
	hfProto      = &core.FieldSpec{Name: "Protocol", Filter: "ip.proto", Kind: core.KindUint, Strings: protocolNames}
	hfChecksum   = &core.FieldSpec{Name: "Header Checksum", Filter: "ip.checksum", Kind: core.KindUint, Base: core.BaseHex}
	hfCkStatus   = &core.FieldSpec{Name: "Header checksum status", Filter: "ip.checksum_status", Kind: core.KindUint, Strings: checksumStatus}
	hfSrc        = &core.FieldSpec{Name: "Source Address", Filter: "ip.src", Kind: core.KindIPv4}
	hfDst        = &core.FieldSpec{Name: "Destination Address", Filter: "ip.dst", Kind: core.KindIPv4}
	hfOptions    = &core.FieldSpec{Name: "Options", Filter: "ip.options", Kind: core.KindBytes}

	v4Fields = []*core.FieldSpec{
		hfVersion, hfHdrLen, hfDSField, hfLen, hfID, hfFlagDF, hfFlagMF, hfFragOffset,
		hfTTL, hfProto, hfChecksum, hfCkStatus, hfSrc, hfDst, hfOptions,
	}
)

func dissectIPv4(c *registry.Call) error {
	cur := c.Cursor
	vihl, err := cur.Uint8(0)
	if err != nil {
		return err
	}
	hl := int(vihl&0x0f) * 4

	root, err := c.AddRoot(0, min(max(hl, ipv4MinHeaderLen), cur.Len()))
	if err != nil {
		return err
	}
	if _, err := c.Add(root, hfVersion, 0, 1); err != nil {
		return err
	}
	hlf, err := c.Tree.AddValue(root, hfHdrLen, cur, 0, 1, core.UintValue(8, uint64(hl)))
	if err != nil {
		return err
	}
	hlf.AppendText(" bytes (%d)", vihl&0x0f)
	if hl < ipv4MinHeaderLen {
		return core.At(hlf, core.Malformedf("bogus IPv4 header length %d, must be at least %d", hl, ipv4MinHeaderLen))
	}

	if err := c.AddItems(root, []core.Item{
		{Spec: hfDSField, Offset: 1, Length: 1},
		{Spec: hfLen, Offset: 2, Length: 2},
		{Spec: hfID, Offset: 4, Length: 2},
		{Spec: hfFlagDF, Offset: 6, Length: 2},
		{Spec: hfFlagMF, Offset: 6, Length: 2},
		{Spec: hfFragOffset, Offset: 6, Length: 2},
		{Spec: hfTTL, Offset: 8, Length: 1},
		{Spec: hfProto, Offset: 9, Length: 1},
	}); err != nil {
		return err
	}

	expected, err := cur.Uint16(10)
	if err != nil {
		return err
	}
	ck, err := c.Add(root, hfChecksum, 10, 2)
	if err != nil {
		return err
	}
	if hdr, err := cur.Bytes(0, hl); err == nil {
		r := checksum.VerifyInternet(expected, hdr)
		ck.SetText("%s: %s", hfChecksum.Name, r.Label(4))
		AddChecksumStatus(c, ck, hfCkStatus, r)
	} else {
		ck.SetText("%s: 0x%04x [validation disabled]", hfChecksum.Name, expected)
	}

	if err := c.AddItems(root, []core.Item{
		{Spec: hfSrc, Offset: 12, Length: 4},
		{Spec: hfDst, Offset: 16, Length: 4},
	}); err != nil {
		return err
	}
	if hl > ipv4MinHeaderLen {
		if _, err := c.Add(root, hfOptions, ipv4MinHeaderLen, hl-ipv4MinHeaderLen); err != nil {
			return err
		}
	}

	src, _ := cur.IPv4(12)
	dst, _ := cur.IPv4(16)
	c.Ctx.SrcAddr, c.Ctx.DstAddr = src, dst
	c.Ctx.SetColumn(core.ColSource, "%s", src)
	c.Ctx.SetColumn(core.ColDestination, "%s", dst)
	root.AppendText(", Src: %s, Dst: %s", src, dst)

	total, _ := cur.Uint16(2)
	frag, _ := cur.Uint16(6)
	proto, _ := cur.Uint8(9)

	if int(total) < hl {
		return core.At(root, core.Malformedf("bogus IPv4 total length %d, less than header length %d", total, hl))
	}
	// Link layers may pad short frames; the payload ends at the total length.
	plen := int(total) - hl
	if plen > cur.ReportedRemaining(hl) {
		plen = cur.ReportedRemaining(hl)
	}
	payload, err := cur.Slice(hl, plen)
	if err != nil {
		return err
	}
	root.SetLength(min(int(total), cur.Len()))

	if frag&0x3fff != 0 {
		// Fragmented IP protocol; no reassembly.
		c.Ctx.SetColumn(core.ColInfo, "Fragmented IP protocol (proto=%d, off=%d)", proto, int(frag&0x1fff)*8)
		c.Data(payload)
		return nil
	}
	c.Next(TableProto, uint64(proto), payload)
	return nil
}
