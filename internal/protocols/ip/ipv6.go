package ip

import (
	"github.com/google/gopacket/layers"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/registry"
)

const (
	ipv6HeaderLen = 40
	// Extension headers followed before dispatching.
	maxExtensionHeaders = 8
)

var (
	hf6Version = &core.FieldSpec{Name: "Version", Filter: "ipv6.version", Kind: core.KindUint, Width: 32, Mask: 0xf0000000}
	hf6TClass  = &core.FieldSpec{Name: "Traffic Class", Filter: "ipv6.tclass", Kind: core.KindUint, Width: 32, Mask: 0x0ff00000, Base: core.BaseHex}
	hf6Flow    = &core.FieldSpec{Name: "Flow Label", Filter: "ipv6.flow", Kind: core.KindUint, Width: 32, Mask: 0x000fffff, Base: core.BaseHex}
	hf6PLen    = &core.FieldSpec{Name: "Payload Length", Filter: "ipv6.plen", Kind: core.KindUint}
	hf6Next    = &core.FieldSpec{Name: "Next Header", Filter: "ipv6.nxt", Kind: core.KindUint, Strings: protocolNames}
	hf6HLim    = &core.FieldSpec{Name: "Hop Limit", Filter: "ipv6.hlim", Kind: core.KindUint}
	hf6Src     = &core.FieldSpec{Name: "Source Address", Filter: "ipv6.src", Kind: core.KindIPv6}
	hf6Dst     = &core.FieldSpec{Name: "Destination Address", Filter: "ipv6.dst", Kind: core.KindIPv6}

	hf6ExtNext = &core.FieldSpec{Name: "Next Header", Filter: "ipv6.ext.nxt", Kind: core.KindUint, Strings: protocolNames}
	hf6ExtLen  = &core.FieldSpec{Name: "Length", Filter: "ipv6.ext.len", Kind: core.KindUint}
	hf6ExtData = &core.FieldSpec{Name: "Data", Filter: "ipv6.ext.data", Kind: core.KindBytes}

	hf6FragOffset = &core.FieldSpec{Name: "Offset", Filter: "ipv6.fragment.offset", Kind: core.KindUint, Width: 16, Mask: 0xfff8}
	hf6FragMore   = &core.FieldSpec{Name: "More Fragments", Filter: "ipv6.fragment.more", Kind: core.KindBool, Width: 16, Mask: 0x0001}
	hf6FragID     = &core.FieldSpec{Name: "Identification", Filter: "ipv6.fragment.id", Kind: core.KindUint, Base: core.BaseHex}

	v6Fields = []*core.FieldSpec{
		hf6Version, hf6TClass, hf6Flow, hf6PLen, hf6Next, hf6HLim, hf6Src, hf6Dst,
		hf6ExtNext, hf6ExtLen, hf6ExtData, hf6FragOffset, hf6FragMore, hf6FragID,
	}
)

func dissectIPv6(c *registry.Call) error {
	cur := c.Cursor
	root, err := c.AddRoot(0, -1)
	if err != nil {
		return err
	}
	if err := c.AddItems(root, []core.Item{
		{Spec: hf6Version, Offset: 0, Length: 4},
		{Spec: hf6TClass, Offset: 0, Length: 4},
		{Spec: hf6Flow, Offset: 0, Length: 4},
		{Spec: hf6PLen, Offset: 4, Length: 2},
		{Spec: hf6Next, Offset: 6, Length: 1},
		{Spec: hf6HLim, Offset: 7, Length: 1},
		{Spec: hf6Src, Offset: 8, Length: 16},
		{Spec: hf6Dst, Offset: 24, Length: 16},
	}); err != nil {
		return err
	}

	src, _ := cur.IPv6(8)
	dst, _ := cur.IPv6(24)
	c.Ctx.SrcAddr, c.Ctx.DstAddr = src, dst
	c.Ctx.SetColumn(core.ColSource, "%s", src)
	c.Ctx.SetColumn(core.ColDestination, "%s", dst)
	root.AppendText(", Src: %s, Dst: %s", src, dst)

	plen, _ := cur.Uint16(4)
	next, _ := cur.Uint8(6)
	n := min(int(plen), cur.ReportedRemaining(ipv6HeaderLen))
	body, err := cur.Slice(ipv6HeaderLen, n)
	if err != nil {
		return err
	}
	root.SetLength(min(ipv6HeaderLen+n, cur.Len()))

	off := 0
	fragmented := false
	for i := 0; i < maxExtensionHeaders; i++ {
		switch layers.IPProtocol(next) {
		case layers.IPProtocolIPv6HopByHop, layers.IPProtocolIPv6Routing, layers.IPProtocolIPv6Destination:
			hlen, err := body.Uint8(off + 1)
			if err != nil {
				return err
			}
			size := (int(hlen) + 1) * 8
			ext, err := c.Tree.AddText(root, body, off, size, "%s", layers.IPProtocol(next))
			if err != nil {
				return core.At(root, err)
			}
			if err := c.Tree.AddItems(ext, body, []core.Item{
				{Spec: hf6ExtNext, Offset: off, Length: 1},
				{Spec: hf6ExtLen, Offset: off + 1, Length: 1},
				{Spec: hf6ExtData, Offset: off + 2, Length: size - 2},
			}); err != nil {
				return err
			}
			next, _ = body.Uint8(off)
			off += size
			continue
		case layers.IPProtocolIPv6Fragment:
			ext, err := c.Tree.AddText(root, body, off, 8, "Fragment Header")
			if err != nil {
				return core.At(root, err)
			}
			if err := c.Tree.AddItems(ext, body, []core.Item{
				{Spec: hf6ExtNext, Offset: off, Length: 1},
				{Spec: hf6FragOffset, Offset: off + 2, Length: 2},
				{Spec: hf6FragMore, Offset: off + 2, Length: 2},
				{Spec: hf6FragID, Offset: off + 4, Length: 4},
			}); err != nil {
				return err
			}
			fo, _ := body.Uint16(off + 2)
			fragmented = fo&0xfff9 != 0
			next, _ = body.Uint8(off)
			off += 8
			continue
		}
		break
	}

	payload, err := body.Rest(off)
	if err != nil {
		return err
	}
	if fragmented {
		c.Ctx.SetColumn(core.ColInfo, "IPv6 fragment (nxt=%d)", next)
		c.Data(payload)
		return nil
	}
	c.Next(TableProto, uint64(next), payload)
	return nil
}
