// Package udp dissects UDP datagrams and dispatches their payload by port.
package udp

import (
	"github.com/google/gopacket/layers"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/core/checksum"
	"firestige.xyz/strix/internal/protocols/ip"
	"firestige.xyz/strix/internal/registry"
)

// TablePort dispatches UDP payloads by port, low port first.
const TablePort = "udp.port"

const headerLen = 8

var Protocol = registry.NewProtocol("udp", "UDP", "User Datagram Protocol")

var (
	hfSrcPort  = &core.FieldSpec{Name: "Source Port", Filter: "udp.srcport", Kind: core.KindUint}
	hfDstPort  = &core.FieldSpec{Name: "Destination Port", Filter: "udp.dstport", Kind: core.KindUint}
	hfLength   = &core.FieldSpec{Name: "Length", Filter: "udp.length", Kind: core.KindUint}
	hfChecksum = &core.FieldSpec{Name: "Checksum", Filter: "udp.checksum", Kind: core.KindUint, Base: core.BaseHex}
	hfCkStatus = &core.FieldSpec{Name: "Checksum Status", Filter: "udp.checksum_status", Kind: core.KindUint, Strings: ip.ChecksumStatus()}
)

// Preferences of the UDP dissector.
type Preferences struct {
	CheckChecksum bool `mapstructure:"check_checksum"`
	// TryHeuristicFirst offers the payload to heuristic dissectors before the port tables.
	TryHeuristicFirst bool `mapstructure:"try_heuristic_first"`
}

func DefaultPreferences() Preferences {
	return Preferences{CheckChecksum: true}
}

type dissector struct {
	prefs Preferences
}

func Register(b *registry.Builder, prefs Preferences) {
	b.RegisterTable(TablePort, registry.KeyUint, "UDP port")
	b.RegisterTable(ip.TableProto, registry.KeyUint, "IP protocol")
	b.RegisterFields(hfSrcPort, hfDstPort, hfLength, hfChecksum, hfCkStatus)

	d := &dissector{prefs: prefs}
	b.RegisterDissector(ip.TableProto, uint64(layers.IPProtocolUDP), registry.Handle{Protocol: Protocol, Dissector: d})
}

func (d *dissector) Dissect(c *registry.Call) error {
	cur := c.Cursor
	root, err := c.AddRoot(0, -1)
	if err != nil {
		return err
	}
	if err := c.AddItems(root, []core.Item{
		{Spec: hfSrcPort, Offset: 0, Length: 2},
		{Spec: hfDstPort, Offset: 2, Length: 2},
	}); err != nil {
		return err
	}
	lf, err := c.Add(root, hfLength, 4, 2)
	if err != nil {
		return err
	}
	ck, err := c.Add(root, hfChecksum, 6, 2)
	if err != nil {
		return err
	}

	src, _ := cur.Uint16(0)
	dst, _ := cur.Uint16(2)
	length, _ := cur.Uint16(4)
	expected, _ := cur.Uint16(6)
	c.Ctx.SrcPort, c.Ctx.DstPort = uint32(src), uint32(dst)
	root.AppendText(", Src Port: %d, Dst Port: %d", src, dst)
	c.Ctx.SetColumn(core.ColInfo, "%d → %d Len=%d", src, dst, max(int(length)-headerLen, 0))

	if int(length) < headerLen {
		return core.At(lf, core.Malformedf("bad length value %d < %d", length, headerLen))
	}
	if int(length) > cur.ReportedLen() {
		return core.At(lf, core.Malformedf("bad length value %d > IP payload length %d", length, cur.ReportedLen()))
	}
	root.SetLength(min(int(length), cur.Len()))

	d.verify(c, ck, expected, int(length))

	payload, err := cur.Slice(headerLen, int(length)-headerLen)
	if err != nil {
		return err
	}
	if payload.ReportedLen() == 0 {
		return nil
	}
	if d.prefs.TryHeuristicFirst && c.TryHeuristics(TablePort, payload) {
		return nil
	}
	c.NextPorts(TablePort, uint64(src), uint64(dst), payload)
	return nil
}

func (d *dissector) verify(c *registry.Call, ck *core.Field, expected uint16, length int) {
	switch {
	case expected == 0 && c.Ctx.SrcAddr.Is4():
		ck.SetText("%s: 0x0000 [zero-value ignored]", hfChecksum.Name)
		return
	case !d.prefs.CheckChecksum:
		ck.SetText("%s: 0x%04x [unverified]", hfChecksum.Name, expected)
		return
	}
	pseudo := ip.PseudoHeader(c.Ctx, uint8(layers.IPProtocolUDP), length)
	data, err := c.Cursor.Bytes(0, length)
	if pseudo == nil || err != nil {
		ck.SetText("%s: 0x%04x [unverified]", hfChecksum.Name, expected)
		c.Tree.AddGenerated(ck, hfCkStatus, core.UintValue(8, uint64(checksum.Unverified)))
		return
	}
	r := checksum.VerifyInternet(expected, pseudo, data)
	ck.SetText("%s: %s", hfChecksum.Name, r.Label(4))
	ip.AddChecksumStatus(c, ck, hfCkStatus, r)
}
