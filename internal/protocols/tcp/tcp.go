// Package tcp dissects TCP segment headers and dispatches their payload by
// port. Streams are not reassembled.
package tcp

import (
	"fmt"
	"strings"

	"github.com/google/gopacket/layers"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/core/checksum"
	"firestige.xyz/strix/internal/protocols/ip"
	"firestige.xyz/strix/internal/registry"
)

// TablePort dispatches TCP payloads by port, low port first.
const TablePort = "tcp.port"

const minHeaderLen = 20

var Protocol = registry.NewProtocol("tcp", "TCP", "Transmission Control Protocol")

var (
	hfSrcPort  = &core.FieldSpec{Name: "Source Port", Filter: "tcp.srcport", Kind: core.KindUint}
	hfDstPort  = &core.FieldSpec{Name: "Destination Port", Filter: "tcp.dstport", Kind: core.KindUint}
	hfSeq      = &core.FieldSpec{Name: "Sequence Number (raw)", Filter: "tcp.seq_raw", Kind: core.KindUint}
	hfAck      = &core.FieldSpec{Name: "Acknowledgment number (raw)", Filter: "tcp.ack_raw", Kind: core.KindUint}
	hfHdrLen   = &core.FieldSpec{Name: "Header Length", Filter: "tcp.hdr_len", Kind: core.KindUint}
	hfFlags    = &core.FieldSpec{Name: "Flags", Filter: "tcp.flags", Kind: core.KindUint, Width: 16, Mask: 0x0fff, Base: core.BaseHex}
	hfWindow   = &core.FieldSpec{Name: "Window", Filter: "tcp.window_size_value", Kind: core.KindUint}
	hfChecksum = &core.FieldSpec{Name: "Checksum", Filter: "tcp.checksum", Kind: core.KindUint, Base: core.BaseHex}
	hfCkStatus = &core.FieldSpec{Name: "Checksum Status", Filter: "tcp.checksum_status", Kind: core.KindUint, Strings: ip.ChecksumStatus()}
	hfUrgent   = &core.FieldSpec{Name: "Urgent Pointer", Filter: "tcp.urgent_pointer", Kind: core.KindUint}
	hfOptions  = &core.FieldSpec{Name: "Options", Filter: "tcp.options", Kind: core.KindBytes}
	hfLen      = &core.FieldSpec{Name: "TCP Segment Len", Filter: "tcp.len", Kind: core.KindUint, Width: 32}
)

type flag struct {
	name string
	spec *core.FieldSpec
}

var flags = []flag{
	{"NS", &core.FieldSpec{Name: "Nonce", Filter: "tcp.flags.ns", Kind: core.KindBool, Width: 16, Mask: 0x0100}},
	{"CWR", &core.FieldSpec{Name: "Congestion Window Reduced", Filter: "tcp.flags.cwr", Kind: core.KindBool, Width: 16, Mask: 0x0080}},
	{"ECE", &core.FieldSpec{Name: "ECN-Echo", Filter: "tcp.flags.ece", Kind: core.KindBool, Width: 16, Mask: 0x0040}},
	{"URG", &core.FieldSpec{Name: "Urgent", Filter: "tcp.flags.urg", Kind: core.KindBool, Width: 16, Mask: 0x0020}},
	{"ACK", &core.FieldSpec{Name: "Acknowledgment", Filter: "tcp.flags.ack", Kind: core.KindBool, Width: 16, Mask: 0x0010}},
	{"PSH", &core.FieldSpec{Name: "Push", Filter: "tcp.flags.push", Kind: core.KindBool, Width: 16, Mask: 0x0008}},
	{"RST", &core.FieldSpec{Name: "Reset", Filter: "tcp.flags.reset", Kind: core.KindBool, Width: 16, Mask: 0x0004}},
	{"SYN", &core.FieldSpec{Name: "Syn", Filter: "tcp.flags.syn", Kind: core.KindBool, Width: 16, Mask: 0x0002}},
	{"FIN", &core.FieldSpec{Name: "Fin", Filter: "tcp.flags.fin", Kind: core.KindBool, Width: 16, Mask: 0x0001}},
}

// Preferences of the TCP dissector.
type Preferences struct {
	CheckChecksum bool `mapstructure:"check_checksum"`
}

func DefaultPreferences() Preferences {
	return Preferences{CheckChecksum: false}
}

type dissector struct {
	prefs Preferences
}

func Register(b *registry.Builder, prefs Preferences) {
	b.RegisterTable(TablePort, registry.KeyUint, "TCP port")
	b.RegisterTable(ip.TableProto, registry.KeyUint, "IP protocol")
	b.RegisterFields(hfSrcPort, hfDstPort, hfSeq, hfAck, hfHdrLen, hfFlags, hfWindow,
		hfChecksum, hfCkStatus, hfUrgent, hfOptions, hfLen)
	for _, f := range flags {
		b.RegisterFields(f.spec)
	}
	b.RegisterDissector(ip.TableProto, uint64(layers.IPProtocolTCP),
		registry.Handle{Protocol: Protocol, Dissector: &dissector{prefs: prefs}})
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
		{Spec: hfSeq, Offset: 4, Length: 4},
		{Spec: hfAck, Offset: 8, Length: 4},
	}); err != nil {
		return err
	}

	off, err := cur.Uint8(12)
	if err != nil {
		return err
	}
	hl := int(off>>4) * 4
	hlf, err := c.Tree.AddValue(root, hfHdrLen, cur, 12, 1, core.UintValue(8, uint64(hl)))
	if err != nil {
		return err
	}
	hlf.AppendText(" bytes (%d)", off>>4)
	if hl < minHeaderLen {
		return core.At(hlf, core.Malformedf("bogus TCP header length %d, must be at least %d", hl, minHeaderLen))
	}

	ff, err := c.Add(root, hfFlags, 12, 2)
	if err != nil {
		return err
	}
	raw, _ := cur.Uint16(12)
	var set []string
	for _, f := range flags {
		if _, err := c.Add(ff, f.spec, 12, 2); err != nil {
			return err
		}
		if raw&uint16(f.spec.Mask) != 0 {
			set = append(set, f.name)
		}
	}
	ff.AppendText(" (%s)", strings.Join(set, ", "))

	if _, err := c.Add(root, hfWindow, 14, 2); err != nil {
		return err
	}
	ck, err := c.Add(root, hfChecksum, 16, 2)
	if err != nil {
		return err
	}
	if _, err := c.Add(root, hfUrgent, 18, 2); err != nil {
		return err
	}
	if hl > minHeaderLen {
		if _, err := c.Add(root, hfOptions, minHeaderLen, hl-minHeaderLen); err != nil {
			return err
		}
	}

	src, _ := cur.Uint16(0)
	dst, _ := cur.Uint16(2)
	seq, _ := cur.Uint32(4)
	ack, _ := cur.Uint32(8)
	win, _ := cur.Uint16(14)
	expected, _ := cur.Uint16(16)
	segLen := cur.ReportedLen() - hl
	if segLen < 0 {
		return core.At(hlf, core.Malformedf("header length %d exceeds segment length %d", hl, cur.ReportedLen()))
	}
	c.Tree.AddGenerated(root, hfLen, core.UintValue(32, uint64(segLen)))

	c.Ctx.SrcPort, c.Ctx.DstPort = uint32(src), uint32(dst)
	root.AppendText(", Src Port: %d, Dst Port: %d, Seq: %d, Len: %d", src, dst, seq, segLen)
	c.Ctx.SetColumn(core.ColInfo, "%d → %d [%s] Seq=%d", src, dst, strings.Join(set, ", "), seq)
	if raw&0x0010 != 0 {
		c.Ctx.AppendColumn(core.ColInfo, " ", fmt.Sprintf("Ack=%d", ack))
	}
	c.Ctx.AppendColumn(core.ColInfo, " ", fmt.Sprintf("Win=%d Len=%d", win, segLen))

	d.verify(c, ck, expected)

	if segLen == 0 {
		return nil
	}
	payload, err := cur.Rest(hl)
	if err != nil {
		return err
	}
	c.NextPorts(TablePort, uint64(src), uint64(dst), payload)
	return nil
}

func (d *dissector) verify(c *registry.Call, ck *core.Field, expected uint16) {
	length := c.Cursor.ReportedLen()
	pseudo := ip.PseudoHeader(c.Ctx, uint8(layers.IPProtocolTCP), length)
	data, err := c.Cursor.Bytes(0, length)
	if !d.prefs.CheckChecksum || pseudo == nil || err != nil {
		ck.SetText("%s: 0x%04x [unverified]", hfChecksum.Name, expected)
		c.Tree.AddGenerated(ck, hfCkStatus, core.UintValue(8, uint64(checksum.Unverified)))
		return
	}
	r := checksum.VerifyInternet(expected, pseudo, data)
	ck.SetText("%s: %s", hfChecksum.Name, r.Label(4))
	ip.AddChecksumStatus(c, ck, hfCkStatus, r)
}
