// Package sctp dissects SCTP packets: the common header with its CRC32C or
// Adler-32 checksum, the chunk sequence, INIT parameters and error causes.
// DATA chunk payloads are dispatched by payload protocol identifier, then by port.
package sctp

import (
	"github.com/google/gopacket/layers"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/core/checksum"
	"firestige.xyz/strix/internal/protocols/ip"
	"firestige.xyz/strix/internal/protocols/udp"
	"firestige.xyz/strix/internal/registry"
)

const (
	// TablePPI dispatches DATA chunk payloads by payload protocol identifier.
	TablePPI = "sctp.ppi"
	// TablePort dispatches DATA chunk payloads by port, low port first.
	TablePort = "sctp.port"
)

const (
	headerLen = 12
	// UDPPort carries SCTP over UDP encapsulation.
	UDPPort = 9899
)

var Protocol = registry.NewProtocol("sctp", "SCTP", "Stream Control Transmission Protocol")

// Preferences of the SCTP dissector.
type Preferences struct {
	Checksum checksum.Mode `mapstructure:"checksum"`
}

func DefaultPreferences() Preferences {
	return Preferences{Checksum: checksum.ModeCRC32C}
}

type dissector struct {
	prefs Preferences
}

func Register(b *registry.Builder, prefs Preferences) {
	b.RegisterTable(TablePPI, registry.KeyUint, "SCTP payload protocol identifier")
	b.RegisterTable(TablePort, registry.KeyUint, "SCTP port")
	b.RegisterTable(ip.TableProto, registry.KeyUint, "IP protocol")
	b.RegisterTable(udp.TablePort, registry.KeyUint, "UDP port")
	b.RegisterFields(fields...)

	h := registry.Handle{Protocol: Protocol, Dissector: &dissector{prefs: prefs}}
	b.RegisterDissector(ip.TableProto, uint64(layers.IPProtocolSCTP), h)
	b.RegisterDissector(udp.TablePort, UDPPort, h)
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
		{Spec: hfVTag, Offset: 4, Length: 4},
	}); err != nil {
		return err
	}
	ck, err := c.Add(root, hfChecksum, 8, 4)
	if err != nil {
		return err
	}

	src, _ := cur.Uint16(0)
	dst, _ := cur.Uint16(2)
	expected, _ := cur.Uint32(8)
	c.Ctx.SrcPort, c.Ctx.DstPort = uint32(src), uint32(dst)
	root.AppendText(", Src Port: %d, Dst Port: %d", src, dst)
	c.Ctx.SetColumn(core.ColInfo, "")

	d.verify(c, ck, expected)

	w := &walk{c: c, src: src, dst: dst}
	return w.chunks(root, cur, headerLen, false)
}

func (d *dissector) verify(c *registry.Call, ck *core.Field, expected uint32) {
	r := checksum.Verify(d.prefs.Checksum, c.Cursor, 8, expected)
	ck.SetText("%s: %s", hfChecksum.Name, r.Label(8))
	if d.prefs.Checksum == checksum.ModeNone {
		return
	}
	ip.AddChecksumStatus(c, ck, hfCkStatus, r)
	if d.prefs.Checksum == checksum.ModeEither && r.Status == checksum.Good {
		c.Tree.AddGenerated(ck, hfCkAlg, core.StringValue(r.Algorithm.String()))
	}
}
