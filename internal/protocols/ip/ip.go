// Package ip dissects IPv4 and IPv6 headers and dispatches on the carried
// protocol number. Fragments are not reassembled.
package ip

import (
	"github.com/google/gopacket/layers"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/core/checksum"
	"firestige.xyz/strix/internal/engine"
	"firestige.xyz/strix/internal/protocols/eth"
	"firestige.xyz/strix/internal/registry"
)

// TableProto dispatches IP payloads by protocol / next header number.
const TableProto = "ip.proto"

// tableVersion selects the IP dissector for raw IP captures.
const tableVersion = "ip.version"

var (
	IPv4 = registry.NewProtocol("ip", "IPv4", "Internet Protocol Version 4")
	IPv6 = registry.NewProtocol("ipv6", "IPv6", "Internet Protocol Version 6")
	Raw  = registry.NewProtocol("raw", "Raw", "Raw packet data")
)

var protocolNames = map[uint64]string{}

func init() {
	for _, p := range []layers.IPProtocol{
		layers.IPProtocolIPv6HopByHop,
		layers.IPProtocolICMPv4,
		layers.IPProtocolIGMP,
		layers.IPProtocolIPv4,
		layers.IPProtocolTCP,
		layers.IPProtocolUDP,
		layers.IPProtocolIPv6,
		layers.IPProtocolIPv6Routing,
		layers.IPProtocolIPv6Fragment,
		layers.IPProtocolGRE,
		layers.IPProtocolESP,
		layers.IPProtocolAH,
		layers.IPProtocolICMPv6,
		layers.IPProtocolNoNextHeader,
		layers.IPProtocolIPv6Destination,
		layers.IPProtocolSCTP,
		layers.IPProtocolUDPLite,
	} {
		protocolNames[uint64(p)] = p.String()
	}
}

var checksumStatus = map[uint64]string{
	uint64(checksum.Unverified): "Unverified",
	uint64(checksum.Good):       "Good",
	uint64(checksum.Bad):        "Bad",
}

// Register installs IPv4 and IPv6 on the EtherType and capture encapsulation
// tables.
func Register(b *registry.Builder) {
	b.RegisterTable(TableProto, registry.KeyUint, "IP protocol")
	b.RegisterTable(tableVersion, registry.KeyUint, "IP version")
	b.RegisterTable(eth.TableEtherType, registry.KeyUint, "Ethertype")
	b.RegisterFields(v4Fields...)
	b.RegisterFields(v6Fields...)

	v4 := registry.Handle{Protocol: IPv4, Dissector: registry.DissectorFunc(dissectIPv4)}
	v6 := registry.Handle{Protocol: IPv6, Dissector: registry.DissectorFunc(dissectIPv6)}
	raw := registry.Handle{Protocol: Raw, Dissector: registry.DissectorFunc(dissectRaw)}

	b.RegisterDissector(eth.TableEtherType, uint64(layers.EthernetTypeIPv4), v4)
	b.RegisterDissector(eth.TableEtherType, uint64(layers.EthernetTypeIPv6), v6)
	b.RegisterDissector(tableVersion, 4, v4)
	b.RegisterDissector(tableVersion, 6, v6)
	b.RegisterDissector(engine.TableEncap, uint64(layers.LinkTypeRaw), raw)
	b.RegisterDissector(engine.TableEncap, uint64(layers.LinkTypeIPv4), v4)
	b.RegisterDissector(engine.TableEncap, uint64(layers.LinkTypeIPv6), v6)
	// IP in IP
	b.RegisterDissector(TableProto, uint64(layers.IPProtocolIPv4), v4)
	b.RegisterDissector(TableProto, uint64(layers.IPProtocolIPv6), v6)
}

// dissectRaw picks the IP version from the first nibble.
func dissectRaw(c *registry.Call) error {
	root, err := c.AddRoot(0, 0)
	if err != nil {
		return err
	}
	b, err := c.Cursor.Uint8(0)
	if err != nil {
		return err
	}
	root.SetText("Raw packet data")
	c.Next(tableVersion, uint64(b>>4), c.Cursor)
	return nil
}

// AddChecksumStatus adds the generated status field for r under parent and warns
// when the checksum is bad.
func AddChecksumStatus(c *registry.Call, parent *core.Field, spec *core.FieldSpec, r checksum.Result) {
	c.Tree.AddGenerated(parent, spec, core.UintValue(8, uint64(r.Status)))
	if r.Status == checksum.Bad {
		c.Ctx.AddWarning(core.SeverityError, "checksum", parent, "Bad checksum [should be 0x%04x]", r.Computed)
	}
}

// PseudoHeader builds the IPv4 or IPv6 pseudo-header covered by transport
// checksums, from the addresses recorded by the enclosing IP layer. It returns
// nil when no IP layer was seen.
func PseudoHeader(ctx *core.Context, proto uint8, length int) []byte {
	switch {
	case ctx.SrcAddr.Is4() && ctx.DstAddr.Is4():
		src, dst := ctx.SrcAddr.As4(), ctx.DstAddr.As4()
		b := make([]byte, 0, 12)
		b = append(b, src[:]...)
		b = append(b, dst[:]...)
		return append(b, 0, proto, byte(length>>8), byte(length))
	case ctx.SrcAddr.Is6() && ctx.DstAddr.Is6():
		src, dst := ctx.SrcAddr.As16(), ctx.DstAddr.As16()
		b := make([]byte, 0, 40)
		b = append(b, src[:]...)
		b = append(b, dst[:]...)
		return append(b, byte(length>>24), byte(length>>16), byte(length>>8), byte(length), 0, 0, 0, proto)
	}
	return nil
}

// ChecksumStatus is the value-string table shared by checksum status fields.
func ChecksumStatus() map[uint64]string { return checksumStatus }
