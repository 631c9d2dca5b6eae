// Package eth dissects Ethernet II frames and 802.1Q / QinQ VLAN tags.
package eth

import (
	"net"

	"github.com/google/gopacket/layers"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/engine"
	"firestige.xyz/strix/internal/registry"
)

// TableEtherType dispatches payloads by EtherType.
const TableEtherType = "ethertype"

const (
	headerLen     = 14
	vlanHeaderLen = 4
	// EtherType values up to this are an 802.3 length.
	maxLength = 1500
)

var (
	Protocol = registry.NewProtocol("eth", "ETH", "Ethernet II")
	VLAN     = registry.NewProtocol("vlan", "VLAN", "802.1Q Virtual LAN")
)

var etherTypes = map[uint64]string{}

func init() {
	for _, t := range []layers.EthernetType{
		layers.EthernetTypeIPv4,
		layers.EthernetTypeARP,
		layers.EthernetTypeIPv6,
		layers.EthernetTypeDot1Q,
		layers.EthernetTypeQinQ,
		layers.EthernetTypeLinkLayerDiscovery,
		layers.EthernetTypeMPLSUnicast,
		layers.EthernetTypePPPoESession,
	} {
		etherTypes[uint64(t)] = t.String()
	}
}

var (
	hfDst  = &core.FieldSpec{Name: "Destination", Filter: "eth.dst", Kind: core.KindBytes}
	hfSrc  = &core.FieldSpec{Name: "Source", Filter: "eth.src", Kind: core.KindBytes}
	hfType = &core.FieldSpec{Name: "Type", Filter: "eth.type", Kind: core.KindUint, Base: core.BaseHex, Strings: etherTypes}
	hfLen  = &core.FieldSpec{Name: "Length", Filter: "eth.len", Kind: core.KindUint}

	hfVLANPriority = &core.FieldSpec{Name: "Priority", Filter: "vlan.priority", Kind: core.KindUint, Width: 16, Mask: 0xe000}
	hfVLANDEI      = &core.FieldSpec{Name: "DEI", Filter: "vlan.dei", Kind: core.KindBool, Width: 16, Mask: 0x1000}
	hfVLANID       = &core.FieldSpec{Name: "ID", Filter: "vlan.id", Kind: core.KindUint, Width: 16, Mask: 0x0fff}
	hfVLANType     = &core.FieldSpec{Name: "Type", Filter: "vlan.etype", Kind: core.KindUint, Base: core.BaseHex, Strings: etherTypes}
)

// Register installs Ethernet on the capture encapsulation table and VLAN on
// the EtherType table.
func Register(b *registry.Builder) {
	b.RegisterTable(TableEtherType, registry.KeyUint, "Ethertype")
	b.RegisterFields(hfDst, hfSrc, hfType, hfLen, hfVLANPriority, hfVLANDEI, hfVLANID, hfVLANType)

	b.RegisterDissector(engine.TableEncap, uint64(layers.LinkTypeEthernet),
		registry.Handle{Protocol: Protocol, Dissector: registry.DissectorFunc(dissect)})
	vlan := registry.Handle{Protocol: VLAN, Dissector: registry.DissectorFunc(dissectVLAN)}
	b.RegisterDissector(TableEtherType, uint64(layers.EthernetTypeDot1Q), vlan)
	b.RegisterDissector(TableEtherType, uint64(layers.EthernetTypeQinQ), vlan)
}

func dissect(c *registry.Call) error {
	root, err := c.AddRoot(0, -1)
	if err != nil {
		return err
	}
	if err := c.AddItems(root, []core.Item{
		{Spec: hfDst, Offset: 0, Length: 6},
		{Spec: hfSrc, Offset: 6, Length: 6},
	}); err != nil {
		return err
	}
	dst, _ := c.Cursor.Bytes(0, 6)
	src, _ := c.Cursor.Bytes(6, 6)
	root.AppendText(", Src: %s, Dst: %s", net.HardwareAddr(src), net.HardwareAddr(dst))
	c.Ctx.SetColumn(core.ColSource, "%s", net.HardwareAddr(src))
	c.Ctx.SetColumn(core.ColDestination, "%s", net.HardwareAddr(dst))

	etype, err := c.Cursor.Uint16(12)
	if err != nil {
		return err
	}
	payload, err := c.Cursor.Rest(headerLen)
	if err != nil {
		return err
	}
	if etype <= maxLength {
		// IEEE 802.3 frame; LLC is not dissected.
		if _, err := c.Add(root, hfLen, 12, 2); err != nil {
			return err
		}
		c.Data(payload)
		return nil
	}
	if _, err := c.Add(root, hfType, 12, 2); err != nil {
		return err
	}
	c.Next(TableEtherType, uint64(etype), payload)
	return nil
}

func dissectVLAN(c *registry.Call) error {
	root, err := c.AddRoot(0, -1)
	if err != nil {
		return err
	}
	if err := c.AddItems(root, []core.Item{
		{Spec: hfVLANPriority, Offset: 0, Length: 2},
		{Spec: hfVLANDEI, Offset: 0, Length: 2},
		{Spec: hfVLANID, Offset: 0, Length: 2},
		{Spec: hfVLANType, Offset: 2, Length: 2},
	}); err != nil {
		return err
	}
	tci, _ := c.Cursor.Uint16(0)
	etype, _ := c.Cursor.Uint16(2)
	root.AppendText(", ID: %d", tci&0x0fff)

	payload, err := c.Cursor.Rest(vlanHeaderLen)
	if err != nil {
		return err
	}
	c.Next(TableEtherType, uint64(etype), payload)
	return nil
}
