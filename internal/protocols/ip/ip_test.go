package ip

import (
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/core/checksum"
	"firestige.xyz/strix/internal/engine"
	"firestige.xyz/strix/internal/log"
	"firestige.xyz/strix/internal/protocols/eth"
	"firestige.xyz/strix/internal/registry"
)

// IP protocol number reserved for experimentation.
const protoNumberLocal = 253

var protoLocal = registry.NewProtocol("local", "LOCAL", "Local Experimental Payload")

func newEngine(t testing.TB) *engine.Engine {
	t.Helper()
	b := registry.NewBuilder(log.Discard())
	engine.Register(b)
	eth.Register(b)
	Register(b)
	b.RegisterDissector(TableProto, protoNumberLocal, registry.Handle{
		Protocol: protoLocal,
		Dissector: registry.DissectorFunc(func(c *registry.Call) error {
			_, err := c.AddRoot(0, -1)
			return err
		}),
	})
	e, err := engine.New(b.Build(), engine.WithLogger(log.Discard()))
	require.NoError(t, err)
	return e
}

func serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}, ls...))
	return buf.Bytes()
}

func ipv4() *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		TTL:      64,
		Id:       0x1234,
		Protocol: protoNumberLocal,
		SrcIP:    net.IP{192, 0, 2, 1},
		DstIP:    net.IP{192, 0, 2, 2},
	}
}

func ipv6() *layers.IPv6 {
	return &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: protoNumberLocal,
		SrcIP:      net.ParseIP("2001:db8::1"),
		DstIP:      net.ParseIP("2001:db8::2"),
	}
}

func ethernet(etype layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: etype,
	}
}

func rawFrame(data []byte, encap layers.LinkType) engine.Frame {
	return engine.Frame{Number: 1, Data: data, Encap: int(encap)}
}

func TestIPv4(t *testing.T) {
	data := serialize(t, ethernet(layers.EthernetTypeIPv4), ipv4(), gopacket.Payload("abcd"))
	res := newEngine(t).DissectFrame(rawFrame(data, layers.LinkTypeEthernet), true)

	require.False(t, res.Malformed())
	assert.Equal(t, "frame:eth:ip:local", res.Context.Protocols())
	assert.Equal(t, "192.0.2.1", res.Context.Column(core.ColSource))
	assert.Equal(t, "192.0.2.2", res.Context.Column(core.ColDestination))
	assert.Equal(t, netip.MustParseAddr("192.0.2.1"), res.Tree.First("ip.src").Value.Addr())
	assert.Equal(t, uint64(20), res.Tree.First("ip.hdr_len").Value.Uint())
	assert.Equal(t, uint64(checksum.Good), res.Tree.First("ip.checksum_status").Value.Uint())
	assert.Empty(t, res.Context.Warnings)

	// Ethernet pads the frame to its minimum size; the payload stops at the total length.
	local := res.Tree.First("local")
	require.NotNil(t, local)
	assert.Equal(t, 4, local.Length)
}

func TestIPv4_BadChecksum(t *testing.T) {
	data := serialize(t, ipv4(), gopacket.Payload("abcd"))
	data[10] ^= 0xff
	res := newEngine(t).DissectFrame(rawFrame(data, layers.LinkTypeIPv4), true)

	assert.Equal(t, uint64(checksum.Bad), res.Tree.First("ip.checksum_status").Value.Uint())
	require.Len(t, res.Context.Warnings, 1)
	w := res.Context.Warnings[0]
	assert.Equal(t, core.SeverityError, w.Severity)
	assert.Equal(t, "checksum", w.Group)
	assert.Equal(t, "ip", w.Protocol)
	assert.Contains(t, w.Message, "Bad checksum [should be 0x")
	assert.Equal(t, "frame:ip:local", res.Context.Protocols())
}

func TestIPv4_Fragments(t *testing.T) {
	tests := []struct {
		name   string
		flags  layers.IPv4Flag
		offset uint16
		info   string
	}{
		{name: "first fragment", flags: layers.IPv4MoreFragments, offset: 0, info: "Fragmented IP protocol (proto=253, off=0)"},
		{name: "middle fragment", flags: layers.IPv4MoreFragments, offset: 10, info: "Fragmented IP protocol (proto=253, off=80)"},
		{name: "last fragment", offset: 10, info: "Fragmented IP protocol (proto=253, off=80)"},
	}
	e := newEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hdr := ipv4()
			hdr.Flags = tt.flags
			hdr.FragOffset = tt.offset
			res := e.DissectFrame(rawFrame(serialize(t, hdr, gopacket.Payload("abcdefgh")), layers.LinkTypeIPv4), true)

			require.False(t, res.Malformed())
			assert.Equal(t, "frame:ip:data", res.Context.Protocols())
			assert.Equal(t, tt.info, res.Context.Column(core.ColInfo))
			assert.Nil(t, res.Tree.First("local"))
			assert.Equal(t, uint64(tt.offset), res.Tree.First("ip.frag_offset").Value.Uint())
		})
	}

	t.Run("don't fragment is not a fragment", func(t *testing.T) {
		hdr := ipv4()
		hdr.Flags = layers.IPv4DontFragment
		res := e.DissectFrame(rawFrame(serialize(t, hdr, gopacket.Payload("abcd")), layers.LinkTypeIPv4), true)

		assert.Equal(t, "frame:ip:local", res.Context.Protocols())
		assert.True(t, res.Tree.First("ip.flags.df").Value.Bool())
	})
}

func TestRawEncapsulation(t *testing.T) {
	tests := []struct {
		name      string
		data      func(t *testing.T) []byte
		protocols string
	}{
		{
			name:      "ipv4",
			data:      func(t *testing.T) []byte { return serialize(t, ipv4(), gopacket.Payload("abcd")) },
			protocols: "frame:raw:ip:local",
		},
		{
			name:      "ipv6",
			data:      func(t *testing.T) []byte { return serialize(t, ipv6(), gopacket.Payload("abcd")) },
			protocols: "frame:raw:ipv6:local",
		},
		{
			name:      "unknown version",
			data:      func(t *testing.T) []byte { return []byte{0x50, 0, 0, 0} },
			protocols: "frame:raw:data",
		},
	}
	e := newEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.DissectFrame(rawFrame(tt.data(t), layers.LinkTypeRaw), true)

			require.False(t, res.Malformed())
			assert.Equal(t, tt.protocols, res.Context.Protocols())
		})
	}
}

func TestIPv4_BogusHeaderLength(t *testing.T) {
	data := serialize(t, ipv4(), gopacket.Payload("abcd"))
	data[0] = 0x44
	res := newEngine(t).DissectFrame(rawFrame(data, layers.LinkTypeIPv4), true)

	require.True(t, res.Malformed())
	var faulted *core.Layer
	for _, l := range res.Layers() {
		if l.Protocol == "ip" {
			faulted = &l
		}
	}
	require.NotNil(t, faulted)
	assert.Equal(t, core.LayerFaulted, faulted.State)
	assert.True(t, errors.Is(faulted.Err, core.ErrMalformed))
	assert.Contains(t, faulted.Err.Error(), "bogus IPv4 header length 16")
	assert.Nil(t, res.Tree.First("local"))
}

func TestIPv6(t *testing.T) {
	data := serialize(t, ethernet(layers.EthernetTypeIPv6), ipv6(), gopacket.Payload("abcd"))
	res := newEngine(t).DissectFrame(rawFrame(data, layers.LinkTypeEthernet), true)

	require.False(t, res.Malformed())
	assert.Equal(t, "frame:eth:ipv6:local", res.Context.Protocols())
	assert.Equal(t, "2001:db8::1", res.Context.Column(core.ColSource))
	assert.Equal(t, netip.MustParseAddr("2001:db8::2"), res.Context.DstAddr)
	assert.Equal(t, 4, res.Tree.First("local").Length)
}

func TestPseudoHeader(t *testing.T) {
	ctx := core.NewContext(1, time.Time{}, false)
	assert.Nil(t, PseudoHeader(ctx, 17, 8))

	ctx.SrcAddr = netip.MustParseAddr("192.0.2.1")
	ctx.DstAddr = netip.MustParseAddr("192.0.2.2")
	assert.Equal(t, []byte{192, 0, 2, 1, 192, 0, 2, 2, 0, 17, 0, 8}, PseudoHeader(ctx, 17, 8))

	ctx.SrcAddr = netip.MustParseAddr("2001:db8::1")
	ctx.DstAddr = netip.MustParseAddr("2001:db8::2")
	ph := PseudoHeader(ctx, 6, 20)
	require.Len(t, ph, 40)
	assert.Equal(t, []byte{0, 0, 0, 20, 0, 0, 0, 6}, ph[32:])
}
