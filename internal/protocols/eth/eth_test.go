package eth

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/engine"
	"firestige.xyz/strix/internal/log"
	"firestige.xyz/strix/internal/registry"
)

// Local experimental EtherType.
const etherTypeLocal = 0x88b5

var protoLocal = registry.NewProtocol("local", "LOCAL", "Local Experimental Payload")

func newEngine(t testing.TB) *engine.Engine {
	t.Helper()
	b := registry.NewBuilder(log.Discard())
	engine.Register(b)
	Register(b)
	b.RegisterDissector(TableEtherType, etherTypeLocal, registry.Handle{
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

func frame(t testing.TB, ls ...gopacket.SerializableLayer) engine.Frame {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, ls...))
	return engine.Frame{Number: 1, Data: buf.Bytes(), Encap: int(layers.LinkTypeEthernet)}
}

func ethernet(etype layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: etype,
	}
}

func TestEthernet(t *testing.T) {
	res := newEngine(t).DissectFrame(frame(t, ethernet(etherTypeLocal), gopacket.Payload("payload")), true)

	require.False(t, res.Malformed())
	assert.Equal(t, "frame:eth:local", res.Context.Protocols())
	assert.Equal(t, "00:11:22:33:44:55", res.Context.Column(core.ColSource))
	assert.Equal(t, "66:77:88:99:aa:bb", res.Context.Column(core.ColDestination))
	assert.Equal(t, []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, res.Tree.First("eth.src").Value.Bytes())
	assert.Equal(t, uint64(etherTypeLocal), res.Tree.First("eth.type").Value.Uint())
	assert.Nil(t, res.Tree.First("eth.len"))
}

func TestVLAN(t *testing.T) {
	tests := []struct {
		name   string
		layers []gopacket.SerializableLayer
		stack  []string
		ids    []uint64
	}{
		{
			name: "802.1Q",
			layers: []gopacket.SerializableLayer{
				ethernet(layers.EthernetTypeDot1Q),
				&layers.Dot1Q{Priority: 5, VLANIdentifier: 100, Type: etherTypeLocal},
			},
			stack: []string{"frame", "eth", "vlan", "local"},
			ids:   []uint64{100},
		},
		{
			name: "QinQ",
			layers: []gopacket.SerializableLayer{
				ethernet(layers.EthernetTypeQinQ),
				&layers.Dot1Q{VLANIdentifier: 100, Type: layers.EthernetTypeDot1Q},
				&layers.Dot1Q{VLANIdentifier: 200, Type: etherTypeLocal},
			},
			stack: []string{"frame", "eth", "vlan", "vlan", "local"},
			ids:   []uint64{100, 200},
		},
	}
	e := newEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ls := append(tt.layers, gopacket.Payload("payload"))
			res := e.DissectFrame(frame(t, ls...), true)

			require.False(t, res.Malformed())
			if diff := cmp.Diff(tt.stack, res.Context.ProtocolStack()); diff != "" {
				t.Errorf("protocol stack mismatch (-want +got):\n%s", diff)
			}
			var ids []uint64
			for _, f := range res.Tree.Find("vlan.id") {
				ids = append(ids, f.Value.Uint())
			}
			assert.Equal(t, tt.ids, ids)
		})
	}

	t.Run("priority and DEI", func(t *testing.T) {
		res := e.DissectFrame(frame(t,
			ethernet(layers.EthernetTypeDot1Q),
			&layers.Dot1Q{Priority: 5, DropEligible: true, VLANIdentifier: 7, Type: etherTypeLocal},
			gopacket.Payload("payload")), true)

		assert.Equal(t, uint64(5), res.Tree.First("vlan.priority").Value.Uint())
		assert.True(t, res.Tree.First("vlan.dei").Value.Bool())
		assert.Equal(t, uint64(etherTypeLocal), res.Tree.First("vlan.etype").Value.Uint())
	})
}

func TestEthernet_IEEE8023Length(t *testing.T) {
	data := make([]byte, headerLen+6)
	binary.BigEndian.PutUint16(data[12:], 6)
	res := newEngine(t).DissectFrame(engine.Frame{Number: 1, Data: data, Encap: int(layers.LinkTypeEthernet)}, true)

	require.False(t, res.Malformed())
	assert.Equal(t, "frame:eth:data", res.Context.Protocols())
	assert.Equal(t, uint64(6), res.Tree.First("eth.len").Value.Uint())
	assert.Nil(t, res.Tree.First("eth.type"))
}

func TestEthernet_Short(t *testing.T) {
	res := newEngine(t).DissectFrame(engine.Frame{Number: 1, Data: make([]byte, 10), Encap: int(layers.LinkTypeEthernet)}, true)

	require.True(t, res.Malformed())
	var states []string
	for _, l := range res.Layers() {
		states = append(states, l.Protocol+"="+l.State.String())
	}
	assert.Contains(t, states, "eth=faulted")
}
