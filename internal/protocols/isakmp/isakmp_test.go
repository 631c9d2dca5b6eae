package isakmp

import (
	"encoding/binary"
	"net"
	"strings"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/core/tlv"
	"firestige.xyz/strix/internal/engine"
	"firestige.xyz/strix/internal/log"
	"firestige.xyz/strix/internal/protocols/ip"
	"firestige.xyz/strix/internal/protocols/udp"
	"firestige.xyz/strix/internal/registry"
)

func newEngine(t testing.TB) *engine.Engine {
	t.Helper()
	b := registry.NewBuilder(log.Discard())
	engine.Register(b)
	ip.Register(b)
	udp.Register(b, udp.DefaultPreferences())
	Register(b)
	e, err := engine.New(b.Build(), engine.WithLogger(log.Discard()))
	require.NoError(t, err)
	return e
}

func udpFrame(t testing.TB, port layers.UDPPort, payload []byte) engine.Frame {
	t.Helper()
	ip4 := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{198, 51, 100, 1},
		DstIP:    net.IP{198, 51, 100, 2},
	}
	u := &layers.UDP{SrcPort: port, DstPort: port}
	require.NoError(t, u.SetNetworkLayerForChecksum(ip4))
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		ip4, u, gopacket.Payload(payload)))
	return engine.Frame{Number: 1, Data: buf.Bytes(), Encap: int(layers.LinkTypeIPv4)}
}

func encodePayload(t testing.TB, next uint64, value ...[]byte) []byte {
	t.Helper()
	var v []byte
	for _, p := range value {
		v = append(v, p...)
	}
	b, err := tlv.Encode(payloadFormat, 0, next, v)
	require.NoError(t, err)
	return b
}

func header(first uint64, exch, flags byte, body []byte) []byte {
	h := make([]byte, headerLen, headerLen+len(body))
	copy(h[0:], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	h[16] = byte(first)
	h[17] = 0x10
	h[18] = exch
	h[19] = flags
	binary.BigEndian.PutUint32(h[24:], uint32(headerLen+len(body)))
	return append(h, body...)
}

// mainModeSA is an SA payload with one proposal carrying one transform.
func mainModeSA(t testing.TB) []byte {
	attrs := []byte{
		0x80, 0x01, 0x00, 0x07, // TV Encryption-Algorithm
		0x80, 0x0e, 0x00, 0x80, // TV Key-Length
		0x00, 0x0c, 0x00, 0x04, 0x00, 0x01, 0x51, 0x80, // TLV Life-Duration
	}
	transform := encodePayload(t, payloadNone, []byte{1, 1, 0, 0}, attrs)
	proposal := encodePayload(t, payloadNone, []byte{1, 1, 0, 1}, transform)
	return encodePayload(t, payloadNone, []byte{0, 0, 0, 1, 0, 0, 0, 1}, proposal)
}

func payloadItems(res *engine.Result) []*core.Field {
	var out []*core.Field
	res.Tree.Walk(func(f *core.Field, _ int) bool {
		if f.Spec == nil && strings.HasPrefix(f.Label, "Payload: ") {
			out = append(out, f)
		}
		return true
	})
	return out
}

func TestISAKMP_NestedChain(t *testing.T) {
	res := newEngine(t).DissectFrame(udpFrame(t, Port, header(payloadSA, 2, 0, mainModeSA(t))), true)

	require.False(t, res.Malformed())
	assert.Equal(t, "frame:ip:udp:isakmp", res.Context.Protocols())
	assert.Equal(t, "Identity Protection (Main Mode) (2)", res.Context.Column(core.ColInfo))

	items := payloadItems(res)
	require.Len(t, items, 3)
	sa, prop, trans := items[0], items[1], items[2]
	assert.Equal(t, "Payload: Security Association", sa.Label)
	assert.True(t, strings.HasPrefix(prop.Label, "Payload: Proposal (#1) ISAKMP, 1 transform"))
	assert.Equal(t, "Payload: Transform (#1)", trans.Label)

	assert.Equal(t, 44, sa.Length)
	assert.Equal(t, 32, prop.Length)
	assert.Equal(t, 24, trans.Length)
	assert.Same(t, res.Tree.First("isakmp"), sa.Parent())
	assert.Same(t, sa, prop.Parent())
	assert.Same(t, prop, trans.Parent())

	assert.Len(t, res.Tree.Find("isakmp.tf.attr.type"), 3)
	values := res.Tree.Find("isakmp.tf.attr.value")
	require.Len(t, values, 3)
	assert.Equal(t, uint64(7), values[0].Value.Uint())
	assert.Equal(t, uint64(128), values[1].Value.Uint())
	assert.Equal(t, uint64(86400), values[2].Value.Uint())
	assert.Empty(t, res.Context.Warnings)
}

func TestISAKMP_PayloadSequence(t *testing.T) {
	id := []byte{idIPv4Addr, 17, 0x01, 0xf4, 10, 1, 2, 3}
	notify := []byte{0, 0, 0, 1, 3, 0, 0x60, 0x02} // INITIAL-CONTACT
	var body []byte
	body = append(body, encodePayload(t, payloadVID, []byte{1, 2, 3, 4})...) // KE
	body = append(body, encodePayload(t, payloadID, []byte{0xaa, 0xbb})...)  // VID
	body = append(body, encodePayload(t, payloadN, id)...)                   // ID
	body = append(body, encodePayload(t, 99, notify)...)                     // N
	body = append(body, encodePayload(t, payloadNone, []byte{5, 5, 5})...)   // unknown type 99

	res := newEngine(t).DissectFrame(udpFrame(t, Port, header(payloadKE, 4, 0, body)), true)

	require.False(t, res.Malformed())
	items := payloadItems(res)
	require.Len(t, items, 5)
	assert.Equal(t, "Payload: Key Exchange", items[0].Label)
	assert.Equal(t, "Payload: Vendor ID", items[1].Label)
	assert.Equal(t, "Payload: Identification (10.1.2.3)", items[2].Label)
	assert.Equal(t, "Payload: Notification (INITIAL-CONTACT (24578))", items[3].Label)
	assert.Equal(t, "Payload: Unknown (99)", items[4].Label)
	assert.Equal(t, "3-byte value", res.Tree.First("isakmp.payloaddata").Label)
	assert.Equal(t, uint64(500), res.Tree.First("isakmp.id.port").Value.Uint())
}

func TestISAKMP_Encrypted(t *testing.T) {
	res := newEngine(t).DissectFrame(udpFrame(t, Port, header(payloadHash, 32, flagEncrypt, make([]byte, 24))), true)

	require.False(t, res.Malformed())
	enc := res.Tree.First("isakmp.enc_data")
	require.NotNil(t, enc)
	assert.Equal(t, 24, enc.Length)
	assert.Empty(t, payloadItems(res))
	assert.True(t, strings.HasSuffix(res.Context.Column(core.ColInfo), "(encrypted)"))
}

func TestISAKMP_NATTraversal(t *testing.T) {
	e := newEngine(t)

	t.Run("non-ESP marker", func(t *testing.T) {
		msg := append([]byte{0, 0, 0, 0}, header(payloadSA, 2, 0, mainModeSA(t))...)
		res := e.DissectFrame(udpFrame(t, NATTPort, msg), true)

		require.False(t, res.Malformed())
		require.NotNil(t, res.Tree.First("udpencap.non_esp_marker"))
		assert.Len(t, payloadItems(res), 3)
	})

	t.Run("ESP", func(t *testing.T) {
		res := e.DissectFrame(udpFrame(t, NATTPort, []byte{0, 0, 1, 0, 0, 0, 0, 1, 9, 9}), true)

		require.False(t, res.Malformed())
		assert.Nil(t, res.Tree.First("isakmp"))
		assert.Equal(t, "frame:ip:udp:data", res.Context.Protocols())
	})
}

func TestISAKMP_Faults(t *testing.T) {
	tests := []struct {
		name string
		msg  func(t *testing.T) []byte
		want string
	}{
		{
			name: "length below header",
			msg: func(t *testing.T) []byte {
				m := header(payloadNone, 2, 0, nil)
				binary.BigEndian.PutUint32(m[24:], 20)
				return m
			},
			want: "less than the 28-byte header",
		},
		{
			name: "length beyond datagram",
			msg: func(t *testing.T) []byte {
				m := header(payloadNone, 2, 0, nil)
				binary.BigEndian.PutUint32(m[24:], 64)
				return m
			},
			want: "exceeds the 28 bytes available",
		},
		{
			name: "payload overruns message",
			msg: func(t *testing.T) []byte {
				p := encodePayload(t, payloadNone, []byte{1, 2, 3, 4})
				binary.BigEndian.PutUint16(p[2:], 40)
				return header(payloadVID, 2, 0, p)
			},
			want: "record truncated",
		},
		{
			name: "payload length below header",
			msg: func(t *testing.T) []byte {
				p := encodePayload(t, payloadNone, nil)
				binary.BigEndian.PutUint16(p[2:], 1)
				return header(payloadVID, 2, 0, p)
			},
			want: "record too short",
		},
		{
			name: "attribute overruns transform",
			msg: func(t *testing.T) []byte {
				transform := encodePayload(t, payloadNone, []byte{1, 1, 0, 0}, []byte{0x00, 0x0c, 0x00, 0x09, 1, 2})
				proposal := encodePayload(t, payloadNone, []byte{1, 1, 0, 1}, transform)
				sa := encodePayload(t, payloadNone, []byte{0, 0, 0, 1, 0, 0, 0, 1}, proposal)
				return header(payloadSA, 2, 0, sa)
			},
			want: "attribute Life-Duration",
		},
	}
	e := newEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.DissectFrame(udpFrame(t, Port, tt.msg(t)), true)

			require.True(t, res.Malformed())
			m := res.Tree.First("_ws.malformed")
			require.NotNil(t, m)
			assert.Contains(t, m.Label, tt.want)
			assert.Equal(t, core.LayerFaulted, res.Layers()[len(res.Layers())-1].State)
		})
	}
}

func TestISAKMP_UnterminatedChain(t *testing.T) {
	res := newEngine(t).DissectFrame(udpFrame(t, Port, header(payloadVID, 2, 0, encodePayload(t, payloadNonce, []byte{1}))), true)

	require.False(t, res.Malformed())
	require.Len(t, res.Context.Warnings, 1)
	assert.Contains(t, res.Context.Warnings[0].Message, "Nonce")
}
