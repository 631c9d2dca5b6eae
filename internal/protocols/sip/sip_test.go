package sip

import (
	"fmt"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/engine"
	"firestige.xyz/strix/internal/log"
	"firestige.xyz/strix/internal/protocols/ip"
	"firestige.xyz/strix/internal/protocols/tcp"
	"firestige.xyz/strix/internal/protocols/udp"
	"firestige.xyz/strix/internal/registry"
)

const invite = "INVITE sip:bob@biloxi.example.com SIP/2.0\r\n" +
	"Via: SIP/2.0/UDP pc33.atlanta.example.com;branch=z9hG4bK776asdhds\r\n" +
	"Max-Forwards: 70\r\n" +
	"To: Bob <sip:bob@biloxi.example.com>\r\n" +
	"From: Alice <sip:alice@atlanta.example.com>;tag=1928301774\r\n" +
	"Call-ID: a84b4c76e66710@pc33.atlanta.example.com\r\n" +
	"CSeq: 314159 INVITE\r\n" +
	"Contact: <sip:alice@pc33.atlanta.example.com>\r\n" +
	"Content-Type: application/sdp\r\n" +
	"Content-Length: 5\r\n" +
	"\r\n" +
	"v=0\r\n"

const okResponse = "SIP/2.0 200 OK\r\n" +
	"Via: SIP/2.0/UDP pc33.atlanta.example.com;branch=z9hG4bK776asdhds\r\n" +
	"To: Bob <sip:bob@biloxi.example.com>;tag=a6c85cf\r\n" +
	"From: Alice <sip:alice@atlanta.example.com>;tag=1928301774\r\n" +
	"Call-ID: a84b4c76e66710@pc33.atlanta.example.com\r\n" +
	"CSeq: 314159 INVITE\r\n" +
	"Content-Length: 0\r\n" +
	"\r\n"

func newEngine(t testing.TB) *engine.Engine {
	t.Helper()
	b := registry.NewBuilder(log.Discard())
	engine.Register(b)
	ip.Register(b)
	udp.Register(b, udp.DefaultPreferences())
	tcp.Register(b, tcp.DefaultPreferences())
	Register(b)
	e, err := engine.New(b.Build(), engine.WithLogger(log.Discard()))
	require.NoError(t, err)
	return e
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IP{192, 0, 2, 10},
		DstIP:    net.IP{192, 0, 2, 20},
	}
}

func udpFrame(t testing.TB, src, dst layers.UDPPort, payload string) engine.Frame {
	t.Helper()
	ip4 := ipv4(layers.IPProtocolUDP)
	u := &layers.UDP{SrcPort: src, DstPort: dst}
	require.NoError(t, u.SetNetworkLayerForChecksum(ip4))
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		ip4, u, gopacket.Payload(payload)))
	return engine.Frame{Number: 1, Data: buf.Bytes(), Encap: int(layers.LinkTypeIPv4)}
}

func tcpFrame(t testing.TB, src, dst layers.TCPPort, payload string) engine.Frame {
	t.Helper()
	ip4 := ipv4(layers.IPProtocolTCP)
	seg := &layers.TCP{SrcPort: src, DstPort: dst, Seq: 1, PSH: true, ACK: true, Window: 4096}
	require.NoError(t, seg.SetNetworkLayerForChecksum(ip4))
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		ip4, seg, gopacket.Payload(payload)))
	return engine.Frame{Number: 1, Data: buf.Bytes(), Encap: int(layers.LinkTypeIPv4)}
}

func headerLines(res *engine.Result) []string {
	var out []string
	for _, f := range res.Tree.Find("sip.header") {
		out = append(out, f.Label)
	}
	return out
}

func TestSIP_Request(t *testing.T) {
	res := newEngine(t).DissectFrame(udpFrame(t, 5060, Port, invite), true)

	require.False(t, res.Malformed())
	assert.Equal(t, "frame:ip:udp:sip", res.Context.Protocols())
	assert.Equal(t, "Request: INVITE sip:bob@biloxi.example.com", res.Context.Column(core.ColInfo))

	root := res.Tree.First("sip")
	require.NotNil(t, root)
	assert.Equal(t, "Session Initiation Protocol (Call-ID: a84b4c76e66710@pc33.atlanta.example.com)", root.Label)
	assert.Equal(t, len(invite), root.Length)

	method := res.Tree.First("sip.method")
	require.NotNil(t, method)
	assert.Equal(t, "INVITE", method.Value.Text())
	assert.Equal(t, 6, method.Length)

	uri := res.Tree.First("sip.r_uri")
	require.NotNil(t, uri)
	assert.Equal(t, "sip:bob@biloxi.example.com", uri.Value.Text())
	assert.Equal(t, root.Start+7, uri.Start)

	lines := headerLines(res)
	require.Len(t, lines, 9)
	assert.Equal(t, "Max-Forwards: 70", lines[1])
	assert.Equal(t, "Content-Length: 5", lines[8])

	callID := res.Tree.First("sip.call_id")
	require.NotNil(t, callID)
	assert.True(t, callID.Generated)
	assert.Equal(t, "a84b4c76e66710@pc33.atlanta.example.com", callID.Value.Text())
	assert.Equal(t, "314159 INVITE", res.Tree.First("sip.cseq").Value.Text())

	body := res.Tree.First("sip.msg_body")
	require.NotNil(t, body)
	assert.Equal(t, "Message Body (5 bytes)", body.Label)
	assert.Equal(t, []byte("v=0\r\n"), body.Value.Bytes())
	assert.Equal(t, uint64(5), res.Tree.First("sip.msg_body_len").Value.Uint())
}

func TestSIP_Response(t *testing.T) {
	res := newEngine(t).DissectFrame(udpFrame(t, Port, 5060, okResponse), true)

	require.False(t, res.Malformed())
	assert.Equal(t, "Status: 200 OK", res.Context.Column(core.ColInfo))

	code := res.Tree.First("sip.status_code")
	require.NotNil(t, code)
	assert.Equal(t, uint64(200), code.Value.Uint())
	assert.Equal(t, 3, code.Length)
	assert.Equal(t, "OK", res.Tree.First("sip.reason_phrase").Value.Text())
	assert.Nil(t, res.Tree.First("sip.request_line"))
	assert.Nil(t, res.Tree.First("sip.msg_body"))
	assert.Len(t, headerLines(res), 6)
}

func TestSIP_Transports(t *testing.T) {
	e := newEngine(t)
	tests := []struct {
		name  string
		frame func(t *testing.T) engine.Frame
		want  string
	}{
		{
			name:  "udp heuristic",
			frame: func(t *testing.T) engine.Frame { return udpFrame(t, 40000, 40002, invite) },
			want:  "frame:ip:udp:sip",
		},
		{
			name:  "tcp port",
			frame: func(t *testing.T) engine.Frame { return tcpFrame(t, 49152, Port, okResponse) },
			want:  "frame:ip:tcp:sip",
		},
		{
			name:  "tcp heuristic",
			frame: func(t *testing.T) engine.Frame { return tcpFrame(t, 49152, 8080, okResponse) },
			want:  "frame:ip:tcp:sip",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.DissectFrame(tt.frame(t), true)

			require.False(t, res.Malformed())
			assert.Equal(t, tt.want, res.Context.Protocols())
			require.NotNil(t, res.Tree.First("sip.call_id"))
		})
	}
}

func TestSIP_RejectsOtherTraffic(t *testing.T) {
	res := newEngine(t).DissectFrame(udpFrame(t, 40000, Port, "GET / HTTP/1.1\r\n\r\n"), true)

	require.False(t, res.Malformed())
	assert.Nil(t, res.Tree.First("sip"))
	assert.Equal(t, "frame:ip:udp:data", res.Context.Protocols())
}

func TestSIP_MalformedStartLine(t *testing.T) {
	msg := "INVITE SIP/2.0\r\nCall-ID: x\r\n\r\n"
	res := newEngine(t).DissectFrame(udpFrame(t, 5060, Port, msg), true)

	require.True(t, res.Malformed())
	root := res.Tree.First("sip")
	require.NotNil(t, root)
	m := res.Tree.First("_ws.malformed")
	require.NotNil(t, m)
	assert.Same(t, root, m.Parent())
	require.NotEmpty(t, res.Context.Warnings)
	assert.Equal(t, core.SeverityError, res.Context.Warnings[0].Severity)
}

func TestSIP_ConcurrentFrames(t *testing.T) {
	e := newEngine(t)
	frames := []engine.Frame{
		udpFrame(t, 5060, Port, invite),
		udpFrame(t, Port, 5060, okResponse),
	}

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		i := i
		frame := frames[i%len(frames)]
		g.Go(func() error {
			res := e.DissectFrame(frame, true)
			if res.Malformed() || res.Tree.First("sip.call_id") == nil {
				return fmt.Errorf("frame %d: sip not dissected: %s", i, res.Context.Protocols())
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
