package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/strix/internal/config"
	"firestige.xyz/strix/internal/render"
)

const invite = "INVITE sip:bob@biloxi.example.com SIP/2.0\r\n" +
	"Via: SIP/2.0/UDP pc33.atlanta.example.com;branch=z9hG4bK776asdhds\r\n" +
	"Max-Forwards: 70\r\n" +
	"To: Bob <sip:bob@biloxi.example.com>\r\n" +
	"From: Alice <sip:alice@atlanta.example.com>;tag=1928301774\r\n" +
	"Call-ID: a84b4c76e66710@pc33.atlanta.example.com\r\n" +
	"CSeq: 314159 INVITE\r\n" +
	"Content-Length: 0\r\n" +
	"\r\n"

func sipFrame(t *testing.T) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip4 := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{192, 0, 2, 10},
		DstIP:    net.IP{192, 0, 2, 20},
	}
	udp := &layers.UDP{SrcPort: 5060, DstPort: 5060}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip4))

	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		eth, ip4, udp, gopacket.Payload(invite)))
	return buf.Bytes()
}

// writeCapture writes n copies of the SIP frame to a pcap file.
func writeCapture(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sip.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	data := sipFrame(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return path
}

func testConfig(format string) *config.Config {
	cfg := config.Default()
	cfg.Output.Format = format
	cfg.Dissect.Workers = 2
	return cfg
}

func TestRunDissect_Summary(t *testing.T) {
	path := writeCapture(t, 3)

	var buf bytes.Buffer
	require.NoError(t, runDissect(context.Background(), testConfig(render.FormatSummary), path, 0, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	for i, l := range lines {
		want := []string{"1", "2", "3"}[i] + "\tframe:eth:ip:udp:sip\tRequest: INVITE sip:bob@biloxi.example.com"
		assert.Equal(t, want, l)
	}
}

func TestRunDissect_Count(t *testing.T) {
	path := writeCapture(t, 5)

	var buf bytes.Buffer
	require.NoError(t, runDissect(context.Background(), testConfig(render.FormatSummary), path, 2, &buf))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
}

func TestRunDissect_Filter(t *testing.T) {
	path := writeCapture(t, 3)

	tests := []struct {
		name    string
		program string
		want    int
	}{
		{name: "accept all", program: "1\n6 0 0 65535", want: 3},
		{name: "reject all", program: "1\n6 0 0 0", want: 0},
		// IPv4 UDP only
		{name: "ipv4 udp", program: "6,40 0 0 12,21 0 3 2048,48 0 0 23,21 0 1 17,6 0 0 65535,6 0 0 0", want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(render.FormatSummary)
			cfg.Dissect.Filter = tt.program

			var buf bytes.Buffer
			require.NoError(t, runDissect(context.Background(), cfg, path, 0, &buf))
			assert.Equal(t, tt.want, strings.Count(buf.String(), "\n"))
		})
	}
}

func TestRunDissect_JSON(t *testing.T) {
	path := writeCapture(t, 1)

	var buf bytes.Buffer
	require.NoError(t, runDissect(context.Background(), testConfig(render.FormatJSON), path, 0, &buf))

	var pkt render.Packet
	require.NoError(t, json.Unmarshal(buf.Bytes(), &pkt))
	_, err := uuid.Parse(pkt.RunID)
	assert.NoError(t, err)
	assert.Equal(t, 1, pkt.Frame)
	assert.Equal(t, "frame:eth:ip:udp:sip", pkt.Protocols)
	assert.False(t, pkt.Malformed)
	require.Len(t, pkt.Tree, 1)
	assert.Equal(t, "frame", pkt.Tree[0].Filter)
}

func TestRunDissect_Text(t *testing.T) {
	path := writeCapture(t, 1)

	var buf bytes.Buffer
	require.NoError(t, runDissect(context.Background(), testConfig(render.FormatText), path, 0, &buf))
	assert.True(t, strings.HasPrefix(buf.String(), "Frame 1: "), buf.String())
	assert.Contains(t, buf.String(), "Session Initiation Protocol")
}

func TestRunDissect_MissingFile(t *testing.T) {
	var buf bytes.Buffer
	err := runDissect(context.Background(), testConfig(render.FormatText), filepath.Join(t.TempDir(), "nope.pcap"), 0, &buf)
	assert.Error(t, err)
	assert.Empty(t, buf.String())
}

func TestRunProtocols(t *testing.T) {
	cfg := config.Default()
	cfg.Protocols.Disabled = []string{"isakmp"}
	reg, err := buildRegistry(cfg)
	require.NoError(t, err)

	tests := []struct {
		name   string
		fields bool
		tables bool
		want   []string
	}{
		{name: "protocols", want: []string{"FILTER", "sctp", "Stream Control Transmission Protocol", "disabled"}},
		{name: "fields", fields: true, want: []string{"sctp.srcport", "isakmp.nextpayload", "sip.method"}},
		{name: "tables", tables: true, want: []string{"udp.port", "5060", "heuristic", "wtap_encap"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, runProtocols(&buf, reg, tt.fields, tt.tables))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestRunValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yml")
	require.NoError(t, os.WriteFile(good, []byte("strix:\n  protocols:\n    disabled: [sip]\n  dissect:\n    workers: 4\n"), 0o644))
	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("strix:\n  protocols:\n    preferences:\n      udp:\n        no_such_option: true\n"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, runValidate(&buf, good))
	assert.Contains(t, buf.String(), "VALID:")
	assert.Contains(t, buf.String(), "1 disabled")
	assert.Contains(t, buf.String(), "4 worker(s)")

	err := runValidate(&buf, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID")
}

func TestExecute_Dissect(t *testing.T) {
	path := writeCapture(t, 2)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"dissect", "-r", path, "--summary", "--workers", "1"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, Execute())
	assert.Equal(t, 2, strings.Count(buf.String(), "frame:eth:ip:udp:sip"))
}
