package file

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func packets() [][]byte {
	return [][]byte{
		{0x45, 0x00, 0x00, 0x14},
		{0x45, 0x00, 0x00, 0x18, 0xaa, 0xbb},
	}
}

func writePcap(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeRaw))
	for i, p := range packets() {
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * 250 * time.Millisecond),
			CaptureLength: len(p),
			Length:        len(p) + 100,
		}
		require.NoError(t, w.WritePacket(ci, p))
	}
	return &buf
}

func TestSource_Pcap(t *testing.T) {
	s, err := NewReader(writePcap(t))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, layers.LinkTypeRaw, s.LinkType())

	first, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, first.Number)
	assert.Equal(t, packets()[0], first.Data)
	assert.Equal(t, 104, first.ReportedLen)
	assert.Equal(t, int(layers.LinkTypeRaw), first.Encap)
	assert.True(t, base.Equal(first.Timestamp))
	assert.Zero(t, first.Delta)

	second, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, second.Number)
	assert.Equal(t, 250*time.Millisecond, second.Delta)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSource_Pcapng(t *testing.T) {
	var buf bytes.Buffer
	w, err := pcapgo.NewNgWriter(&buf, layers.LinkTypeEthernet)
	require.NoError(t, err)
	for i, p := range packets() {
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			CaptureLength: len(p),
			Length:        len(p),
		}
		require.NoError(t, w.WritePacket(ci, p))
	}
	require.NoError(t, w.Flush())

	s, err := NewReader(&buf)
	require.NoError(t, err)
	frames, err := s.Frames(0)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, int(layers.LinkTypeEthernet), frames[1].Encap)
	assert.Equal(t, time.Second, frames[1].Delta)
}

func TestSource_Open(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two.pcap")
	require.NoError(t, os.WriteFile(path, writePcap(t).Bytes(), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	frames, err := s.Frames(1)
	require.NoError(t, err)
	assert.Len(t, frames, 1)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = Open(filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)
	_, err = Open("")
	assert.Error(t, err)
}

func TestSource_NotACapture(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("definitely not a capture file")))
	assert.Error(t, err)
}
