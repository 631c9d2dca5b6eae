// Package file reads frames from pcap and pcapng capture files.
package file

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/strix/internal/engine"
)

// packetReader is the part of pcapgo.Reader and pcapgo.NgReader a Source uses.
type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// pcapng section header block type; the first four bytes of every pcapng file.
var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// Source yields the frames of one capture file in file order.
type Source struct {
	path   string
	f      *os.File
	reader packetReader
	count  int
	last   time.Time
}

// Open opens a capture file, detecting pcap or pcapng from its magic number.
func Open(path string) (*Source, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}
	s, err := newSource(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.f = f
	return s, nil
}

// NewReader reads frames from r, which must hold a pcap or pcapng stream.
func NewReader(r io.Reader) (*Source, error) {
	return newSource("", r)
}

func newSource(path string, r io.Reader) (*Source, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}
	var pr packetReader
	if string(magic) == string(ngMagic) {
		pr, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		pr, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse capture header: %w", err)
	}
	return &Source{path: path, reader: pr}, nil
}

// LinkType is the capture's link type, used as the frame encapsulation key.
func (s *Source) LinkType() layers.LinkType {
	return s.reader.LinkType()
}

// Next returns the next frame, numbered from 1. It returns io.EOF after the
// last frame.
func (s *Source) Next() (engine.Frame, error) {
	data, ci, err := s.reader.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return engine.Frame{}, io.EOF
		}
		return engine.Frame{}, fmt.Errorf("failed to read packet %d: %w", s.count+1, err)
	}
	s.count++
	frame := engine.Frame{
		Number:      s.count,
		Timestamp:   ci.Timestamp,
		Data:        data,
		ReportedLen: ci.Length,
		Encap:       int(s.reader.LinkType()),
	}
	if ci.InterfaceIndex > 0 {
		if ng, ok := s.reader.(*pcapgo.NgReader); ok {
			if intf, err := ng.Interface(ci.InterfaceIndex); err == nil {
				frame.Encap = int(intf.LinkType)
			}
		}
	}
	if s.count > 1 {
		frame.Delta = ci.Timestamp.Sub(s.last)
	}
	s.last = ci.Timestamp
	return frame, nil
}

// Frames reads every remaining frame, stopping after limit frames when limit is
// positive.
func (s *Source) Frames(limit int) ([]engine.Frame, error) {
	var out []engine.Frame
	for limit <= 0 || len(out) < limit {
		f, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *Source) Close() error {
	if s.f != nil {
		err := s.f.Close()
		s.f = nil
		return err
	}
	return nil
}
