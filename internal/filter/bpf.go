// Package filter selects frames with classic BPF programs before they are
// dissected.
//
// Programs are given in the decimal form printed by `tcpdump -ddd`: an
// instruction count followed by one "code jt jf k" quadruple per instruction.
// Lines may also be separated by commas, as in `4,40 0 0 12,21 0 1 2048,6 0 0
// 65535,6 0 0 0`.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/bpf"

	"firestige.xyz/strix/internal/core"
)

// BPF runs one program against frame bytes. It is not safe for concurrent use.
type BPF struct {
	vm   *bpf.VM
	size int
}

// Compile parses and loads a program in tcpdump -ddd form.
func Compile(program string) (*BPF, error) {
	raw, err := ParseRaw(program)
	if err != nil {
		return nil, err
	}
	return New(raw)
}

// New loads raw instructions into a VM.
func New(raw []bpf.RawInstruction) (*BPF, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty BPF program", core.ErrInvalidArgument)
	}
	insts, ok := bpf.Disassemble(raw)
	if !ok {
		return nil, fmt.Errorf("%w: BPF program has undecodable instructions", core.ErrInvalidArgument)
	}
	vm, err := bpf.NewVM(insts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load BPF program: %v", core.ErrInvalidArgument, err)
	}
	return &BPF{vm: vm, size: len(insts)}, nil
}

// ParseRaw parses the tcpdump -ddd form into raw instructions.
func ParseRaw(program string) ([]bpf.RawInstruction, error) {
	lines := strings.FieldsFunc(program, func(r rune) bool { return r == '\n' || r == ',' || r == ';' })
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	lines = compact(lines)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty BPF program", core.ErrInvalidArgument)
	}

	count, err := strconv.Atoi(lines[0])
	if err != nil {
		return nil, fmt.Errorf("%w: BPF program must start with an instruction count, got %q",
			core.ErrInvalidArgument, lines[0])
	}
	if count != len(lines)-1 {
		return nil, fmt.Errorf("%w: BPF program declares %d instructions, has %d",
			core.ErrInvalidArgument, count, len(lines)-1)
	}

	raw := make([]bpf.RawInstruction, 0, count)
	for n, line := range lines[1:] {
		f := strings.Fields(line)
		if len(f) != 4 {
			return nil, fmt.Errorf("%w: BPF instruction %d: want \"code jt jf k\", got %q",
				core.ErrInvalidArgument, n, line)
		}
		var v [4]uint64
		for i, s := range f {
			bits := 32
			switch i {
			case 0:
				bits = 16
			case 1, 2:
				bits = 8
			}
			if v[i], err = strconv.ParseUint(s, 10, bits); err != nil {
				return nil, fmt.Errorf("%w: BPF instruction %d: %v", core.ErrInvalidArgument, n, err)
			}
		}
		raw = append(raw, bpf.RawInstruction{Op: uint16(v[0]), Jt: uint8(v[1]), Jf: uint8(v[2]), K: uint32(v[3])})
	}
	return raw, nil
}

func compact(lines []string) []string {
	out := lines[:0]
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Match reports whether the program accepts data. Programs that fail at run
// time reject.
func (f *BPF) Match(data []byte) bool {
	n, err := f.vm.Run(data)
	return err == nil && n > 0
}

// Len is the number of instructions loaded.
func (f *BPF) Len() int { return f.size }
