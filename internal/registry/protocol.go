package registry

import (
	"fmt"

	"firestige.xyz/strix/internal/core"
)

// Protocol is the identity of a dissectable protocol.
type Protocol struct {
	Filter      string // "sctp"; pushed onto the protocol stack
	Short       string // "SCTP"; protocol column
	Description string // "Stream Control Transmission Protocol"

	spec *core.FieldSpec
}

// NewProtocol declares a protocol. Dissector packages keep the result in a package var.
func NewProtocol(filter, short, description string) *Protocol {
	return &Protocol{
		Filter:      filter,
		Short:       short,
		Description: description,
		spec:        &core.FieldSpec{Name: description, Filter: filter, Kind: core.KindProtocol},
	}
}

// Spec is the field spec of the protocol's root tree item.
func (p *Protocol) Spec() *core.FieldSpec { return p.spec }

func (p *Protocol) String() string { return p.Filter }

// Handle binds a dissector to the protocol it decodes.
type Handle struct {
	Protocol  *Protocol
	Dissector Dissector
}

func (h Handle) valid() bool { return h.Protocol != nil && h.Dissector != nil }

// HeuristicHandle binds a heuristic dissector to its protocol.
type HeuristicHandle struct {
	Protocol  *Protocol
	Heuristic Heuristic
}

// ProgrammerError reports invalid registry use. It is the only fault the layer
// boundary does not contain.
type ProgrammerError struct {
	Op  string
	Msg string
	Err error // sentinel, may be nil
}

func (e *ProgrammerError) Error() string { return fmt.Sprintf("registry: %s: %s", e.Op, e.Msg) }

func (e *ProgrammerError) Unwrap() error { return e.Err }

func programmerError(op string, sentinel error, format string, args ...any) *ProgrammerError {
	return &ProgrammerError{Op: op, Msg: fmt.Sprintf(format, args...), Err: sentinel}
}
