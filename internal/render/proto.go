package render

import (
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"

	"firestige.xyz/strix/internal/engine"
)

type protoRenderer struct {
	opts Options
}

// Render writes the record as a size-delimited google.protobuf.Struct, the
// framing read by protodelim.UnmarshalFrom.
func (r *protoRenderer) Render(w io.Writer, res *engine.Result) error {
	st, err := Build(res, r.opts).Struct()
	if err != nil {
		return err
	}
	if _, err := protodelim.MarshalTo(w, st); err != nil {
		return fmt.Errorf("protobuf encode failed: %w", err)
	}
	return nil
}

// Struct converts the record into a protobuf Struct with the same keys as
// the JSON encoding.
func (p *Packet) Struct() (*structpb.Struct, error) {
	m := map[string]any{
		"frame":     p.Frame,
		"protocols": p.Protocols,
		"info":      p.Info,
		"malformed": p.Malformed,
	}
	if p.RunID != "" {
		m["run_id"] = p.RunID
	}
	if len(p.Warnings) > 0 {
		ws := make([]any, len(p.Warnings))
		for i, w := range p.Warnings {
			ws[i] = map[string]any{
				"severity": w.Severity,
				"group":    w.Group,
				"protocol": w.Protocol,
				"message":  w.Message,
			}
		}
		m["warnings"] = ws
	}
	if len(p.Tree) > 0 {
		m["tree"] = nodeList(p.Tree)
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", p.Frame, err)
	}
	return st, nil
}

func nodeList(nodes []*Node) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		m := map[string]any{
			"label": n.Label,
			"start": n.Start,
			"len":   n.Length,
		}
		if n.Filter != "" {
			m["filter"] = n.Filter
		}
		if n.Value != nil {
			m["value"] = n.Value
		}
		if n.Generated {
			m["generated"] = true
		}
		if n.Hidden {
			m["hidden"] = true
		}
		if n.State != "" {
			m["state"] = n.State
		}
		if len(n.Children) > 0 {
			m["children"] = nodeList(n.Children)
		}
		out[i] = m
	}
	return out
}
