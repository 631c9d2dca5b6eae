// Package render writes dissection results as text trees, JSON, YAML,
// size-delimited protobuf or one-line summaries.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/engine"
)

const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatSummary = "summary"
	FormatProto   = "protobuf"
)

// Formats lists the accepted output formats.
var Formats = []string{FormatText, FormatJSON, FormatYAML, FormatSummary, FormatProto}

// Renderer writes one result at a time.
type Renderer interface {
	Render(w io.Writer, res *engine.Result) error
}

type Options struct {
	// RunID is stamped on every structured record.
	RunID string
	// Hidden includes hidden fields in the output.
	Hidden bool
}

// New returns the renderer for format.
func New(format string, opts Options) (Renderer, error) {
	switch format {
	case FormatText, "":
		return &textRenderer{opts: opts}, nil
	case FormatJSON:
		return &jsonRenderer{opts: opts}, nil
	case FormatYAML:
		return &yamlRenderer{opts: opts}, nil
	case FormatSummary:
		return summaryRenderer{}, nil
	case FormatProto:
		return &protoRenderer{opts: opts}, nil
	}
	return nil, fmt.Errorf("%w: unknown output format %q, must be one of %s",
		core.ErrInvalidArgument, format, strings.Join(Formats, ", "))
}

// Node is the encoder view of one field.
type Node struct {
	Filter    string  `json:"filter,omitempty" yaml:"filter,omitempty"`
	Label     string  `json:"label" yaml:"label"`
	Start     int     `json:"start" yaml:"start"`
	Length    int     `json:"len" yaml:"len"`
	Value     any     `json:"value,omitempty" yaml:"value,omitempty"`
	Generated bool    `json:"generated,omitempty" yaml:"generated,omitempty"`
	Hidden    bool    `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	State     string  `json:"state,omitempty" yaml:"state,omitempty"`
	Children  []*Node `json:"children,omitempty" yaml:"children,omitempty"`
}

// Warning is the encoder view of one expert warning.
type Warning struct {
	Severity string `json:"severity" yaml:"severity"`
	Group    string `json:"group" yaml:"group"`
	Protocol string `json:"protocol" yaml:"protocol"`
	Message  string `json:"message" yaml:"message"`
}

// Packet is the structured record emitted per frame.
type Packet struct {
	RunID     string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Frame     int       `json:"frame" yaml:"frame"`
	Protocols string    `json:"protocols" yaml:"protocols"`
	Info      string    `json:"info" yaml:"info"`
	Malformed bool      `json:"malformed" yaml:"malformed"`
	Warnings  []Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Tree      []*Node   `json:"tree,omitempty" yaml:"tree,omitempty"`
}

// Build converts res into its structured record.
func Build(res *engine.Result, opts Options) *Packet {
	p := &Packet{
		RunID:     opts.RunID,
		Frame:     res.Frame.Number,
		Protocols: res.Context.Protocols(),
		Info:      res.Context.Column(core.ColInfo),
		Malformed: res.Malformed(),
	}
	for _, w := range res.Context.Warnings {
		p.Warnings = append(p.Warnings, Warning{
			Severity: w.Severity.String(),
			Group:    w.Group,
			Protocol: w.Protocol,
			Message:  w.Message,
		})
	}
	if res.Tree != nil {
		for _, f := range res.Tree.Root().Children {
			if n := node(f, opts); n != nil {
				p.Tree = append(p.Tree, n)
			}
		}
	}
	return p
}

func node(f *core.Field, opts Options) *Node {
	if f.Hidden && !opts.Hidden {
		return nil
	}
	n := &Node{
		Filter:    f.Filter(),
		Label:     f.Label,
		Start:     f.Start,
		Length:    f.Length,
		Value:     f.Value.Interface(),
		Generated: f.Generated,
		Hidden:    f.Hidden,
	}
	if f.Spec != nil && f.Spec.Kind == core.KindProtocol {
		n.State = f.State.String()
	}
	for _, c := range f.Children {
		if cn := node(c, opts); cn != nil {
			n.Children = append(n.Children, cn)
		}
	}
	return n
}

type jsonRenderer struct {
	opts Options
}

// Render writes one JSON object per line.
func (r *jsonRenderer) Render(w io.Writer, res *engine.Result) error {
	if err := json.NewEncoder(w).Encode(Build(res, r.opts)); err != nil {
		return fmt.Errorf("json encode failed: %w", err)
	}
	return nil
}

type yamlRenderer struct {
	opts Options
}

// Render writes one YAML document per result.
func (r *yamlRenderer) Render(w io.Writer, res *engine.Result) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Build(res, r.opts)); err != nil {
		return fmt.Errorf("yaml encode failed: %w", err)
	}
	return enc.Close()
}

type summaryRenderer struct{}

// Render writes "number protocols info", tab separated, plus a malformed marker.
func (summaryRenderer) Render(w io.Writer, res *engine.Result) error {
	_, err := io.WriteString(w, Summary(res)+"\n")
	return err
}

// Summary is the one-line description of res.
func Summary(res *engine.Result) string {
	line := fmt.Sprintf("%d\t%s\t%s", res.Frame.Number, res.Context.Protocols(), res.Context.Column(core.ColInfo))
	if res.Malformed() && !strings.Contains(line, "[Malformed Packet]") &&
		!strings.Contains(line, "[Packet size limited during capture]") {
		line += " [Malformed Packet]"
	}
	return line
}

// HexHighlight returns the bytes of data that f covers. Generated fields and
// fields outside data cover nothing.
func HexHighlight(data []byte, f *core.Field) []byte {
	if f == nil || f.Generated || f.Length <= 0 || f.Start < 0 || f.Start >= len(data) {
		return nil
	}
	return data[f.Start:min(f.Start+f.Length, len(data))]
}
