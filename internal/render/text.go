package render

import (
	"bufio"
	"io"
	"strings"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/engine"
)

const indent = "  "

type textRenderer struct {
	opts Options
}

// Render writes the tree, one field per line, then the frame's warnings.
func (r *textRenderer) Render(w io.Writer, res *engine.Result) error {
	bw := bufio.NewWriter(w)
	if res.Tree != nil {
		res.Tree.Walk(func(f *core.Field, depth int) bool {
			if f.Hidden && !r.opts.Hidden {
				return false
			}
			bw.WriteString(strings.Repeat(indent, depth))
			bw.WriteString(Label(f))
			bw.WriteByte('\n')
			return true
		})
	}
	if n := len(res.Context.Warnings); n > 0 {
		bw.WriteString("Expert Info:\n")
		for _, wn := range res.Context.Warnings {
			bw.WriteString(indent)
			bw.WriteString("[" + wn.Severity.String() + "/" + wn.Group + "] ")
			bw.WriteString(wn.Message)
			bw.WriteByte('\n')
		}
	}
	bw.WriteByte('\n')
	return bw.Flush()
}

// Label is the display line of f. Generated fields are bracketed.
func Label(f *core.Field) string {
	if f.Generated && !strings.HasPrefix(f.Label, "[") {
		return "[" + f.Label + "]"
	}
	return f.Label
}

// Text renders res as an indented tree into a string.
func Text(res *engine.Result) string {
	var sb strings.Builder
	(&textRenderer{}).Render(&sb, res)
	return sb.String()
}
