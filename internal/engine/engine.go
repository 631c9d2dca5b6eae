// Package engine drives the dissection of whole frames: it runs the frame layer,
// supervises the fault boundary of every nested layer and runs post-dissectors.
package engine

import (
	"fmt"
	"strconv"
	"time"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/log"
	"firestige.xyz/strix/internal/metrics"
	"firestige.xyz/strix/internal/registry"
)

// Frame is one captured frame as supplied by a capture source.
type Frame struct {
	Number      int
	Timestamp   time.Time
	Data        []byte
	ReportedLen int // on-wire length; 0 means len(Data)
	Encap       int // wtap_encap table key
	Ignored     bool
	Delta       time.Duration // time since the previous frame
}

// Result is the outcome of dissecting one frame.
type Result struct {
	Frame    Frame
	Tree     *core.Tree
	Context  *core.Context
	Duration time.Duration
}

// Layers returns the per-layer outcomes in the order the layers started.
func (r *Result) Layers() []core.Layer { return r.Context.Layers }

// Malformed reports whether any layer of the frame faulted.
func (r *Result) Malformed() bool { return r.Context.Malformed() }

// Engine dissects frames against a frozen registry. It holds no per-frame state
// and is safe for concurrent use.
type Engine struct {
	reg      *registry.Registry
	log      log.Logger
	maxDepth int
	metrics  bool
}

type Option func(*Engine)

func WithLogger(l log.Logger) Option { return func(e *Engine) { e.log = l } }

// WithMaxDepth bounds layer nesting per frame.
func WithMaxDepth(n int) Option { return func(e *Engine) { e.maxDepth = n } }

// WithMetrics enables Prometheus counters.
func WithMetrics(enabled bool) Option { return func(e *Engine) { e.metrics = enabled } }

// New creates an engine. reg must contain the tables installed by Register.
func New(reg *registry.Registry, opts ...Option) (*Engine, error) {
	if reg == nil || !reg.HasTable(TableEncap) {
		return nil, fmt.Errorf("%w: registry has no %q table", core.ErrUnknownTable, TableEncap)
	}
	e := &Engine{
		reg:      reg,
		log:      log.GetLogger(),
		maxDepth: core.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Registry() *registry.Registry { return e.reg }

// DissectFrame dissects f. With visible false no tree is recorded, but the
// protocol stack, columns, warnings and layer outcomes are identical.
func (e *Engine) DissectFrame(f Frame, visible bool) *Result {
	start := time.Now()

	if f.ReportedLen < len(f.Data) {
		f.ReportedLen = len(f.Data)
	}
	ctx := core.NewContext(f.Number, f.Timestamp, visible)
	ctx.MaxDepth = e.maxDepth
	tree := core.NewTree(visible)
	cur := core.NewCursor(f.Data, f.ReportedLen)

	top := registry.NewCall(e, e.reg, FrameProtocol, cur, ctx, tree, nil)
	e.run(top, frameDissector(f))

	res := &Result{Frame: f, Tree: tree, Context: ctx, Duration: time.Since(start)}
	if e.metrics {
		metrics.FramesTotal.WithLabelValues(strconv.Itoa(f.Encap)).Inc()
		metrics.DurationSeconds.Observe(res.Duration.Seconds())
		for _, w := range ctx.Warnings {
			metrics.WarningsTotal.WithLabelValues(w.Protocol, w.Group).Inc()
		}
	}
	return res
}

// RunLayer implements registry.Runner.
func (e *Engine) RunLayer(parent *registry.Call, h registry.Handle, cur *core.Cursor) bool {
	return e.run(parent.Child(h.Protocol, cur), h.Dissector)
}

// RunHeuristics implements registry.Runner.
func (e *Engine) RunHeuristics(parent *registry.Call, table string, cur *core.Cursor) bool {
	for _, h := range e.reg.Heuristics(table) {
		heur := h.Heuristic
		d := registry.DissectorFunc(func(c *registry.Call) error {
			ok, err := heur.Dissect(c)
			if !ok {
				return registry.ErrRejected
			}
			return err
		})
		if e.run(parent.Child(h.Protocol, cur), d) {
			return true
		}
	}
	return false
}

// RunData implements registry.Runner.
func (e *Engine) RunData(parent *registry.Call, cur *core.Cursor) {
	if cur.Len() == 0 {
		return
	}
	e.run(parent.Child(DataProtocol, cur), registry.DissectorFunc(e.dissectData))
}
