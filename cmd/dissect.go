package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"firestige.xyz/strix/internal/config"
	"firestige.xyz/strix/internal/engine"
	"firestige.xyz/strix/internal/filter"
	"firestige.xyz/strix/internal/log"
	"firestige.xyz/strix/internal/metrics"
	"firestige.xyz/strix/internal/protocols"
	"firestige.xyz/strix/internal/registry"
	"firestige.xyz/strix/internal/render"
	"firestige.xyz/strix/internal/source/file"
)

var dissectOpts struct {
	file    string
	format  string
	noTree  bool
	workers int
	count   int
	summary bool
	ordered bool
	hidden  bool
	bpf     string
}

var dissectCmd = &cobra.Command{
	Use:   "dissect",
	Short: "Dissect the frames of a capture file",
	Long: `Dissect every frame of a pcap or pcapng file and print the result.

Flags override the dissect and output sections of the config file.

Examples:
  strix dissect -r trace.pcap                   # Print a field tree per frame
  strix dissect -r trace.pcap --summary         # One line per frame
  strix dissect -r trace.pcap -F json -n 10     # First ten frames as JSON
  strix dissect -r trace.pcap -w 8 --ordered=false
  strix dissect -r trace.pcap --bpf "$(tcpdump -ddd udp)"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyDissectFlags(cmd, cfg)
		if err := cfg.ValidateAndApplyDefaults(); err != nil {
			return err
		}
		return runDissect(cmd.Context(), cfg, dissectOpts.file, dissectOpts.count, cmd.OutOrStdout())
	},
}

func init() {
	f := dissectCmd.Flags()
	f.StringVarP(&dissectOpts.file, "read", "r", "", "capture file to read (required)")
	f.StringVarP(&dissectOpts.format, "format", "F", render.FormatText, "output format: text, json, yaml, summary or protobuf")
	f.BoolVar(&dissectOpts.noTree, "no-tree", false, "skip field trees; implies summary output for text")
	f.IntVarP(&dissectOpts.workers, "workers", "w", 0, "dissecting goroutines (0 = GOMAXPROCS)")
	f.IntVarP(&dissectOpts.count, "count", "n", 0, "stop after this many frames (0 = all)")
	f.BoolVarP(&dissectOpts.summary, "summary", "s", false, "print one summary line per frame")
	f.BoolVar(&dissectOpts.ordered, "ordered", true, "print frames in capture order")
	f.BoolVar(&dissectOpts.hidden, "hidden", false, "include hidden fields")
	f.StringVar(&dissectOpts.bpf, "bpf", "", "skip frames rejected by this BPF program (tcpdump -ddd output)")
	dissectCmd.MarkFlagRequired("read")
}

// applyDissectFlags copies explicitly set flags over the loaded configuration.
func applyDissectFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("format") {
		cfg.Output.Format = dissectOpts.format
	}
	if f.Changed("hidden") {
		cfg.Output.Hidden = dissectOpts.hidden
	}
	if f.Changed("workers") {
		cfg.Dissect.Workers = dissectOpts.workers
	}
	if f.Changed("ordered") {
		cfg.Dissect.Ordered = dissectOpts.ordered
	}
	if f.Changed("bpf") {
		cfg.Dissect.Filter = dissectOpts.bpf
	}
	if dissectOpts.noTree {
		cfg.Dissect.Tree = false
	}
	if dissectOpts.summary {
		cfg.Output.Format = render.FormatSummary
	}
	if !cfg.Dissect.Tree && cfg.Output.Format == render.FormatText {
		cfg.Output.Format = render.FormatSummary
	}
}

// buildRegistry registers every bundled protocol with the configured
// preferences.
func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	b := registry.NewBuilder(log.GetLogger())
	if err := protocols.RegisterAll(b, cfg.Protocols.Options()); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// runDissect dissects up to count frames (all when count <= 0) of the capture
// at path and renders them to w.
func runDissect(ctx context.Context, cfg *config.Config, path string, count int, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	eng, err := engine.New(reg,
		engine.WithLogger(log.GetLogger()),
		engine.WithMaxDepth(cfg.Dissect.MaxDepth),
		engine.WithMetrics(cfg.Metrics.Enabled),
	)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	renderer, err := render.New(cfg.Output.Format, render.Options{RunID: runID, Hidden: cfg.Output.Hidden})
	if err != nil {
		return err
	}

	var bpf *filter.BPF
	if cfg.Dissect.Filter != "" {
		if bpf, err = filter.Compile(cfg.Dissect.Filter); err != nil {
			return err
		}
	}

	src, err := file.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(stopCtx)
		}()
	}

	logger := log.GetLogger().WithFields(map[string]interface{}{
		"run_id":   runID,
		"file":     path,
		"linktype": src.LinkType().String(),
	})
	logger.Info("dissection started")
	start := time.Now()

	pool := &engine.Pool{
		Engine:  eng,
		Workers: cfg.Dissect.Workers,
		Ordered: cfg.Dissect.Ordered,
		Visible: cfg.Dissect.Tree,
	}
	frames := make(chan engine.Frame, cfg.Dissect.Workers)
	out := bufio.NewWriter(w)
	var total, malformed, skipped int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(frames)
		for sent := 0; count <= 0 || sent < count; {
			f, err := src.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if bpf != nil && !bpf.Match(f.Data) {
				skipped++
				continue
			}
			select {
			case frames <- f:
				sent++
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	g.Go(func() error {
		return pool.Run(gctx, frames, func(res *engine.Result) error {
			total++
			if res.Malformed() {
				malformed++
			}
			return renderer.Render(out, res)
		})
	})
	if err := g.Wait(); err != nil {
		out.Flush()
		return fmt.Errorf("dissect %s: %w", path, err)
	}
	if err := out.Flush(); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"frames":    total,
		"malformed": malformed,
		"skipped":   skipped,
		"elapsed":   time.Since(start).String(),
	}).Info("dissection finished")
	return nil
}
