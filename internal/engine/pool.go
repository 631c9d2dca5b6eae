package engine

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"firestige.xyz/strix/internal/metrics"
)

// Pool dissects frames on several goroutines sharing one Engine.
type Pool struct {
	Engine  *Engine
	Workers int  // 0 means GOMAXPROCS
	Ordered bool // emit results in input order
	Visible bool // build trees
}

type job struct {
	seq   uint64
	frame Frame
}

type done struct {
	seq uint64
	res *Result
}

// Run dissects every frame received on frames until it is closed or ctx is
// cancelled. out is called from a single goroutine; an error from out stops
// the pool and is returned.
func (p *Pool) Run(ctx context.Context, frames <-chan Frame, out func(*Result) error) error {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan job, workers)
	results := make(chan done, workers)

	// Feeder
	g.Go(func() error {
		defer close(jobs)
		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case f, ok := <-frames:
				if !ok {
					return nil
				}
				select {
				case jobs <- job{seq: seq, frame: f}:
					seq++
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	})

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			defer wg.Done()
			for j := range jobs {
				if p.Engine.metrics {
					metrics.PoolInflight.Inc()
				}
				res := p.Engine.DissectFrame(j.frame, p.Visible)
				if p.Engine.metrics {
					metrics.PoolInflight.Dec()
				}
				select {
				case results <- done{seq: j.seq, res: res}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Emitter
	g.Go(func() error {
		var (
			next    uint64
			pending = make(map[uint64]*Result)
		)
		for d := range results {
			if !p.Ordered {
				if err := out(d.res); err != nil {
					return err
				}
				continue
			}
			pending[d.seq] = d.res
			for {
				r, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				if err := out(r); err != nil {
					return err
				}
			}
		}
		return nil
	})

	return g.Wait()
}
