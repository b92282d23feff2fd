package loader

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Noofbiz/dataloader/datasets"
)

type result struct {
	seq   int
	batch *Batch
	err   error
}

// prefetcher assembles the batches of one epoch ahead of the consumer.
//
// A dispatcher hands batch numbers to the workers in epoch order, taking a
// token per batch; the consumer returns the token when it takes the batch.
// At most window batches are therefore being built or waiting at any time.
// Workers finish out of order, so results are parked in pending until their
// turn comes.
type prefetcher struct {
	ctx     context.Context
	cancel  context.CancelFunc
	g       *errgroup.Group
	results chan result
	tokens  chan struct{}
	pending map[int]result
}

// startPrefetch starts building batches[from:] in the background.
func startPrefetch(parent context.Context, ds datasets.Dataset, batches [][]int, from, workers, extra int, log zerolog.Logger) *prefetcher {
	left := len(batches) - from
	window := max(1, min(workers+extra, left))
	workers = max(1, min(workers, left))

	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)
	p := &prefetcher{
		ctx:     gctx,
		cancel:  cancel,
		g:       g,
		results: make(chan result, window),
		tokens:  make(chan struct{}, window),
		pending: make(map[int]result, window),
	}

	tasks := make(chan int)
	g.Go(func() error {
		defer close(tasks)
		for seq := from; seq < len(batches); seq++ {
			select {
			case <-gctx.Done():
				return nil
			case p.tokens <- struct{}{}:
			}
			select {
			case <-gctx.Done():
				return nil
			case tasks <- seq:
			}
		}
		return nil
	})

	for range workers {
		g.Go(func() error {
			for seq := range tasks {
				b, err := assemble(ds, seq, batches[seq])
				// Sample errors travel with their batch so that earlier
				// batches are still delivered first.
				select {
				case <-gctx.Done():
					return nil
				case p.results <- result{seq: seq, batch: b, err: err}:
				}
			}
			return nil
		})
	}

	log.Debug().
		Int("workers", workers).
		Int("window", window).
		Int("from", from).
		Int("batches", len(batches)).
		Msg("prefetch started")
	return p
}

// next blocks until batch seq is ready.
func (p *prefetcher) next(ctx context.Context, seq int) (*Batch, error) {
	for {
		if r, ok := p.pending[seq]; ok {
			delete(p.pending, seq)
			<-p.tokens
			return r.batch, r.err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.ctx.Done():
			return nil, p.ctx.Err()
		case r := <-p.results:
			p.pending[r.seq] = r
		}
	}
}

// stop cancels the workers and waits for them to exit. Unconsumed batches
// are dropped.
func (p *prefetcher) stop() {
	p.cancel()
	_ = p.g.Wait()
}
