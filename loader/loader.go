// Package loader turns a datasets.Dataset into a stream of batches: one
// epoch visits every index exactly once, in ascending order or in a fresh
// random permutation, grouped into fixed-size batches (the last one may be
// smaller unless DropLast is set).
//
// Iteration is pull-based. By default each Next call reads and stacks its
// samples synchronously; with NumWorkers > 0 a bounded pool of workers
// reads ahead while the caller is busy, and batches are still delivered in
// epoch order.
package loader

import (
	"context"
	"errors"
	"io"
	"iter"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/Noofbiz/dataloader/datasets"
)

// DefaultPrefetch is the number of extra batches kept in flight per epoch
// when prefetching and Options.Prefetch is zero.
const DefaultPrefetch = 2

// Options configures a Loader.
type Options struct {
	// BatchSize is the maximum number of samples per batch. Required.
	BatchSize int

	// Shuffle draws a new permutation of the indices for every epoch.
	Shuffle bool

	// Rand is the source of the permutations. If nil and Shuffle is set, a
	// time-seeded generator is created. Pass a seeded one for
	// reproducible epochs.
	Rand *rand.Rand

	// DropLast discards the trailing partial batch of each epoch.
	DropLast bool

	// NumWorkers enables background prefetching with that many workers.
	NumWorkers int

	// Prefetch is the number of batches read ahead beyond one per worker.
	Prefetch int

	Logger *zerolog.Logger
}

// Loader iterates a dataset in batches. It is not safe for concurrent use;
// one training loop owns it.
type Loader struct {
	ds   datasets.Dataset
	opts Options
	rng  *rand.Rand
	log  zerolog.Logger

	epoch   int
	batches [][]int
	cursor  int
	err     error
	pf      *prefetcher
}

// New returns a Loader positioned at the start of its first epoch.
func New(ds datasets.Dataset, opts Options) (*Loader, error) {
	if ds == nil {
		return nil, errors.New("loader: dataset is nil")
	}
	if opts.BatchSize <= 0 {
		return nil, errors.New("loader: batch size must be > 0")
	}
	if opts.NumWorkers < 0 {
		return nil, errors.New("loader: num workers must be >= 0")
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = DefaultPrefetch
	}

	l := &Loader{
		ds:   ds,
		opts: opts,
		rng:  opts.Rand,
		log:  zerolog.Nop(),
	}
	if opts.Logger != nil {
		l.log = opts.Logger.With().Str("dataset", ds.Name()).Logger()
	}
	if l.rng == nil && opts.Shuffle {
		l.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	l.Reset()
	return l, nil
}

// Len returns the number of samples in the dataset.
func (l *Loader) Len() int { return l.ds.Len() }

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int { return l.opts.BatchSize }

// NumBatches returns the number of batches in one epoch.
func (l *Loader) NumBatches() int {
	n := l.ds.Len()
	if l.opts.DropLast {
		return n / l.opts.BatchSize
	}
	return (n + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// Epoch returns the number of the current epoch, starting at 1.
func (l *Loader) Epoch() int { return l.epoch }

// Reset starts a new epoch. With Shuffle set it draws a new permutation;
// nothing carries over from the previous epoch, including errors and any
// batches prefetched but not consumed.
func (l *Loader) Reset() {
	l.stopPrefetch()
	l.epoch++
	l.cursor = 0
	l.err = nil
	l.batches = l.plan()

	l.log.Debug().
		Int("epoch", l.epoch).
		Int("batches", len(l.batches)).
		Bool("shuffle", l.opts.Shuffle).
		Msg("epoch start")
}

// plan splits the epoch order into batches of indices.
func (l *Loader) plan() [][]int {
	n := l.ds.Len()
	var order []int
	if l.opts.Shuffle {
		order = l.rng.Perm(n)
	} else {
		order = make([]int, n)
		for i := range order {
			order[i] = i
		}
	}

	batches := make([][]int, 0, l.NumBatches())
	for start := 0; start < n; start += l.opts.BatchSize {
		end := min(start+l.opts.BatchSize, n)
		if end-start < l.opts.BatchSize && l.opts.DropLast {
			break
		}
		batches = append(batches, order[start:end])
	}
	return batches
}

// Order returns the sample indices the current epoch visits, in order.
func (l *Loader) Order() []int {
	out := make([]int, 0, l.ds.Len())
	for _, b := range l.batches {
		out = append(out, b...)
	}
	return out
}

// Next returns the next batch of the current epoch, or io.EOF when the
// epoch is exhausted. An error reading a sample ends the epoch: the same
// error is returned until Reset.
//
// When prefetching, ctx of the first Next call of an epoch also bounds the
// background workers for that epoch.
func (l *Loader) Next(ctx context.Context) (*Batch, error) {
	if l.err != nil {
		return nil, l.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.cursor >= len(l.batches) {
		l.stopPrefetch()
		return nil, io.EOF
	}

	var (
		b   *Batch
		err error
	)
	if l.opts.NumWorkers > 0 {
		if l.pf != nil && l.pf.ctx.Err() != nil {
			// The context that started the workers is gone.
			l.stopPrefetch()
		}
		if l.pf == nil {
			l.pf = startPrefetch(ctx, l.ds, l.batches, l.cursor, l.opts.NumWorkers, l.opts.Prefetch, l.log)
		}
		b, err = l.pf.next(ctx, l.cursor)
	} else {
		b, err = assemble(l.ds, l.cursor, l.batches[l.cursor])
	}
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Cancellation is the caller's decision, not a data error; a
			// later Next with a live context restarts the workers.
			l.stopPrefetch()
			return nil, err
		}
		l.err = err
		l.stopPrefetch()
		return nil, err
	}
	l.cursor++
	return b, nil
}

// Batches resets the loader and yields the batches of one epoch. Iteration
// stops after the first error.
func (l *Loader) Batches(ctx context.Context) iter.Seq2[*Batch, error] {
	return func(yield func(*Batch, error) bool) {
		l.Reset()
		for {
			b, err := l.Next(ctx)
			if err == io.EOF {
				return
			}
			if !yield(b, err) || err != nil {
				return
			}
		}
	}
}

// Close stops any background workers. The loader can still be used; the
// next epoch starts them again.
func (l *Loader) Close() {
	l.stopPrefetch()
}

func (l *Loader) stopPrefetch() {
	if l.pf != nil {
		l.pf.stop()
		l.pf = nil
	}
}
