package loader

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/dataloader/datasets"
)

// memDataset returns sample i as feature [i] and label i%10. failAt and
// badShapeAt inject errors; jitter makes reads finish out of order.
type memDataset struct {
	n          int
	failAt     int
	badShapeAt int
	jitter     bool
	reads      atomic.Int64
}

func newMem(n int) *memDataset { return &memDataset{n: n, failAt: -1, badShapeAt: -1} }

func (d *memDataset) Name() string { return "mem" }
func (d *memDataset) Len() int     { return d.n }

func (d *memDataset) Example(i int) (datasets.Sample, error) {
	d.reads.Add(1)
	if i < 0 || i >= d.n {
		return datasets.Sample{}, &datasets.IndexError{Index: i, Len: d.n}
	}
	if d.jitter {
		time.Sleep(time.Duration((i*7)%5) * time.Millisecond)
	}
	if i == d.failAt {
		return datasets.Sample{}, fmt.Errorf("example %d: %w", i, datasets.ErrSampleNotFound)
	}
	feature := datasets.Array{Shape: []int{1}, Data: []float32{float32(i)}}
	if i == d.badShapeAt {
		feature = datasets.Array{Shape: []int{2}, Data: []float32{float32(i), 0}}
	}
	return datasets.Sample{Feature: feature, Label: datasets.Scalar(float32(i % 10))}, nil
}

// drain reads one epoch and returns its batches.
func drain(t *testing.T, l *Loader) []*Batch {
	t.Helper()
	var out []*Batch
	for {
		b, err := l.Next(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, b)
	}
}

func indicesOf(batches []*Batch) []int {
	var out []int
	for _, b := range batches {
		out = append(out, b.Indices...)
	}
	return out
}

func TestNumBatches(t *testing.T) {
	tests := []struct {
		n, size  int
		dropLast bool
		want     int
	}{
		{n: 10, size: 4, want: 3},
		{n: 10, size: 4, dropLast: true, want: 2},
		{n: 8, size: 4, want: 2},
		{n: 8, size: 4, dropLast: true, want: 2},
		{n: 3, size: 4, dropLast: true, want: 0},
		{n: 0, size: 4, want: 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n%d_b%d_drop%v", tt.n, tt.size, tt.dropLast), func(t *testing.T) {
			l, err := New(newMem(tt.n), Options{BatchSize: tt.size, DropLast: tt.dropLast})
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.NumBatches())
			assert.Len(t, drain(t, l), tt.want)
		})
	}
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(newMem(3), Options{})
	assert.Error(t, err)
	_, err = New(newMem(3), Options{BatchSize: 1, NumWorkers: -1})
	assert.Error(t, err)
	_, err = New(nil, Options{BatchSize: 1})
	assert.Error(t, err)
}

func TestSequentialEpoch(t *testing.T) {
	l, err := New(newMem(10), Options{BatchSize: 4})
	require.NoError(t, err)

	batches := drain(t, l)
	require.Len(t, batches, 3)

	sizes := make([]int, len(batches))
	for i, b := range batches {
		sizes[i] = b.Size()
		assert.Equal(t, i, b.Seq)
		assert.Equal(t, []int{b.Size(), 1}, b.Features.Shape)
		assert.Equal(t, []int{b.Size()}, b.Labels.Shape)
	}
	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, indicesOf(batches))
	assert.Equal(t, []float32{8, 9}, batches[2].Features.Data)

	// Exhausted epochs keep returning io.EOF.
	_, err = l.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestDropLast(t *testing.T) {
	l, err := New(newMem(10), Options{BatchSize: 4, DropLast: true, Shuffle: true, Rand: rand.New(rand.NewSource(1))})
	require.NoError(t, err)

	batches := drain(t, l)
	require.Len(t, batches, 2)
	for _, b := range batches {
		assert.Equal(t, 4, b.Size())
	}
	got := indicesOf(batches)
	assert.Len(t, got, 8)
	// Dropped indices are the tail of the permutation.
	assert.Equal(t, l.Order()[:8], got)
}

func TestShuffleIsPermutationPerEpoch(t *testing.T) {
	const n = 50
	l, err := New(newMem(n), Options{BatchSize: 8, Shuffle: true, Rand: rand.New(rand.NewSource(42))})
	require.NoError(t, err)

	want := make([]int, n)
	for i := range want {
		want[i] = i
	}

	first := indicesOf(drain(t, l))
	l.Reset()
	second := indicesOf(drain(t, l))
	assert.Equal(t, 2, l.Epoch())

	for _, order := range [][]int{first, second} {
		sorted := slices.Clone(order)
		slices.Sort(sorted)
		assert.Equal(t, want, sorted)
	}
	assert.NotEqual(t, first, second)
	assert.NotEqual(t, want, first)
}

func TestShuffleIsReproducible(t *testing.T) {
	orders := func() [][]int {
		l, err := New(newMem(30), Options{BatchSize: 7, Shuffle: true, Rand: rand.New(rand.NewSource(3))})
		require.NoError(t, err)
		var out [][]int
		for range 3 {
			out = append(out, indicesOf(drain(t, l)))
			l.Reset()
		}
		return out
	}
	assert.Equal(t, orders(), orders())
}

func TestPrefetchMatchesSequential(t *testing.T) {
	for _, workers := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("workers%d", workers), func(t *testing.T) {
			seq, err := New(newMem(37), Options{BatchSize: 5, Shuffle: true, Rand: rand.New(rand.NewSource(9))})
			require.NoError(t, err)

			ds := newMem(37)
			ds.jitter = true
			pre, err := New(ds, Options{
				BatchSize:  5,
				Shuffle:    true,
				Rand:       rand.New(rand.NewSource(9)),
				NumWorkers: workers,
				Prefetch:   2,
			})
			require.NoError(t, err)
			defer pre.Close()

			for epoch := range 3 {
				want := drain(t, seq)
				got := drain(t, pre)
				require.Len(t, got, len(want), "epoch %d", epoch)
				for i := range want {
					assert.Equal(t, want[i].Seq, got[i].Seq)
					assert.Equal(t, want[i].Indices, got[i].Indices)
					assert.Equal(t, want[i].Features, got[i].Features)
					assert.Equal(t, want[i].Labels, got[i].Labels)
				}
				seq.Reset()
				pre.Reset()
			}
		})
	}
}

func TestPrefetchWindowIsBounded(t *testing.T) {
	const batchSize = 2
	ds := newMem(100)
	l, err := New(ds, Options{BatchSize: batchSize, NumWorkers: 2, Prefetch: 1})
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Next(context.Background())
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	// One batch consumed plus a window of NumWorkers+Prefetch in flight.
	assert.LessOrEqual(t, ds.reads.Load(), int64((1+3)*batchSize))
}

func TestErrorsAreSticky(t *testing.T) {
	for _, workers := range []int{0, 3} {
		t.Run(fmt.Sprintf("workers%d", workers), func(t *testing.T) {
			ds := newMem(10)
			ds.failAt = 5
			l, err := New(ds, Options{BatchSize: 4, NumWorkers: workers})
			require.NoError(t, err)
			defer l.Close()

			ctx := context.Background()
			b, err := l.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int{0, 1, 2, 3}, b.Indices)

			_, err = l.Next(ctx)
			require.Error(t, err)
			assert.True(t, errors.Is(err, datasets.ErrSampleNotFound))

			_, again := l.Next(ctx)
			assert.Equal(t, err, again)

			l.Reset()
			b, err = l.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, b.Seq)
		})
	}
}

func TestShapeMismatch(t *testing.T) {
	ds := newMem(6)
	ds.badShapeAt = 2
	l, err := New(ds, Options{BatchSize: 3})
	require.NoError(t, err)

	_, err = l.Next(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, datasets.ErrShapeMismatch))

	var se *datasets.ShapeError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 2, se.Position)
}

func TestCanceledContextIsNotSticky(t *testing.T) {
	l, err := New(newMem(10), Options{BatchSize: 4, NumWorkers: 2})
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	batches := drain(t, l)
	assert.Len(t, batches, 3)
}

// slowDataset delays every read so that a caller is still waiting when its
// context is canceled.
type slowDataset struct {
	*memDataset
	delay time.Duration
}

func (d *slowDataset) Example(i int) (datasets.Sample, error) {
	time.Sleep(d.delay)
	return d.memDataset.Example(i)
}

func TestCancelCauseIsNotSticky(t *testing.T) {
	ds := &slowDataset{memDataset: newMem(6), delay: 50 * time.Millisecond}
	l, err := New(ds, Options{BatchSize: 2, NumWorkers: 2})
	require.NoError(t, err)
	defer l.Close()

	errStop := errors.New("operator stop")
	ctx, cancel := context.WithCancelCause(context.Background())
	timer := time.AfterFunc(10*time.Millisecond, func() { cancel(errStop) })
	defer timer.Stop()

	_, err = l.Next(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, context.Cause(ctx), errStop)

	batches := drain(t, l)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, indicesOf(batches))
}

func TestResumeAfterCancelMidEpoch(t *testing.T) {
	l, err := New(newMem(20), Options{BatchSize: 2, NumWorkers: 2, Prefetch: 1})
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var first []*Batch
	for range 5 {
		b, err := l.Next(ctx)
		require.NoError(t, err)
		first = append(first, b)
	}
	cancel()
	_, err = l.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	rest := drain(t, l)
	require.Len(t, rest, 5)
	assert.Equal(t, 5, rest[0].Seq)

	want := make([]int, 20)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, indicesOf(append(first, rest...)))
}

func TestBatchesIterator(t *testing.T) {
	l, err := New(newMem(10), Options{BatchSize: 3, NumWorkers: 2})
	require.NoError(t, err)
	defer l.Close()

	for epoch := range 2 {
		count := 0
		for b, err := range l.Batches(context.Background()) {
			require.NoError(t, err)
			assert.Equal(t, count, b.Seq)
			count++
		}
		assert.Equal(t, 4, count, "epoch %d", epoch)
	}

	// Breaking early leaves the loader usable.
	for range l.Batches(context.Background()) {
		break
	}
	assert.Len(t, drain(t, l), 3)
}

func TestTrainDataset(t *testing.T) {
	l, err := New(newMem(10), Options{BatchSize: 4})
	require.NoError(t, err)
	ds := l.TrainDataset(context.Background())
	assert.Equal(t, "mem", ds.Name())

	for range 2 {
		var sizes []int
		for {
			_, inputs, labels, err := ds.Yield()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			require.Len(t, inputs, 1)
			require.Len(t, labels, 1)
			dims := inputs[0].Shape().Dimensions
			sizes = append(sizes, dims[0])
			assert.Equal(t, []int{dims[0]}, labels[0].Shape().Dimensions)
		}
		assert.Equal(t, []int{4, 4, 2}, sizes)
		ds.Reset()
	}
}

func TestImageDatasetBatches(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "labels.csv"))
	require.NoError(t, err)
	for i := range 10 {
		name := fmt.Sprintf("%d.png", i)
		img := image.NewGray(image.Rect(0, 0, 3, 2))
		for p := range img.Pix {
			img.Pix[p] = uint8(i)
		}
		out, err := os.Create(filepath.Join(dir, name))
		require.NoError(t, err)
		require.NoError(t, png.Encode(out, img))
		require.NoError(t, out.Close())
		_, err = fmt.Fprintf(f, "%s,%d\n", name, i%10)
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	ds, err := datasets.NewImageDataset(filepath.Join(dir, "labels.csv"), dir)
	require.NoError(t, err)
	l, err := New(ds, Options{BatchSize: 4, NumWorkers: 2})
	require.NoError(t, err)
	defer l.Close()

	batches := drain(t, l)
	require.Len(t, batches, 3)
	assert.Equal(t, []int{4, 1, 2, 3}, batches[0].Features.Shape)
	assert.Equal(t, []int{2, 1, 2, 3}, batches[2].Features.Shape)
	assert.Equal(t, []float32{8, 9}, batches[2].Labels.Data)

	require.NoError(t, os.Remove(filepath.Join(dir, "6.png")))
	l.Reset()
	_, err = l.Next(context.Background())
	require.NoError(t, err)
	_, err = l.Next(context.Background())
	assert.True(t, errors.Is(err, datasets.ErrSampleNotFound))
}
