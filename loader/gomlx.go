package loader

import (
	"context"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
)

// TrainDataset adapts a Loader to gomlx's train.Dataset, so it can feed a
// train.Loop directly. One pass of Yield calls covers one epoch; Reset
// starts the next.
type TrainDataset struct {
	l   *Loader
	ctx context.Context
}

var _ train.Dataset = &TrainDataset{}

// TrainDataset wraps the loader. ctx bounds all reads done through the
// adapter, since train.Dataset has no context of its own.
func (l *Loader) TrainDataset(ctx context.Context) *TrainDataset {
	return &TrainDataset{l: l, ctx: ctx}
}

func (ds *TrainDataset) Name() string { return ds.l.ds.Name() }

func (ds *TrainDataset) Reset() { ds.l.Reset() }

// Yield returns the next batch as one input and one label tensor, or io.EOF
// at the end of the epoch.
func (ds *TrainDataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	b, err := ds.l.Next(ds.ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	x, y := b.Tensors()
	return ds, []*tensors.Tensor{x}, []*tensors.Tensor{y}, nil
}
