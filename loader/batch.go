package loader

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/dataloader/datasets"
)

// Batch is one group of stacked samples. Features has shape
// [Size(), featureShape...] and Labels [Size(), labelShape...].
type Batch struct {
	// Seq is the position of the batch within its epoch.
	Seq      int
	Indices  []int
	Features datasets.Array
	Labels   datasets.Array
}

// Size returns the number of samples in the batch.
func (b *Batch) Size() int { return len(b.Indices) }

// Tensors converts the batch to gomlx tensors.
func (b *Batch) Tensors() (inputs, labels *tensors.Tensor) {
	return b.Features.Tensor(), b.Labels.Tensor()
}

// assemble reads the samples for indices and stacks them. It fails on the
// first sample error or on inconsistent shapes; nothing is skipped.
func assemble(ds datasets.Dataset, seq int, indices []int) (*Batch, error) {
	features := make([]datasets.Array, len(indices))
	labels := make([]datasets.Array, len(indices))
	for i, idx := range indices {
		s, err := ds.Example(idx)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", seq, err)
		}
		features[i] = s.Feature
		labels[i] = s.Label
	}

	feat, err := datasets.Stack(features)
	if err != nil {
		return nil, fmt.Errorf("batch %d features: %w", seq, err)
	}
	lab, err := datasets.Stack(labels)
	if err != nil {
		return nil, fmt.Errorf("batch %d labels: %w", seq, err)
	}

	return &Batch{
		Seq:      seq,
		Indices:  append([]int(nil), indices...),
		Features: feat,
		Labels:   lab,
	}, nil
}
