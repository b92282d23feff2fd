package datasets

import (
	"fmt"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Array is a dense, row-major float32 buffer with shape metadata. Features
// and labels travel through the pipeline as Arrays and are only turned into
// gomlx tensors at the edge (see Tensor), which keeps transforms and stacking
// independent of the tensor backend.
type Array struct {
	Shape []int
	Data  []float32
}

// NewArray checks that data holds exactly prod(shape) values.
func NewArray(shape []int, data []float32) (Array, error) {
	size := 1
	for i, d := range shape {
		if d < 0 {
			return Array{}, fmt.Errorf("negative dimension %d at axis %d", d, i)
		}
		size *= d
	}
	if size != len(data) {
		return Array{}, fmt.Errorf("shape %v needs %d values, got %d", shape, size, len(data))
	}
	return Array{Shape: slices.Clone(shape), Data: data}, nil
}

// Scalar returns a rank-0 array holding v.
func Scalar(v float32) Array {
	return Array{Shape: []int{}, Data: []float32{v}}
}

// Size is the number of elements.
func (a Array) Size() int { return len(a.Data) }

// Rank is the number of dimensions.
func (a Array) Rank() int { return len(a.Shape) }

// Clone returns a deep copy.
func (a Array) Clone() Array {
	return Array{Shape: slices.Clone(a.Shape), Data: slices.Clone(a.Data)}
}

// SameShape reports whether a and b have identical dimensions.
func (a Array) SameShape(b Array) bool {
	return slices.Equal(a.Shape, b.Shape)
}

// Reshape returns a view of the same data with a new shape. At most one
// dimension may be -1, in which case it is inferred.
func (a Array) Reshape(shape ...int) (Array, error) {
	infer := -1
	known := 1
	for i, d := range shape {
		if d == -1 {
			if infer >= 0 {
				return Array{}, fmt.Errorf("reshape %v: more than one inferred dimension", shape)
			}
			infer = i
			continue
		}
		known *= d
	}
	out := slices.Clone(shape)
	if infer >= 0 {
		if known == 0 || len(a.Data)%known != 0 {
			return Array{}, fmt.Errorf("reshape %v: cannot infer dimension for %d values", shape, len(a.Data))
		}
		out[infer] = len(a.Data) / known
	}
	return NewArray(out, a.Data)
}

// Tensor converts the array to a gomlx tensor with the same dimensions.
func (a Array) Tensor() *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(a.Data, a.Shape...)
}

// Stack joins equally shaped arrays along a new leading axis. The result
// has shape [len(items), items[0].Shape...]. An empty input yields a [0]
// array.
func Stack(items []Array) (Array, error) {
	if len(items) == 0 {
		return Array{Shape: []int{0}, Data: []float32{}}, nil
	}

	first := items[0]
	itemSize := first.Size()
	flat := make([]float32, len(items)*itemSize)
	for i, item := range items {
		if !item.SameShape(first) {
			return Array{}, &ShapeError{Position: i, Want: slices.Clone(first.Shape), Got: slices.Clone(item.Shape)}
		}
		copy(flat[i*itemSize:], item.Data)
	}

	shape := make([]int, 0, first.Rank()+1)
	shape = append(shape, len(items))
	shape = append(shape, first.Shape...)
	return Array{Shape: shape, Data: flat}, nil
}
