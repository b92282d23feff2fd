package datasets

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeOrder(t *testing.T) {
	add := func(v float32) Transform {
		return Lambda(func(a Array) Array {
			out := a.Clone()
			for i := range out.Data {
				out.Data[i] += v
			}
			return out
		})
	}
	double := Lambda(func(a Array) Array {
		out := a.Clone()
		for i := range out.Data {
			out.Data[i] *= 2
		}
		return out
	})

	out, err := Compose(add(1), nil, double)(Scalar(3))
	require.NoError(t, err)
	assert.Equal(t, float32(8), out.Data[0])

	out, err = Compose(double, add(1))(Scalar(3))
	require.NoError(t, err)
	assert.Equal(t, float32(7), out.Data[0])

	assert.Nil(t, Compose())
	assert.Nil(t, Compose(nil, nil))
}

func TestComposeStopsOnError(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	fail := func(Array) (Array, error) { return Array{}, boom }
	count := Lambda(func(a Array) Array { calls++; return a })

	_, err := Compose(count, fail, count)(Scalar(0))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestToUnitRangeDoesNotMutateInput(t *testing.T) {
	in := Array{Shape: []int{3}, Data: []float32{0, 51, 255}}
	out, err := ToUnitRange()(in)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 0.2, 1}, out.Data, 1e-6)
	assert.Equal(t, []float32{0, 51, 255}, in.Data)
}

func TestNormalize(t *testing.T) {
	in := Array{Shape: []int{2, 1, 2}, Data: []float32{1, 3, 10, 20}}

	out, err := Normalize([]float32{2, 10}, []float32{1, 5})(in)
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, 1, 0, 2}, out.Data)

	out, err = Normalize([]float32{1}, []float32{2})(in)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 4.5, 9.5}, out.Data)

	_, err = Normalize([]float32{0, 0, 0}, []float32{1})(in)
	assert.Error(t, err)
	_, err = Normalize([]float32{0}, []float32{0})(in)
	assert.Error(t, err)
	_, err = Normalize([]float32{0}, []float32{1})(Scalar(1))
	assert.Error(t, err)
}

func TestFlatten(t *testing.T) {
	out, err := Flatten()(Array{Shape: []int{1, 2, 3}, Data: make([]float32, 6)})
	require.NoError(t, err)
	assert.Equal(t, []int{6}, out.Shape)
}

func TestOneHot(t *testing.T) {
	out, err := OneHot(10)(Scalar(9))
	require.NoError(t, err)
	assert.Equal(t, []int{10}, out.Shape)
	assert.Equal(t, float32(1), out.Data[9])
	var sum float32
	for _, v := range out.Data {
		sum += v
	}
	assert.Equal(t, float32(1), sum)

	for _, bad := range []float32{-1, 10, 2.5} {
		_, err := OneHot(10)(Scalar(bad))
		assert.True(t, errors.Is(err, ErrLabelOutOfRange), "label %v", bad)
	}

	_, err = OneHot(10)(Array{Shape: []int{2}, Data: []float32{0, 1}})
	assert.Error(t, err)
}

func TestImageTransforms(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 6))

	resized, err := Resize(4, 3)(img)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(4, 3), resized.Bounds().Size())

	cropped, err := CenterCrop(2, 2)(img)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(2, 2), cropped.Bounds().Size())

	chain := ComposeImage(Grayscale(), FlipHorizontal(), Resize(2, 2))
	out, err := chain(img)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(2, 2), out.Bounds().Size())

	_, err = Resize(0, 2)(img)
	assert.Error(t, err)
	assert.Nil(t, ComposeImage(nil))
}
