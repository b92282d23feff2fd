package datasets

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Transform maps a feature or label array to its processed form.
// Transforms must not modify their input in place.
type Transform func(Array) (Array, error)

// ImageTransform maps a decoded image to another image before it is turned
// into an Array.
type ImageTransform func(image.Image) (image.Image, error)

// Compose chains transforms left to right. Nil transforms are skipped and
// the first error stops the chain. Compose of nothing returns nil.
func Compose(ts ...Transform) Transform {
	chain := make([]Transform, 0, len(ts))
	for _, t := range ts {
		if t != nil {
			chain = append(chain, t)
		}
	}
	switch len(chain) {
	case 0:
		return nil
	case 1:
		return chain[0]
	}
	return func(a Array) (Array, error) {
		var err error
		for _, t := range chain {
			if a, err = t(a); err != nil {
				return Array{}, err
			}
		}
		return a, nil
	}
}

// ComposeImage is Compose for image transforms.
func ComposeImage(ts ...ImageTransform) ImageTransform {
	chain := make([]ImageTransform, 0, len(ts))
	for _, t := range ts {
		if t != nil {
			chain = append(chain, t)
		}
	}
	switch len(chain) {
	case 0:
		return nil
	case 1:
		return chain[0]
	}
	return func(img image.Image) (image.Image, error) {
		var err error
		for _, t := range chain {
			if img, err = t(img); err != nil {
				return nil, err
			}
		}
		return img, nil
	}
}

// Lambda wraps a function that cannot fail.
func Lambda(fn func(Array) Array) Transform {
	return func(a Array) (Array, error) { return fn(a), nil }
}

// ToUnitRange scales 8-bit intensities into [0, 1].
func ToUnitRange() Transform {
	return Lambda(func(a Array) Array {
		out := a.Clone()
		for i := range out.Data {
			out.Data[i] /= 255
		}
		return out
	})
}

// Normalize subtracts mean and divides by std per channel, where channels
// are the leading dimension. Single-element mean/std apply to every channel.
func Normalize(mean, std []float32) Transform {
	return func(a Array) (Array, error) {
		if a.Rank() == 0 {
			return Array{}, fmt.Errorf("normalize: scalar input")
		}
		channels := a.Shape[0]
		if len(mean) != 1 && len(mean) != channels {
			return Array{}, fmt.Errorf("normalize: %d means for %d channels", len(mean), channels)
		}
		if len(std) != 1 && len(std) != channels {
			return Array{}, fmt.Errorf("normalize: %d stds for %d channels", len(std), channels)
		}
		out := a.Clone()
		if channels == 0 {
			return out, nil
		}
		plane := a.Size() / channels
		for c := range channels {
			m, s := mean[0], std[0]
			if len(mean) > 1 {
				m = mean[c]
			}
			if len(std) > 1 {
				s = std[c]
			}
			if s == 0 {
				return Array{}, fmt.Errorf("normalize: zero std for channel %d", c)
			}
			seg := out.Data[c*plane : (c+1)*plane]
			for i := range seg {
				seg[i] = (seg[i] - m) / s
			}
		}
		return out, nil
	}
}

// Flatten reshapes any array to rank 1.
func Flatten() Transform {
	return func(a Array) (Array, error) {
		return a.Clone().Reshape(-1)
	}
}

// OneHot turns a scalar class label into a [numClasses] vector with a
// single 1. Labels that are not integers in [0, numClasses) are rejected
// with ErrLabelOutOfRange.
func OneHot(numClasses int) Transform {
	return func(a Array) (Array, error) {
		if a.Size() != 1 {
			return Array{}, fmt.Errorf("one-hot: expected a scalar label, got shape %v", a.Shape)
		}
		v := float64(a.Data[0])
		class := int(v)
		if v != math.Trunc(v) || class < 0 || class >= numClasses {
			return Array{}, fmt.Errorf("%w: %v not in [0, %d)", ErrLabelOutOfRange, a.Data[0], numClasses)
		}
		out := make([]float32, numClasses)
		out[class] = 1
		return Array{Shape: []int{numClasses}, Data: out}, nil
	}
}

// Resize scales the image to exactly width x height.
func Resize(width, height int) ImageTransform {
	return func(img image.Image) (image.Image, error) {
		if width <= 0 || height <= 0 {
			return nil, fmt.Errorf("resize: invalid size %dx%d", width, height)
		}
		return imaging.Resize(img, width, height, imaging.Lanczos), nil
	}
}

// CenterCrop cuts a width x height rectangle out of the image center.
func CenterCrop(width, height int) ImageTransform {
	return func(img image.Image) (image.Image, error) {
		if width <= 0 || height <= 0 {
			return nil, fmt.Errorf("center crop: invalid size %dx%d", width, height)
		}
		return imaging.CropCenter(img, width, height), nil
	}
}

// Grayscale drops color. Pair it with ModeGray to get a single channel.
func Grayscale() ImageTransform {
	return func(img image.Image) (image.Image, error) {
		return imaging.Grayscale(img), nil
	}
}

// FlipHorizontal mirrors the image left to right.
func FlipHorizontal() ImageTransform {
	return func(img image.Image) (image.Image, error) {
		return imaging.FlipH(img), nil
	}
}
