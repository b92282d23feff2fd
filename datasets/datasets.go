package datasets

import (
	"image"

	"github.com/rs/zerolog"
)

// This package holds the on-disk dataset abstractions used by the loaders.
//
// A dataset maps an integer index to a Sample. Samples are produced lazily:
// nothing is decoded until Example is called, and nothing decoded is kept,
// so memory use is bounded by the manifest rather than by the images.
//
// Layout and intended usage:
//
// ImageDataset
//   - Reads a CSV manifest (file, label) once at construction
//   - Resolves image paths against an image directory on every Example call
//   - Feature: decoded image as [C, H, W] values in 0..255, then transforms
//   - Label: scalar integer label, then target transforms
//
// fashion.Dataset (sub-package)
//   - FashionMNIST IDX files loaded into memory, same Sample contract
//
// Batching, shuffling and prefetching live in the loader package, which
// only needs the Dataset interface below.
type Dataset interface {
	Name() string
	Len() int
	Example(i int) (Sample, error)
}

// Labeled is implemented by datasets that can report labels without
// decoding their features.
type Labeled interface {
	Labels() []int
	Classes() []string
}

// Sample is a single (feature, label) pair after transforms.
type Sample struct {
	Feature Array
	Label   Array
}

// ImageMode selects the channel layout images are converted to.
type ImageMode int

const (
	// ModeUnchanged keeps grayscale images as 1 channel and turns everything
	// else into 3 RGB channels.
	ModeUnchanged ImageMode = iota
	ModeGray
	ModeRGB
	ModeRGBA
)

func (m ImageMode) String() string {
	switch m {
	case ModeGray:
		return "gray"
	case ModeRGB:
		return "rgb"
	case ModeRGBA:
		return "rgba"
	}
	return "unchanged"
}

// ParseImageMode is the inverse of ImageMode.String. An empty string maps
// to ModeUnchanged.
func ParseImageMode(s string) (ImageMode, bool) {
	switch s {
	case "", "unchanged":
		return ModeUnchanged, true
	case "gray", "grey", "grayscale":
		return ModeGray, true
	case "rgb":
		return ModeRGB, true
	case "rgba":
		return ModeRGBA, true
	}
	return ModeUnchanged, false
}

// Options is the resolved form of the Option values accepted by the dataset
// constructors in this package and its sub-packages.
type Options struct {
	Name            string
	ImageTransform  ImageTransform
	Transform       Transform
	TargetTransform Transform
	Mode            ImageMode

	// Manifest layout.
	Header      bool
	FileColumn  string
	LabelColumn string

	Logger zerolog.Logger
}

// Option configures a dataset.
type Option func(*Options)

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) Options {
	o := Options{Logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithName overrides the dataset name reported by Name.
func WithName(name string) Option {
	return func(o *Options) { o.Name = name }
}

// WithImageTransform appends image transforms, applied to the decoded image
// before it is converted to an Array.
func WithImageTransform(ts ...ImageTransform) Option {
	return func(o *Options) {
		o.ImageTransform = ComposeImage(append([]ImageTransform{o.ImageTransform}, ts...)...)
	}
}

// WithTransform appends feature transforms.
func WithTransform(ts ...Transform) Option {
	return func(o *Options) {
		o.Transform = Compose(append([]Transform{o.Transform}, ts...)...)
	}
}

// WithTargetTransform appends label transforms.
func WithTargetTransform(ts ...Transform) Option {
	return func(o *Options) {
		o.TargetTransform = Compose(append([]Transform{o.TargetTransform}, ts...)...)
	}
}

// WithImageMode sets the channel layout of decoded images.
func WithImageMode(m ImageMode) Option {
	return func(o *Options) { o.Mode = m }
}

// WithHeader tells the manifest reader whether the first row is a header.
// Headers are not detected: without this option a header row is data. The
// reader rejects the common case of a non-integer first label above integer
// labels, but a header over categorical labels becomes a class.
func WithHeader(header bool) Option {
	return func(o *Options) { o.Header = header }
}

// WithColumns selects the file and label columns by header name. It implies
// WithHeader(true).
func WithColumns(file, label string) Option {
	return func(o *Options) {
		o.Header = true
		o.FileColumn = file
		o.LabelColumn = label
	}
}

// WithLogger sets the logger used for debug events.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// Sample runs the configured pipeline on a decoded image and its label:
// image transforms, conversion to Array, feature transform, target
// transform.
func (o Options) Sample(img image.Image, label int) (Sample, error) {
	if o.ImageTransform != nil {
		var err error
		img, err = o.ImageTransform(img)
		if err != nil {
			return Sample{}, err
		}
	}

	feature := ImageToArray(img, o.Mode)
	if o.Transform != nil {
		var err error
		feature, err = o.Transform(feature)
		if err != nil {
			return Sample{}, err
		}
	}

	target := Scalar(float32(label))
	if o.TargetTransform != nil {
		var err error
		target, err = o.TargetTransform(target)
		if err != nil {
			return Sample{}, err
		}
	}

	return Sample{Feature: feature, Label: target}, nil
}
