// Package fashion reads the FashionMNIST dataset from its IDX files and
// serves it through the same Dataset contract as datasets.ImageDataset.
//
// The files are not downloaded: they must already be on disk, either
// directly under the root directory or under root/FashionMNIST/raw, the
// layout torchvision leaves behind. Both the gzipped and the uncompressed
// variants are accepted.
package fashion

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/Noofbiz/dataloader/datasets"
)

// Classes are the FashionMNIST class names, indexed by label.
var Classes = []string{
	"T-shirt/top",
	"Trouser",
	"Pullover",
	"Dress",
	"Coat",
	"Sandal",
	"Shirt",
	"Sneaker",
	"Bag",
	"Ankle boot",
}

const (
	trainPrefix = "train"
	testPrefix  = "t10k"
)

// Dataset holds one FashionMNIST split in memory, about 47MB for the
// training split. Examples are built on demand.
type Dataset struct {
	images *IDX
	labels []byte
	opts   datasets.Options
}

var (
	_ datasets.Dataset = (*Dataset)(nil)
	_ datasets.Labeled = (*Dataset)(nil)
)

// New loads the training split (train=true) or the test split from root.
func New(root string, train bool, opts ...datasets.Option) (*Dataset, error) {
	o := datasets.NewOptions(opts...)
	prefix := testPrefix
	split := "test"
	if train {
		prefix = trainPrefix
		split = "train"
	}
	if o.Name == "" {
		o.Name = fmt.Sprintf("FashionMNIST(%s)", split)
	}

	imagesPath, err := locate(root, prefix+"-images-idx3-ubyte")
	if err != nil {
		return nil, err
	}
	labelsPath, err := locate(root, prefix+"-labels-idx1-ubyte")
	if err != nil {
		return nil, err
	}

	images, err := ReadIDXFile(imagesPath)
	if err != nil {
		return nil, err
	}
	if len(images.Dims) != 3 {
		return nil, errors.Errorf("%s: images must have 3 dimensions, got %v", imagesPath, images.Dims)
	}
	labels, err := ReadIDXFile(labelsPath)
	if err != nil {
		return nil, err
	}
	if len(labels.Dims) != 1 {
		return nil, errors.Errorf("%s: labels must have 1 dimension, got %v", labelsPath, labels.Dims)
	}
	if images.Len() != labels.Len() {
		return nil, errors.Errorf("%d images but %d labels in %s", images.Len(), labels.Len(), root)
	}

	o.Logger.Debug().
		Str("images", imagesPath).
		Str("labels", labelsPath).
		Int("rows", images.Len()).
		Ints("dims", images.Dims).
		Msg("fashion split loaded")

	return &Dataset{images: images, labels: labels.Data, opts: o}, nil
}

// locate finds name, or name.gz, under root or root/FashionMNIST/raw.
func locate(root, name string) (string, error) {
	for _, dir := range []string{root, filepath.Join(root, "FashionMNIST", "raw")} {
		for _, file := range []string{name, name + ".gz"} {
			path := filepath.Join(dir, file)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}
	return "", errors.Wrapf(os.ErrNotExist, "%s(.gz) not found under %s", name, root)
}

func (d *Dataset) Name() string { return d.opts.Name }

func (d *Dataset) Len() int { return d.images.Len() }

// Example returns image i as a [1, H, W] feature (before transforms) and its
// label.
func (d *Dataset) Example(i int) (datasets.Sample, error) {
	if i < 0 || i >= d.Len() {
		return datasets.Sample{}, &datasets.IndexError{Index: i, Len: d.Len()}
	}
	sample, err := d.opts.Sample(d.Image(i), int(d.labels[i]))
	if err != nil {
		return datasets.Sample{}, fmt.Errorf("example %d: %w", i, err)
	}
	return sample, nil
}

// Image returns image i as a grayscale image. It panics if i is out of
// range.
func (d *Dataset) Image(i int) *image.Gray {
	h, w := d.images.Dims[1], d.images.Dims[2]
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, d.images.Item(i))
	return img
}

func (d *Dataset) Labels() []int {
	labels := make([]int, len(d.labels))
	for i, l := range d.labels {
		labels[i] = int(l)
	}
	return labels
}

func (d *Dataset) Classes() []string {
	return append([]string(nil), Classes...)
}
