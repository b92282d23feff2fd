package datasets

import (
	"fmt"
	"path/filepath"
	"slices"
)

// ImageDataset is a lazily loaded image classification dataset described by
// a CSV manifest. Each manifest row names an image file, relative to the
// image directory, and its label.
//
// The manifest is read once, at construction. Images are decoded on every
// Example call and never cached. The dataset is read-only after
// construction, so concurrent Example calls are safe as long as the
// configured transforms are.
type ImageDataset struct {
	imageDir string
	manifest *Manifest
	opts     Options
}

var (
	_ Dataset = (*ImageDataset)(nil)
	_ Labeled = (*ImageDataset)(nil)
)

// NewImageDataset loads the manifest at manifestPath and returns a dataset
// that resolves its files against imageDir. Image files are not checked
// here: a missing file only fails the Example call that needs it.
func NewImageDataset(manifestPath, imageDir string, opts ...Option) (*ImageDataset, error) {
	o := NewOptions(opts...)
	m, err := ReadManifest(manifestPath, o)
	if err != nil {
		return nil, err
	}
	if o.Name == "" {
		o.Name = fmt.Sprintf("ImageDataset(%s)", filepath.Base(manifestPath))
	}

	o.Logger.Debug().
		Str("manifest", manifestPath).
		Str("image_dir", imageDir).
		Int("rows", m.Len()).
		Int("classes", len(m.Classes)).
		Msg("manifest loaded")

	return &ImageDataset{
		imageDir: imageDir,
		manifest: m,
		opts:     o,
	}, nil
}

// Name returns the name of the dataset.
func (d *ImageDataset) Name() string { return d.opts.Name }

// Len returns the number of manifest rows.
func (d *ImageDataset) Len() int { return d.manifest.Len() }

// Manifest exposes the parsed manifest. Callers must not modify it.
func (d *ImageDataset) Manifest() *Manifest { return d.manifest }

// Path returns the resolved image path for index i.
func (d *ImageDataset) Path(i int) (string, error) {
	if i < 0 || i >= d.Len() {
		return "", &IndexError{Index: i, Len: d.Len()}
	}
	return filepath.Join(d.imageDir, d.manifest.Entries[i].File), nil
}

// Example decodes the image of row i and returns it with the row's label,
// both after the configured transforms.
func (d *ImageDataset) Example(i int) (Sample, error) {
	path, err := d.Path(i)
	if err != nil {
		return Sample{}, err
	}

	img, err := DecodeImageFile(path)
	if err != nil {
		return Sample{}, fmt.Errorf("example %d: %w", i, err)
	}

	sample, err := d.opts.Sample(img, d.manifest.Entries[i].Label)
	if err != nil {
		return Sample{}, fmt.Errorf("example %d (%s): %w", i, d.manifest.Entries[i].File, err)
	}
	return sample, nil
}

// Labels returns every row's label without touching the images.
func (d *ImageDataset) Labels() []int {
	labels := make([]int, d.Len())
	for i, e := range d.manifest.Entries {
		labels[i] = e.Label
	}
	return labels
}

// Classes returns the category names when the manifest used them, or nil
// for integer labels.
func (d *ImageDataset) Classes() []string {
	return slices.Clone(d.manifest.Classes)
}
