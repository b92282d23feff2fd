package config

import (
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Noofbiz/dataloader/datasets"
	"github.com/Noofbiz/dataloader/datasets/fashion"
	"github.com/Noofbiz/dataloader/loader"
	"github.com/Noofbiz/dataloader/simple"
)

// DatasetOptions turns the transform and manifest settings into dataset
// options. It assumes Validate passed.
func (c *Config) DatasetOptions(log zerolog.Logger) []datasets.Option {
	t := c.Transforms
	mode, _ := datasets.ParseImageMode(strings.ToLower(t.Mode))
	opts := []datasets.Option{
		datasets.WithLogger(log),
		datasets.WithImageMode(mode),
		datasets.WithHeader(c.Dataset.Header),
	}
	if c.Dataset.FileColumn != "" || c.Dataset.LabelColumn != "" {
		opts = append(opts, datasets.WithColumns(c.Dataset.FileColumn, c.Dataset.LabelColumn))
	}

	if len(t.Resize) == 2 {
		opts = append(opts, datasets.WithImageTransform(datasets.Resize(t.Resize[0], t.Resize[1])))
	}
	if len(t.CenterCrop) == 2 {
		opts = append(opts, datasets.WithImageTransform(datasets.CenterCrop(t.CenterCrop[0], t.CenterCrop[1])))
	}
	if t.Grayscale {
		opts = append(opts, datasets.WithImageTransform(datasets.Grayscale()))
	}
	if t.FlipHorizontal {
		opts = append(opts, datasets.WithImageTransform(datasets.FlipHorizontal()))
	}

	if t.UnitRange {
		opts = append(opts, datasets.WithTransform(datasets.ToUnitRange()))
	}
	if len(t.Mean) > 0 {
		opts = append(opts, datasets.WithTransform(datasets.Normalize(t.Mean, t.Std)))
	}
	if t.Flatten {
		opts = append(opts, datasets.WithTransform(datasets.Flatten()))
	}
	if t.OneHot > 0 {
		opts = append(opts, datasets.WithTargetTransform(datasets.OneHot(t.OneHot)))
	}
	return opts
}

// OpenDataset opens the configured sample store.
func (c *Config) OpenDataset(log zerolog.Logger) (datasets.Dataset, error) {
	opts := c.DatasetOptions(log)
	if c.Dataset.Kind == KindFashion {
		return fashion.New(c.Dataset.Root, c.Dataset.Train, opts...)
	}
	return datasets.NewImageDataset(c.Dataset.Manifest, c.ImageDir(), opts...)
}

// ImageDir returns the configured image directory, defaulting to the
// manifest's directory.
func (c *Config) ImageDir() string {
	if c.Dataset.ImageDir != "" {
		return c.Dataset.ImageDir
	}
	return filepath.Dir(c.Dataset.Manifest)
}

// LoaderOptions returns the batch iterator options. A zero seed picks a
// time-based one.
func (c *Config) LoaderOptions(log *zerolog.Logger) loader.Options {
	seed := c.Loader.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return loader.Options{
		BatchSize:  c.Loader.BatchSize,
		Shuffle:    c.Loader.Shuffle,
		Rand:       rand.New(rand.NewSource(seed)),
		DropLast:   c.Loader.DropLast,
		NumWorkers: c.Loader.NumWorkers,
		Prefetch:   c.Loader.Prefetch,
		Logger:     log,
	}
}

// ModelConfig returns the classifier configuration for the given input
// size and number of classes.
func (c *Config) ModelConfig(inputDim, numClasses int) simple.Config {
	return simple.Config{
		HiddenSizes:  append([]int(nil), c.Training.HiddenSizes...),
		InputDim:     inputDim,
		NumClasses:   numClasses,
		LearningRate: c.Training.LearningRate,
		Epochs:       c.Training.Epochs,
		Seed:         c.Training.Seed,
		Optimizer:    c.Training.Optimizer,
		ClipNorm:     c.Training.ClipNorm,
	}
}
