// Package config holds the YAML configuration shared by the dataloader
// commands: which dataset to read, how to transform it, how to batch it,
// and how to train on it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Noofbiz/dataloader/datasets"
)

// Dataset kinds.
const (
	KindImages  = "images"
	KindFashion = "fashion"
)

// Config captures the runtime knobs for a run.
type Config struct {
	Dataset    DatasetConfig   `yaml:"dataset"`
	Transforms TransformConfig `yaml:"transforms"`
	Loader     LoaderConfig    `yaml:"loader"`
	Training   TrainingConfig  `yaml:"training"`
	Logging    LoggingConfig   `yaml:"logging"`
	OutputDir  string          `yaml:"output_dir"`
}

// DatasetConfig selects the sample store.
type DatasetConfig struct {
	// Kind is "images" (CSV manifest + image directory) or "fashion".
	Kind string `yaml:"kind"`

	// images
	Manifest    string `yaml:"manifest"`
	ImageDir    string `yaml:"image_dir"`
	Header      bool   `yaml:"header"`
	FileColumn  string `yaml:"file_column"`
	LabelColumn string `yaml:"label_column"`

	// fashion
	Root  string `yaml:"root"`
	Train bool   `yaml:"train"`
}

// TransformConfig describes the per-sample pipeline. Image steps run in
// the order resize, center crop, grayscale, flip.
type TransformConfig struct {
	Mode           string    `yaml:"mode"`
	Resize         []int     `yaml:"resize,omitempty"`
	CenterCrop     []int     `yaml:"center_crop,omitempty"`
	Grayscale      bool      `yaml:"grayscale"`
	FlipHorizontal bool      `yaml:"flip_horizontal"`
	UnitRange      bool      `yaml:"unit_range"`
	Mean           []float32 `yaml:"mean,omitempty"`
	Std            []float32 `yaml:"std,omitempty"`
	Flatten        bool      `yaml:"flatten"`
	OneHot         int       `yaml:"one_hot"`
}

// LoaderConfig mirrors loader.Options.
type LoaderConfig struct {
	BatchSize  int   `yaml:"batch_size"`
	Shuffle    bool  `yaml:"shuffle"`
	DropLast   bool  `yaml:"drop_last"`
	NumWorkers int   `yaml:"num_workers"`
	Prefetch   int   `yaml:"prefetch"`
	Seed       int64 `yaml:"seed"`
}

// TrainingConfig mirrors simple.Config.
type TrainingConfig struct {
	HiddenSizes  []int   `yaml:"hidden_sizes"`
	LearningRate float64 `yaml:"learning_rate"`
	Epochs       int     `yaml:"epochs"`
	Optimizer    string  `yaml:"optimizer"`
	ClipNorm     float32 `yaml:"clip_norm"`
	Seed         int64   `yaml:"seed"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Overrides captures CLI supplied values. Zero values leave the config
// untouched.
type Overrides struct {
	Manifest    string
	ImageDir    string
	FashionRoot string
	BatchSize   int
	NumWorkers  int
	Seed        int64
	Epochs      int
	OutputDir   string
	LogLevel    string
	LogFormat   string
	Shuffle     *bool
}

// Default returns the configuration used when no file is given: a
// FashionMNIST-shaped pipeline over an images dataset.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Kind:  KindImages,
			Train: true,
		},
		Transforms: TransformConfig{
			UnitRange: true,
			Flatten:   true,
		},
		Loader: LoaderConfig{
			BatchSize: 64,
			Shuffle:   true,
			Prefetch:  2,
		},
		Training: TrainingConfig{
			HiddenSizes:  []int{128},
			LearningRate: 0.001,
			Epochs:       5,
			Optimizer:    "adam",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		OutputDir: "output",
	}
}

// Load reads a Config from YAML over the defaults and validates it.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile is Load without validation, for callers that apply overrides
// before validating.
func ReadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults without validating.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// YAML encodes the config, e.g. to record the settings of a run.
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ApplyOverrides updates c using any non-zero override. Setting a manifest
// or a fashion root also switches the dataset kind.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Manifest != "" {
		c.Dataset.Kind = KindImages
		c.Dataset.Manifest = o.Manifest
	}
	if o.ImageDir != "" {
		c.Dataset.ImageDir = o.ImageDir
	}
	if o.FashionRoot != "" {
		c.Dataset.Kind = KindFashion
		c.Dataset.Root = o.FashionRoot
	}
	if o.BatchSize > 0 {
		c.Loader.BatchSize = o.BatchSize
	}
	if o.NumWorkers > 0 {
		c.Loader.NumWorkers = o.NumWorkers
	}
	if o.Seed != 0 {
		c.Loader.Seed = o.Seed
		c.Training.Seed = o.Seed
	}
	if o.Epochs > 0 {
		c.Training.Epochs = o.Epochs
	}
	if o.OutputDir != "" {
		c.OutputDir = o.OutputDir
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		c.Logging.Format = o.LogFormat
	}
	if o.Shuffle != nil {
		c.Loader.Shuffle = *o.Shuffle
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	var errs []error
	switch c.Dataset.Kind {
	case KindImages:
		if c.Dataset.Manifest == "" {
			errs = append(errs, errors.New("dataset.manifest is required for kind images"))
		}
	case KindFashion:
		if c.Dataset.Root == "" {
			errs = append(errs, errors.New("dataset.root is required for kind fashion"))
		}
	default:
		errs = append(errs, fmt.Errorf("dataset.kind must be %q or %q (got %q)", KindImages, KindFashion, c.Dataset.Kind))
	}

	if _, ok := datasets.ParseImageMode(strings.ToLower(c.Transforms.Mode)); !ok {
		errs = append(errs, fmt.Errorf("transforms.mode %q is not one of unchanged, gray, rgb, rgba", c.Transforms.Mode))
	}
	if err := checkSize("transforms.resize", c.Transforms.Resize); err != nil {
		errs = append(errs, err)
	}
	if err := checkSize("transforms.center_crop", c.Transforms.CenterCrop); err != nil {
		errs = append(errs, err)
	}
	if (len(c.Transforms.Mean) == 0) != (len(c.Transforms.Std) == 0) {
		errs = append(errs, errors.New("transforms.mean and transforms.std must be set together"))
	}
	for _, s := range c.Transforms.Std {
		if s == 0 {
			errs = append(errs, errors.New("transforms.std must not contain zeros"))
			break
		}
	}
	if c.Transforms.OneHot < 0 {
		errs = append(errs, fmt.Errorf("transforms.one_hot must be >= 0 (got %d)", c.Transforms.OneHot))
	}

	if c.Loader.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("loader.batch_size must be > 0 (got %d)", c.Loader.BatchSize))
	}
	if c.Loader.NumWorkers < 0 {
		errs = append(errs, fmt.Errorf("loader.num_workers must be >= 0 (got %d)", c.Loader.NumWorkers))
	}
	if c.Loader.Prefetch < 0 {
		errs = append(errs, fmt.Errorf("loader.prefetch must be >= 0 (got %d)", c.Loader.Prefetch))
	}

	if c.Training.Epochs <= 0 {
		errs = append(errs, fmt.Errorf("training.epochs must be > 0 (got %d)", c.Training.Epochs))
	}
	if c.Training.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("training.learning_rate must be > 0 (got %g)", c.Training.LearningRate))
	}
	switch c.Training.Optimizer {
	case "", "adam", "sgd":
	default:
		errs = append(errs, fmt.Errorf("training.optimizer must be adam or sgd (got %q)", c.Training.Optimizer))
	}

	switch c.Logging.Format {
	case "", "auto", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be auto, console or json (got %q)", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func checkSize(field string, size []int) error {
	if len(size) == 0 {
		return nil
	}
	if len(size) != 2 || size[0] <= 0 || size[1] <= 0 {
		return fmt.Errorf("%s must be [width, height] with positive values (got %v)", field, size)
	}
	return nil
}
