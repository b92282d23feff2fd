package simple

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/Noofbiz/dataloader/datasets"
)

// Config holds configurable hyperparameters for the MLP classifier and its
// training.
type Config struct {
	// HiddenSizes is the list of hidden layer sizes. Example: []int{64, 32}
	// If empty, a single hidden layer of size 64 will be used.
	HiddenSizes []int

	// InputDim is the number of values per example once flattened, e.g. 784
	// for 28x28 grayscale images. Required.
	InputDim int

	// NumClasses is the size of the output layer. Defaults to 10.
	NumClasses int

	// LearningRate used by the optimizer (SGD or Adam).
	LearningRate float64

	// Epochs to train for (default if 0 will be set by NewModel to 10).
	Epochs int

	// Seed controls RNG for weight init. If zero, time-based seed is used.
	// Shuffling belongs to the batch source.
	Seed int64

	// Optimizer selects the optimizer to use: "adam" or "sgd". Default: "adam".
	Optimizer string

	// Adam hyperparameters (used when Optimizer == "adam"; defaults below if zero).
	Beta1   float64
	Beta2   float64
	Epsilon float64

	// ClipNorm bounds the global L2 norm of each update's gradients. Zero
	// selects the default of 5; a negative value disables clipping.
	ClipNorm float32
}

const (
	OptimizerSGD  = "sgd"
	OptimizerAdam = "adam"
)

// Model is a small configurable MLP classifier: ReLU hidden layers and a
// softmax output trained with cross-entropy. It is implemented in pure Go
// so tests run quickly and deterministically.
type Model struct {
	// Config used for training / initialization, with defaults filled in.
	Config Config

	// layerSizes includes input size, hidden sizes, then output size.
	layerSizes []int

	// weights[l] is a matrix of shape [out][in] for layer l -> l+1
	weights [][][]float32

	// biases[l] is a vector of length out for layer l -> l+1
	biases [][]float32

	// rng used for weight initialization
	rng *rand.Rand

	opt optimizer
	log zerolog.Logger
}

// NewModel creates a new Model instance with the provided configuration.
// It initializes weights (small random values) and is ready to train.
func NewModel(cfg Config) (*Model, error) {
	cfg, err := withDefaults(cfg)
	if err != nil {
		return nil, err
	}

	m := &Model{
		Config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		log:    zerolog.Nop(),
	}

	// build layer sizes
	sizes := make([]int, 0, 2+len(cfg.HiddenSizes))
	sizes = append(sizes, cfg.InputDim)
	sizes = append(sizes, cfg.HiddenSizes...)
	sizes = append(sizes, cfg.NumClasses)
	m.layerSizes = sizes

	// allocate weights and biases
	L := len(sizes) - 1
	m.weights = make([][][]float32, L)
	m.biases = make([][]float32, L)
	for l := 0; l < L; l++ {
		in := sizes[l]
		out := sizes[l+1]
		// Xavier/Glorot uniform initialization heuristic
		limit := float32(math.Sqrt(6.0 / float64(in+out)))
		mat := make([][]float32, out)
		for j := 0; j < out; j++ {
			row := make([]float32, in)
			for i := 0; i < in; i++ {
				row[i] = (m.rng.Float32()*2.0 - 1.0) * limit
			}
			mat[j] = row
		}
		m.weights[l] = mat
		m.biases[l] = make([]float32, out)
	}

	m.opt = newOptimizer(cfg, m.weights, m.biases)
	return m, nil
}

func withDefaults(cfg Config) (Config, error) {
	if cfg.InputDim <= 0 {
		return cfg, errors.New("input dimension must be > 0")
	}
	if len(cfg.HiddenSizes) == 0 {
		cfg.HiddenSizes = []int{64}
	}
	for i, h := range cfg.HiddenSizes {
		if h <= 0 {
			return cfg, fmt.Errorf("hidden layer %d has size %d", i, h)
		}
	}
	if cfg.NumClasses == 0 {
		cfg.NumClasses = 10
	}
	if cfg.NumClasses < 2 {
		return cfg, fmt.Errorf("need at least 2 classes, got %d", cfg.NumClasses)
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 10
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	switch cfg.Optimizer {
	case "":
		cfg.Optimizer = OptimizerAdam
	case OptimizerAdam, OptimizerSGD:
	default:
		return cfg, fmt.Errorf("unknown optimizer %q", cfg.Optimizer)
	}
	if cfg.Beta1 == 0 {
		cfg.Beta1 = 0.9
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = 0.999
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1e-8
	}
	if cfg.ClipNorm == 0 {
		cfg.ClipNorm = 5
	}
	return cfg, nil
}

// SetLogger sets the logger used for per-epoch progress.
func (m *Model) SetLogger(l zerolog.Logger) { m.log = l }

// activationReLU applies ReLU in-place over the slice.
func activationReLU(x []float32) {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
}

// softmax replaces logits with probabilities.
func softmax(x []float32) {
	maxV := x[0]
	for _, v := range x[1:] {
		maxV = max(maxV, v)
	}
	var sum float64
	for i, v := range x {
		e := math.Exp(float64(v - maxV))
		x[i] = float32(e)
		sum += e
	}
	for i := range x {
		x[i] = float32(float64(x[i]) / sum)
	}
}

// forwardSingle performs a forward pass for a single input vector, returning:
// - preActivations: list of pre-activation vectors per layer (len = L)
// - activations: list of activation vectors per layer (len = L+1, activations[0] = input)
// The last activation holds class probabilities.
func (m *Model) forwardSingle(input []float32) (preActs [][]float32, acts [][]float32) {
	L := len(m.weights)
	acts = make([][]float32, L+1)
	acts[0] = input

	preActs = make([][]float32, L)
	for l := 0; l < L; l++ {
		inVec := acts[l]
		W := m.weights[l]
		b := m.biases[l]
		pre := make([]float32, len(b))
		for j := range pre {
			sum := b[j]
			for i, w := range W[j] {
				sum += w * inVec[i]
			}
			pre[j] = sum
		}
		preActs[l] = pre

		act := make([]float32, len(pre))
		copy(act, pre)
		if l < L-1 {
			activationReLU(act)
		} else {
			softmax(act)
		}
		acts[l+1] = act
	}
	return preActs, acts
}

// rows splits a [B, ...] feature array into B flat rows of InputDim values.
func (m *Model) rows(features datasets.Array) ([][]float32, error) {
	if features.Rank() == 0 {
		return nil, errors.New("features must have a leading batch dimension")
	}
	n := features.Shape[0]
	if n == 0 {
		return nil, nil
	}
	dim := features.Size() / n
	if dim != m.layerSizes[0] {
		return nil, fmt.Errorf("input has incorrect dimension: shape %v gives %d values per example, model expects %d",
			features.Shape, dim, m.layerSizes[0])
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = features.Data[i*dim : (i+1)*dim]
	}
	return out, nil
}

// targets turns a batch of labels into per-example probability targets.
// Labels are either class indices of shape [B] (or [B, 1]) or one-hot /
// soft targets of shape [B, NumClasses].
func (m *Model) targets(labels datasets.Array, n int) ([][]float32, error) {
	classes := m.layerSizes[len(m.layerSizes)-1]
	out := make([][]float32, n)
	switch {
	case labels.Size() == n && (labels.Rank() == 1 || (labels.Rank() == 2 && labels.Shape[1] == 1)):
		for i, v := range labels.Data {
			c := int(v)
			if float32(c) != v || c < 0 || c >= classes {
				return nil, fmt.Errorf("%w: %v for %d classes", datasets.ErrLabelOutOfRange, v, classes)
			}
			t := make([]float32, classes)
			t[c] = 1
			out[i] = t
		}
	case labels.Rank() == 2 && labels.Shape[0] == n && labels.Shape[1] == classes:
		for i := range out {
			out[i] = labels.Data[i*classes : (i+1)*classes]
		}
	default:
		return nil, fmt.Errorf("labels of shape %v do not match %d examples and %d classes", labels.Shape, n, classes)
	}
	return out, nil
}

func argmax(x []float32) int {
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return best
}

// Probabilities returns the class probabilities for each example of a
// [B, ...] feature batch.
func (m *Model) Probabilities(features datasets.Array) ([][]float32, error) {
	rows, err := m.rows(features)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(rows))
	for i, in := range rows {
		_, acts := m.forwardSingle(in)
		out[i] = acts[len(acts)-1]
	}
	return out, nil
}

// Predict returns the most likely class for each example of a [B, ...]
// feature batch.
func (m *Model) Predict(features datasets.Array) ([]int, error) {
	probs, err := m.Probabilities(features)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(probs))
	for i, p := range probs {
		out[i] = argmax(p)
	}
	return out, nil
}
