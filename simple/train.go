package simple

import (
	"context"
	"errors"
	"io"
	"math"
	"time"

	"github.com/Noofbiz/dataloader/loader"
)

// Batches is the minimal interface the trainer needs from a batch source.
// *loader.Loader implements it.
type Batches interface {
	Reset()
	Next(ctx context.Context) (*loader.Batch, error)
}

var _ Batches = (*loader.Loader)(nil)

// EpochStats summarizes one training epoch. Loss is the mean cross-entropy
// and Accuracy the fraction of correct predictions, both measured on the
// training batches as they were seen (before each update).
type EpochStats struct {
	Epoch    int
	Loss     float64
	Accuracy float64
	Samples  int
	Batches  int
	Duration time.Duration
}

// EvalStats summarizes a pass over a batch source without updates.
type EvalStats struct {
	Loss     float64
	Accuracy float64
	Samples  int
}

// Train runs Config.Epochs epochs over src. Each epoch resets src and pulls
// batches until io.EOF, applying one optimizer step per batch. onEpoch, if
// not nil, is called after every epoch. The stats of completed epochs are
// returned even when training stops early with an error.
func (m *Model) Train(ctx context.Context, src Batches, onEpoch func(EpochStats)) ([]EpochStats, error) {
	if src == nil {
		return nil, errors.New("batch source is nil")
	}

	history := make([]EpochStats, 0, m.Config.Epochs)
	for ep := 1; ep <= m.Config.Epochs; ep++ {
		start := time.Now()
		src.Reset()

		var (
			lossSum float64
			correct int
			stats   = EpochStats{Epoch: ep}
		)
		for {
			b, err := src.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				return history, err
			}
			loss, hits, err := m.step(b)
			if err != nil {
				return history, err
			}
			lossSum += loss
			correct += hits
			stats.Samples += b.Size()
			stats.Batches++
		}
		if stats.Samples == 0 {
			return history, errors.New("batch source produced no examples")
		}

		stats.Loss = lossSum / float64(stats.Samples)
		stats.Accuracy = float64(correct) / float64(stats.Samples)
		stats.Duration = time.Since(start)
		history = append(history, stats)

		m.log.Info().
			Int("epoch", ep).
			Int("epochs", m.Config.Epochs).
			Float64("loss", stats.Loss).
			Float64("accuracy", stats.Accuracy).
			Dur("duration", stats.Duration).
			Msg("epoch done")
		if onEpoch != nil {
			onEpoch(stats)
		}
	}
	return history, nil
}

// Evaluate measures loss and accuracy over one epoch of src.
func (m *Model) Evaluate(ctx context.Context, src Batches) (EvalStats, error) {
	src.Reset()
	var (
		stats   EvalStats
		lossSum float64
		correct int
	)
	for {
		b, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, err
		}
		rows, err := m.rows(b.Features)
		if err != nil {
			return stats, err
		}
		targets, err := m.targets(b.Labels, len(rows))
		if err != nil {
			return stats, err
		}
		for i, in := range rows {
			_, acts := m.forwardSingle(in)
			probs := acts[len(acts)-1]
			lossSum += crossEntropy(probs, targets[i])
			if argmax(probs) == argmax(targets[i]) {
				correct++
			}
		}
		stats.Samples += len(rows)
	}
	if stats.Samples > 0 {
		stats.Loss = lossSum / float64(stats.Samples)
		stats.Accuracy = float64(correct) / float64(stats.Samples)
	}
	return stats, nil
}

func crossEntropy(probs, target []float32) float64 {
	var loss float64
	for k, t := range target {
		if t != 0 {
			loss -= float64(t) * math.Log(math.Max(float64(probs[k]), 1e-12))
		}
	}
	return loss
}

// step accumulates gradients over one batch and applies the optimizer. It
// returns the summed loss and the number of correct predictions, both
// computed before the update.
func (m *Model) step(b *loader.Batch) (float64, int, error) {
	inputs, err := m.rows(b.Features)
	if err != nil {
		return 0, 0, err
	}
	batchN := len(inputs)
	if batchN == 0 {
		return 0, 0, nil
	}
	labels, err := m.targets(b.Labels, batchN)
	if err != nil {
		return 0, 0, err
	}

	// Initialize gradient accumulators (same shape as weights / biases)
	L := len(m.weights)
	gradW := make([][][]float32, L)
	gradB := make([][]float32, L)
	for l := 0; l < L; l++ {
		gradW[l] = make([][]float32, len(m.biases[l]))
		for j := range gradW[l] {
			gradW[l][j] = make([]float32, len(m.weights[l][j]))
		}
		gradB[l] = make([]float32, len(m.biases[l]))
	}

	var (
		loss    float64
		correct int
	)
	for ex := 0; ex < batchN; ex++ {
		preacts, acts := m.forwardSingle(inputs[ex])
		probs := acts[len(acts)-1]
		target := labels[ex]
		loss += crossEntropy(probs, target)
		if argmax(probs) == argmax(target) {
			correct++
		}

		// dLoss/dLogits = probs - target for softmax cross-entropy
		delta := make([]float32, len(probs))
		for j := range delta {
			delta[j] = probs[j] - target[j]
		}

		// Backprop to compute gradients, accumulate into gradW/gradB
		for l := L - 1; l >= 0; l-- {
			inAct := acts[l]
			for j, d := range delta {
				if d == 0 {
					continue
				}
				gradB[l][j] += d
				row := gradW[l][j]
				for i, a := range inAct {
					row[i] += d * a
				}
			}

			// propagate delta to previous layer through the ReLU
			if l > 0 {
				prev := preacts[l-1]
				newDelta := make([]float32, len(prev))
				for i := range newDelta {
					if prev[i] <= 0 {
						continue
					}
					var sum float32
					for j, d := range delta {
						sum += m.weights[l][j][i] * d
					}
					newDelta[i] = sum
				}
				delta = newDelta
			}
		}
	}

	// Average over the minibatch, clip, update.
	bInv := float32(1.0 / float64(batchN))
	var sq float64
	for l := 0; l < L; l++ {
		for j := range gradB[l] {
			gradB[l][j] *= bInv
			sq += float64(gradB[l][j] * gradB[l][j])
			for i := range gradW[l][j] {
				gradW[l][j][i] *= bInv
				sq += float64(gradW[l][j][i] * gradW[l][j][i])
			}
		}
	}
	if clip := float64(m.Config.ClipNorm); clip > 0 {
		if norm := math.Sqrt(sq); norm > clip {
			scale := float32(clip / norm)
			for l := 0; l < L; l++ {
				for j := range gradB[l] {
					gradB[l][j] *= scale
					for i := range gradW[l][j] {
						gradW[l][j][i] *= scale
					}
				}
			}
		}
	}

	m.opt.apply(m.weights, m.biases, gradW, gradB)
	return loss, correct, nil
}

// optimizer applies averaged gradients to the parameters in place.
type optimizer interface {
	apply(weights [][][]float32, biases [][]float32, gradW [][][]float32, gradB [][]float32)
}

func newOptimizer(cfg Config, weights [][][]float32, biases [][]float32) optimizer {
	if cfg.Optimizer == OptimizerSGD {
		return &sgd{lr: float32(cfg.LearningRate)}
	}
	return newAdam(cfg, weights, biases)
}

type sgd struct {
	lr float32
}

func (o *sgd) apply(weights [][][]float32, biases [][]float32, gradW [][][]float32, gradB [][]float32) {
	for l := range weights {
		for j := range biases[l] {
			biases[l][j] -= o.lr * gradB[l][j]
			for i := range weights[l][j] {
				weights[l][j][i] -= o.lr * gradW[l][j][i]
			}
		}
	}
}

// adam keeps first and second moment estimates per parameter.
type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	mW, vW                [][][]float32
	mB, vB                [][]float32
}

func newAdam(cfg Config, weights [][][]float32, biases [][]float32) *adam {
	a := &adam{
		lr:    cfg.LearningRate,
		beta1: cfg.Beta1,
		beta2: cfg.Beta2,
		eps:   cfg.Epsilon,
		mW:    make([][][]float32, len(weights)),
		vW:    make([][][]float32, len(weights)),
		mB:    make([][]float32, len(biases)),
		vB:    make([][]float32, len(biases)),
	}
	for l := range weights {
		a.mW[l] = make([][]float32, len(weights[l]))
		a.vW[l] = make([][]float32, len(weights[l]))
		for j := range weights[l] {
			a.mW[l][j] = make([]float32, len(weights[l][j]))
			a.vW[l][j] = make([]float32, len(weights[l][j]))
		}
		a.mB[l] = make([]float32, len(biases[l]))
		a.vB[l] = make([]float32, len(biases[l]))
	}
	return a
}

func (a *adam) apply(weights [][][]float32, biases [][]float32, gradW [][][]float32, gradB [][]float32) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	b1, b2 := float32(a.beta1), float32(a.beta2)

	update := func(p, m, v *float32, g float32) {
		*m = b1**m + (1-b1)*g
		*v = b2**v + (1-b2)*g*g
		mHat := float64(*m) / c1
		vHat := float64(*v) / c2
		*p -= float32(a.lr * mHat / (math.Sqrt(vHat) + a.eps))
	}
	for l := range weights {
		for j := range biases[l] {
			update(&biases[l][j], &a.mB[l][j], &a.vB[l][j], gradB[l][j])
			for i := range weights[l][j] {
				update(&weights[l][j][i], &a.mW[l][j][i], &a.vW[l][j][i], gradW[l][j][i])
			}
		}
	}
}
