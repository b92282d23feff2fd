package simple

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const checkpointVersion = 1

// checkpointFormat is the on-disk representation of a trained model.
// Optimizer state is not stored: a loaded model trains on with fresh
// moment estimates.
type checkpointFormat struct {
	Version    int // format version
	CreatedAt  int64
	Config     Config
	LayerSizes []int
	Weights    [][][]float32
	Biases     [][]float32
}

// Save writes the model to path using encoding/gob. It performs an atomic
// write (create temp file then rename).
func (m *Model) Save(path string) error {
	if path == "" {
		return fmt.Errorf("empty checkpoint path")
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	cp := checkpointFormat{
		Version:    checkpointVersion,
		CreatedAt:  time.Now().Unix(),
		Config:     m.Config,
		LayerSizes: m.layerSizes,
		Weights:    m.weights,
		Biases:     m.biases,
	}
	if err := gob.NewEncoder(tmpFile).Encode(&cp); err != nil {
		return fmt.Errorf("encode checkpoint to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		m.log.Warn().Err(err).Str("path", tmpName).Msg("sync temp checkpoint file")
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp checkpoint file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp checkpoint to target: %w", err)
	}
	return nil
}

// LoadModel reads a model written by Save. The layer layout recorded in the
// file is validated against the stored weights before use.
func LoadModel(path string) (*Model, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %s: %w", path, err)
	}
	defer fh.Close()

	var cp checkpointFormat
	if err := gob.NewDecoder(fh).Decode(&cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	if cp.Version != checkpointVersion {
		return nil, fmt.Errorf("checkpoint version mismatch: file=%d expected=%d", cp.Version, checkpointVersion)
	}

	m, err := NewModel(cp.Config)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s config: %w", path, err)
	}
	if !slices.Equal(m.layerSizes, cp.LayerSizes) {
		return nil, fmt.Errorf("checkpoint layer sizes %v do not match config %v", cp.LayerSizes, m.layerSizes)
	}
	if len(cp.Weights) != len(m.weights) || len(cp.Biases) != len(m.biases) {
		return nil, fmt.Errorf("checkpoint has %d weight and %d bias layers, expected %d", len(cp.Weights), len(cp.Biases), len(m.weights))
	}
	for l := range m.weights {
		if len(cp.Biases[l]) != len(m.biases[l]) || len(cp.Weights[l]) != len(m.weights[l]) {
			return nil, fmt.Errorf("checkpoint layer %d has wrong output size", l)
		}
		for j := range m.weights[l] {
			if len(cp.Weights[l][j]) != len(m.weights[l][j]) {
				return nil, fmt.Errorf("checkpoint layer %d row %d has wrong input size", l, j)
			}
		}
	}

	m.weights = cp.Weights
	m.biases = cp.Biases
	m.opt = newOptimizer(m.Config, m.weights, m.biases)
	return m, nil
}
