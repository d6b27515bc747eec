// Package data produces the token batches the benchmark trains on.
//
// Two sources are available: synthetic batches of uniformly random tokens,
// and batches tokenized from a small embedded text corpus. Both are fully
// deterministic for a given seed, so repeated runs train on identical data.
package data

import (
	"fmt"
	"math/rand"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// Batch is one training example set. Inputs and Targets are int32 token ids
// of shape [batchSize, blockSize]; targets are inputs shifted one position.
type Batch struct {
	Inputs  *tensor.RawTensor
	Targets *tensor.RawTensor
}

// Source yields training batches by step index. Sources cycle, so any step
// index is valid.
type Source interface {
	Batch(step int) Batch
}

// Config describes a batch source.
type Config struct {
	BatchSize  int
	BlockSize  int
	VocabSize  int
	NumBatches int // Distinct batches to pre-generate before cycling.
	Seed       int64
}

func (c Config) validate() error {
	if c.BatchSize <= 0 || c.BlockSize <= 0 || c.VocabSize <= 0 {
		return fmt.Errorf("data: incomplete config %+v", c)
	}
	return nil
}

// synthetic pre-generates uniform random token batches.
type synthetic struct {
	batches []Batch
}

// NewSynthetic creates a source of random token batches.
func NewSynthetic(cfg Config) (Source, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.NumBatches <= 0 {
		cfg.NumBatches = 8
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	s := &synthetic{}
	for i := 0; i < cfg.NumBatches; i++ {
		// Draw one extra token per row so targets are a clean shift.
		rows := make([][]int32, cfg.BatchSize)
		for r := range rows {
			row := make([]int32, cfg.BlockSize+1)
			for j := range row {
				row[j] = int32(rng.Intn(cfg.VocabSize))
			}
			rows[r] = row
		}
		s.batches = append(s.batches, batchFromRows(rows, cfg.BatchSize, cfg.BlockSize))
	}
	return s, nil
}

func (s *synthetic) Batch(step int) Batch {
	return s.batches[step%len(s.batches)]
}

// batchFromRows splits rows of blockSize+1 tokens into input/target tensors.
func batchFromRows(rows [][]int32, batchSize, blockSize int) Batch {
	shape := tensor.Shape{batchSize, blockSize}
	inputs := tensor.MustNewRaw(shape, tensor.Int32, tensor.CPU)
	targets := tensor.MustNewRaw(shape, tensor.Int32, tensor.CPU)
	iv := inputs.AsInt32()
	tv := targets.AsInt32()
	for r, row := range rows {
		copy(iv[r*blockSize:(r+1)*blockSize], row[:blockSize])
		copy(tv[r*blockSize:(r+1)*blockSize], row[1:])
	}
	return Batch{Inputs: inputs, Targets: targets}
}
