// Package bench runs the step-time training benchmark: configure the
// framework, train for a fixed number of steps on a small language model,
// time every step, and append the timings as a named column to the shared
// results table.
package bench

import (
	"fmt"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/backend"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/compile"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/nn"
)

// Data source names accepted by Config.DataSource.
const (
	DataSynthetic = "synthetic"
	DataCorpus    = "corpus"
)

// Config declares one benchmark variant: which framework features are
// enabled and where the timings go. Each variant binary fills one of these
// and calls Run.
type Config struct {
	// Name is the column the variant writes to the results table.
	Name string

	Steps       int
	BatchSize   int
	ResultsPath string

	// Warmup is how many leading steps the reported average excludes.
	Warmup int

	// Kernel and precision selection.
	FlashAttention        bool
	MemEfficientAttention bool
	MatmulPrecision       string // "highest", "high" or "medium"

	// Autocast runs forward passes under bfloat16 mixed precision.
	Autocast bool

	// Compile selects the execution transform applied to the model.
	Compile compile.Mode

	// FusedOptimizer selects the single-kernel AdamW update path.
	FusedOptimizer bool
	LR             float32

	Model      nn.Config
	Device     string // "cpu" or "webgpu"
	DataSource string // "synthetic" or "corpus"
	Seed       int64
}

// DefaultModel is the small GPT the benchmark trains. It is deliberately
// tiny; the benchmark measures relative step time across variants, not
// model quality.
func DefaultModel() nn.Config {
	return nn.Config{
		VocabSize: 256,
		BlockSize: 64,
		NumLayers: 2,
		NumHeads:  4,
		EmbedDim:  128,
	}
}

func (c *Config) withDefaults() error {
	if c.Name == "" {
		return fmt.Errorf("bench: config needs a column name")
	}
	if c.Steps <= 0 {
		return fmt.Errorf("bench: steps must be positive, got %d", c.Steps)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("bench: batch size must be positive, got %d", c.BatchSize)
	}
	if c.ResultsPath == "" {
		return fmt.Errorf("bench: config needs a results path")
	}
	if c.MatmulPrecision == "" {
		c.MatmulPrecision = backend.PrecisionHighest
	}
	if c.Compile == "" {
		c.Compile = compile.ModeDefault
	}
	if c.LR == 0 {
		c.LR = 3e-4
	}
	if c.Model == (nn.Config{}) {
		c.Model = DefaultModel()
	}
	if c.Model.Seed == 0 {
		c.Model.Seed = c.Seed
	}
	if c.Device == "" {
		c.Device = "cpu"
	}
	if c.DataSource == "" {
		c.DataSource = DataSynthetic
	}
	return c.Model.Validate()
}
