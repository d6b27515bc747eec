// Command fused-optimizer benchmarks the fully optimized training
// configuration: flash and memory-efficient attention enabled, bfloat16
// autocast, the reduce-overhead compile mode and the fused AdamW update.
// Step timings are appended to the shared results table under the
// "BF16+TC+FA+FuOp" column.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tebeka/atexit"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/bench"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/compile"
)

const columnName = "BF16+TC+FA+FuOp"

// warmupSteps excludes compile warm-up from the reported average.
const warmupSteps = 3

func main() {
	steps := flag.Int("number-of-steps", 0, "number of training steps to time (required)")
	batchSize := flag.Int("batch-size", 0, "training batch size (required)")
	resultsPath := flag.String("results-path", "", "CSV file the timing column is appended to (required)")
	deviceName := flag.String("device", "cpu", "compute device: cpu or webgpu")
	dataSource := flag.String("data", bench.DataSynthetic, "training data: synthetic or corpus")
	seed := flag.Int64("seed", 1337, "seed for weights and data")
	flag.Parse()

	if *steps <= 0 || *batchSize <= 0 || *resultsPath == "" {
		fmt.Fprintln(os.Stderr, "fused-optimizer: -number-of-steps, -batch-size and -results-path are required")
		flag.Usage()
		atexit.Exit(2)
	}

	cfg := bench.Config{
		Name:        columnName,
		Steps:       *steps,
		BatchSize:   *batchSize,
		ResultsPath: *resultsPath,
		Warmup:      warmupSteps,

		FlashAttention:        true,
		MemEfficientAttention: true,
		Autocast:              true,
		Compile:               compile.ModeReduceOverhead,
		FusedOptimizer:        true,

		Device:     *deviceName,
		DataSource: *dataSource,
		Seed:       *seed,
	}
	if _, err := bench.Run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "fused-optimizer:", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
