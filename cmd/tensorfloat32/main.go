// Command tensorfloat32 benchmarks the TF32 baseline configuration: flash
// and memory-efficient attention disabled (the math kernel runs), float32
// matmul precision set to "high", no autocast, no compile transform and the
// unfused optimizer. Step timings are appended to ./results.csv under the
// "TF32" column.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tebeka/atexit"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/backend"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/bench"
)

const columnName = "TF32"

const (
	batchSize   = 256
	resultsPath = "./results.csv"

	// Only the first step pays one-time setup cost in this configuration.
	warmupSteps = 1
)

func main() {
	steps := flag.Int("number-of-steps", 0, "number of training steps to time (required)")
	deviceName := flag.String("device", "cpu", "compute device: cpu or webgpu")
	dataSource := flag.String("data", bench.DataSynthetic, "training data: synthetic or corpus")
	seed := flag.Int64("seed", 1337, "seed for weights and data")
	flag.Parse()

	if *steps <= 0 {
		fmt.Fprintln(os.Stderr, "tensorfloat32: -number-of-steps is required")
		flag.Usage()
		atexit.Exit(2)
	}

	cfg := bench.Config{
		Name:        columnName,
		Steps:       *steps,
		BatchSize:   batchSize,
		ResultsPath: resultsPath,
		Warmup:      warmupSteps,

		FlashAttention:        false,
		MemEfficientAttention: false,
		MatmulPrecision:       backend.PrecisionHigh,

		Device:     *deviceName,
		DataSource: *dataSource,
		Seed:       *seed,
	}
	if _, err := bench.Run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "tensorfloat32:", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
