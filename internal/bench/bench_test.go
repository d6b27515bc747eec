package bench

import (
	"path/filepath"
	"testing"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/backend"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/compile"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/nn"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/results"
)

func tinyModel() nn.Config {
	return nn.Config{
		VocabSize: 16,
		BlockSize: 4,
		NumLayers: 1,
		NumHeads:  2,
		EmbedDim:  8,
	}
}

func baselineConfig(resultsPath string) Config {
	return Config{
		Name:        "TF32",
		Steps:       5,
		BatchSize:   2,
		ResultsPath: resultsPath,
		Warmup:      1,

		MatmulPrecision: backend.PrecisionHigh,
		Model:           tinyModel(),
		Seed:            1337,
	}
}

func optimizedConfig(resultsPath string) Config {
	return Config{
		Name:        "BF16+TC+FA+FuOp",
		Steps:       5,
		BatchSize:   2,
		ResultsPath: resultsPath,
		Warmup:      3,

		FlashAttention:        true,
		MemEfficientAttention: true,
		Autocast:              true,
		Compile:               compile.ModeReduceOverhead,
		FusedOptimizer:        true,

		Model: tinyModel(),
		Seed:  1337,
	}
}

func TestRunProducesOneTimingPerStep(t *testing.T) {
	defer backend.Reset()
	path := filepath.Join(t.TempDir(), "results.csv")

	report, err := Run(baselineConfig(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Times) != 5 {
		t.Fatalf("%d timings for 5 steps", len(report.Times))
	}
	for i, dt := range report.Times {
		if dt < 0 {
			t.Errorf("step %d has negative time %g", i, dt)
		}
	}
	if len(report.Losses) != 5 {
		t.Errorf("%d losses for 5 steps", len(report.Losses))
	}
	for i, l := range report.Losses {
		if l != l || l <= 0 {
			t.Errorf("step %d loss = %g", i, l)
		}
	}
	if report.AvgMS != AverageExcludingWarmup(report.Times, 1) {
		t.Error("report average does not exclude warmup")
	}
	if report.Launches <= 0 {
		t.Error("no kernel launches recorded")
	}
}

func TestRunWritesColumnToResultsTable(t *testing.T) {
	defer backend.Reset()
	path := filepath.Join(t.TempDir(), "results.csv")

	report, err := Run(baselineConfig(path))
	if err != nil {
		t.Fatal(err)
	}

	table, err := results.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	col, ok := table.Column("TF32")
	if !ok {
		t.Fatal("TF32 column missing")
	}
	if len(col) != 5 {
		t.Fatalf("column has %d rows, want 5", len(col))
	}
	for i := range col {
		if col[i] != report.Times[i] {
			t.Fatalf("saved column %v differs from report %v", col, report.Times)
		}
	}
}

func TestSecondVariantAppendsColumn(t *testing.T) {
	defer backend.Reset()
	path := filepath.Join(t.TempDir(), "results.csv")

	first, err := Run(baselineConfig(path))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Run(optimizedConfig(path)); err != nil {
		t.Fatal(err)
	}

	table, err := results.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	cols := table.Columns()
	if len(cols) != 2 || cols[0] != "TF32" || cols[1] != "BF16+TC+FA+FuOp" {
		t.Fatalf("columns = %v", cols)
	}
	tf32, _ := table.Column("TF32")
	for i := range tf32 {
		if tf32[i] != first.Times[i] {
			t.Fatal("second run altered the first variant's column")
		}
	}
}

func TestOptimizedVariantProducesBFloat16Logits(t *testing.T) {
	defer backend.Reset()
	path := filepath.Join(t.TempDir(), "results.csv")

	report, err := Run(optimizedConfig(path))
	if err != nil {
		t.Fatal(err)
	}
	if report.LogitsDType != "bfloat16" {
		t.Errorf("logits dtype = %s, want bfloat16", report.LogitsDType)
	}
}

func TestBaselineVariantProducesFloat32Logits(t *testing.T) {
	defer backend.Reset()
	path := filepath.Join(t.TempDir(), "results.csv")

	report, err := Run(baselineConfig(path))
	if err != nil {
		t.Fatal(err)
	}
	if report.LogitsDType != "float32" {
		t.Errorf("logits dtype = %s, want float32", report.LogitsDType)
	}
}

func TestSameSeedGivesSameLossTrajectory(t *testing.T) {
	defer backend.Reset()

	r1, err := Run(baselineConfig(filepath.Join(t.TempDir(), "a.csv")))
	if err != nil {
		t.Fatal(err)
	}
	r2, err := Run(baselineConfig(filepath.Join(t.TempDir(), "b.csv")))
	if err != nil {
		t.Fatal(err)
	}
	for i := range r1.Losses {
		if r1.Losses[i] != r2.Losses[i] {
			t.Fatalf("step %d: loss %g vs %g with the same seed", i, r1.Losses[i], r2.Losses[i])
		}
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	defer backend.Reset()
	path := filepath.Join(t.TempDir(), "results.csv")

	cfg := baselineConfig(path)
	cfg.Steps = 0
	if _, err := Run(cfg); err == nil {
		t.Error("zero steps accepted")
	}

	cfg = baselineConfig(path)
	cfg.Name = ""
	if _, err := Run(cfg); err == nil {
		t.Error("missing column name accepted")
	}

	cfg = baselineConfig(path)
	cfg.Device = "tpu"
	if _, err := Run(cfg); err == nil {
		t.Error("unknown device accepted")
	}

	cfg = baselineConfig(path)
	cfg.MatmulPrecision = "ultra"
	if _, err := Run(cfg); err == nil {
		t.Error("unknown precision accepted")
	}
}
