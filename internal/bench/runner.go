package bench

import (
	"fmt"
	"math"
	"time"

	"github.com/tebeka/atexit"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/amp"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/autodiff"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/backend"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/backend/cpu"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/backend/webgpu"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/compile"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/data"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/device"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/nn"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/optim"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/results"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// Report holds the outcome of one benchmark run.
type Report struct {
	Column      string
	Times       []float64 // Per-step wall time in ms, rounded to 2 decimals.
	Losses      []float32
	AvgMS       float64 // Average excluding warmup steps.
	LogitsDType string
	Launches    int64 // Total kernel launches over the run.
}

// Run executes a benchmark variant: apply the configured framework flags,
// train for cfg.Steps steps and append the timings to the results table.
func Run(cfg Config) (*Report, error) {
	if err := cfg.withDefaults(); err != nil {
		return nil, err
	}

	backend.EnableFlashAttention(cfg.FlashAttention)
	backend.EnableMemEfficientAttention(cfg.MemEfficientAttention)
	if err := backend.SetFloat32MatmulPrecision(cfg.MatmulPrecision); err != nil {
		return nil, err
	}

	queue := device.NewQueue()
	defer queue.Close()

	var compute tensor.Backend
	switch cfg.Device {
	case "cpu":
		compute = cpu.NewWithQueue(queue)
	case "webgpu":
		gb, err := webgpu.New(queue)
		if err != nil {
			return nil, err
		}
		compute = gb
	default:
		return nil, fmt.Errorf("bench: unknown device %q", cfg.Device)
	}
	ad := autodiff.New(compute)

	model, err := nn.NewGPT(cfg.Model, ad)
	if err != nil {
		return nil, err
	}
	compiled := compile.Compile(model, cfg.Compile)

	var raws []*tensor.RawTensor
	for _, p := range model.Parameters() {
		raws = append(raws, p.Raw())
	}
	opt := optim.NewAdamW(raws, optim.AdamWConfig{LR: cfg.LR, Fused: cfg.FusedOptimizer}, ad)

	dataCfg := data.Config{
		BatchSize: cfg.BatchSize,
		BlockSize: cfg.Model.BlockSize,
		VocabSize: cfg.Model.VocabSize,
		Seed:      cfg.Seed,
	}
	var source data.Source
	switch cfg.DataSource {
	case DataSynthetic:
		source, err = data.NewSynthetic(dataCfg)
	case DataCorpus:
		source, err = data.NewCorpus(dataCfg)
	default:
		err = fmt.Errorf("bench: unknown data source %q", cfg.DataSource)
	}
	if err != nil {
		return nil, err
	}

	// Weight init is queued work; drain it before the first timed step.
	ad.Synchronize()

	report := &Report{Column: cfg.Name}
	atexit.Register(func() {
		if len(report.Times) == cfg.Steps {
			fmt.Printf("%s: %d steps, avg %.2fms, %d kernel launches\n",
				report.Column, len(report.Times), report.AvgMS, report.Launches)
		}
	})

	for step := 0; step < cfg.Steps; step++ {
		start := time.Now()

		batch := source.Batch(step)
		inputs := tensor.New(batch.Inputs, ad).To(ad)
		targets := tensor.New(batch.Targets, ad).To(ad)

		ad.ResetTape()
		ad.StartRecording()
		var logits, loss *tensor.Tensor
		forward := func() {
			logits, loss = compiled.Forward(inputs, targets, 0)
		}
		if cfg.Autocast {
			amp.Autocast(tensor.BFloat16, forward)
		} else {
			forward()
		}
		ad.StopRecording()

		grads := ad.Backward(loss.Raw())
		opt.Step(grads)
		ad.Synchronize()

		dt := math.Round(time.Since(start).Seconds()*1000*100) / 100
		lossVal := loss.Item()

		if step == 0 {
			report.LogitsDType = logits.DType().String()
			fmt.Printf("logits dtype: %s\n", report.LogitsDType)
		}
		fmt.Printf("step %d, loss: %.2f, dt: %.2fms\n", step, lossVal, dt)

		report.Times = append(report.Times, dt)
		report.Losses = append(report.Losses, lossVal)
	}

	report.AvgMS = AverageExcludingWarmup(report.Times, cfg.Warmup)
	report.Launches = queue.Launches()
	fmt.Printf("average dt (excluding first %d steps): %.2fms\n", cfg.Warmup, report.AvgMS)

	table, err := results.Load(cfg.ResultsPath)
	if err != nil {
		return nil, err
	}
	if err := table.SetColumn(cfg.Name, report.Times); err != nil {
		return nil, err
	}
	if err := table.Save(cfg.ResultsPath); err != nil {
		return nil, err
	}
	return report, nil
}
