// Package optim implements the optimizers used by the training benchmark.
//
// Optimizers operate on raw parameter buffers and a gradient map produced by
// the autodiff tape. Updates are submitted to the backend's execution queue,
// so optimizer cost shows up on the device timeline like any other kernel.
package optim

import (
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// Optimizer updates parameters from a gradient map keyed by parameter buffer.
// Parameters without a gradient entry are skipped.
type Optimizer interface {
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)
}

// newState allocates a zeroed float32 moment buffer matching p. Optimizer
// state lives outside any backend buffer pool because it persists across
// steps.
func newState(p *tensor.RawTensor) *tensor.RawTensor {
	return tensor.MustNewRaw(p.Shape(), tensor.Float32, p.Device())
}
