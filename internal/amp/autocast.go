// Package amp implements mixed-precision autocast.
//
// While an autocast scope is active, precision-flexible kernels (matmul,
// attention) round their inputs to the autocast dtype and tag their outputs
// with it. Loss computation stays in float32. The policy is process-global
// rather than goroutine-scoped: the benchmark host loop is single-threaded
// and each variant is a one-shot process.
package amp

import "github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"

var (
	enabled bool
	dtype   tensor.DataType
)

// Autocast runs fn with mixed-precision casting to dt enabled, restoring the
// previous state afterwards. Scopes may nest.
func Autocast(dt tensor.DataType, fn func()) {
	prevEnabled, prevDType := enabled, dtype
	enabled, dtype = true, dt
	defer func() {
		enabled, dtype = prevEnabled, prevDType
	}()
	fn()
}

// Enabled reports whether an autocast scope is active.
func Enabled() bool {
	return enabled
}

// DType returns the active autocast dtype. Only meaningful when Enabled.
func DType() tensor.DataType {
	return dtype
}
