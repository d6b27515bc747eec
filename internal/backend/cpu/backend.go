// Package cpu implements the CPU compute backend.
//
// Kernels validate shapes and allocate outputs on the host, then submit the
// actual computation to the device queue. With a queue attached the backend
// behaves like an accelerator stream: calls return immediately and outputs
// are only valid after Synchronize. Without a queue everything runs inline.
package cpu

import (
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/device"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/parallel"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// CPUBackend implements tensor.Backend with pure Go kernels.
type CPUBackend struct {
	queue *device.Queue
	par   parallel.Config
	pool  *bufferPool
}

var _ tensor.Backend = (*CPUBackend)(nil)

// New creates a synchronous CPU backend (no execution queue).
func New() *CPUBackend {
	return &CPUBackend{par: parallel.DefaultConfig()}
}

// NewWithQueue creates a CPU backend that dispatches kernels to q,
// executing asynchronously with respect to the host.
func NewWithQueue(q *device.Queue) *CPUBackend {
	return &CPUBackend{queue: q, par: parallel.DefaultConfig()}
}

// Name returns the backend name.
func (c *CPUBackend) Name() string {
	return "cpu"
}

// Device returns the compute device.
func (c *CPUBackend) Device() tensor.Device {
	return tensor.CPU
}

// Queue returns the execution queue, or nil for a synchronous backend.
func (c *CPUBackend) Queue() *device.Queue {
	return c.queue
}

// Submit dispatches a kernel to the execution queue, or runs it inline when
// the backend is synchronous.
func (c *CPUBackend) Submit(label string, fn func()) {
	if c.queue != nil {
		c.queue.Submit(label, fn)
		return
	}
	fn()
}

// Synchronize blocks until all submitted kernels have completed.
func (c *CPUBackend) Synchronize() {
	if c.queue != nil {
		c.queue.Synchronize()
	}
}

// EnableBufferReuse turns the step-scoped output buffer pool on or off.
// The compile transform enables it; see BeginStep.
func (c *CPUBackend) EnableBufferReuse(enabled bool) {
	if enabled && c.pool == nil {
		c.pool = newBufferPool()
	}
	if c.pool != nil {
		c.pool.enabled = enabled
	}
}

// BeginStep recycles all output buffers handed out since the previous call.
// Callers must only invoke it between synchronized steps, when no kernel can
// still reference the previous step's activations.
func (c *CPUBackend) BeginStep() {
	if c.pool != nil && c.pool.enabled {
		c.pool.recycle()
	}
}

// newResult allocates (or recycles) an output tensor.
func (c *CPUBackend) newResult(shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	if c.pool != nil && c.pool.enabled {
		return c.pool.get(shape, dtype)
	}
	return tensor.MustNewRaw(shape, dtype, tensor.CPU)
}

// Reshape returns a view of t with a new shape.
func (c *CPUBackend) Reshape(t *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	return t.Reshaped(shape)
}

// Transpose transposes a 2D tensor.
func (c *CPUBackend) Transpose(t *tensor.RawTensor) *tensor.RawTensor {
	shape := t.Shape()
	if len(shape) != 2 {
		panic("cpu: Transpose supports 2D tensors only")
	}
	m, n := shape[0], shape[1]
	out := c.newResult(tensor.Shape{n, m}, t.DType())

	c.Submit("transpose", func() {
		src := t.AsFloat32()
		dst := out.AsFloat32()
		for i := 0; i < m; i++ {
			row := src[i*n : (i+1)*n]
			for j, v := range row {
				dst[j*m+i] = v
			}
		}
	})
	return out
}
