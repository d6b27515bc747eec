// Package autodiff provides reverse-mode automatic differentiation as a
// decorator around a compute backend.
//
// While recording, every operation is executed on the inner backend and an
// entry is pushed onto a tape. Backward walks the tape in reverse, submitting
// gradient kernels through the same inner backend, so gradient computation
// flows through the device queue exactly like the forward pass.
package autodiff

import (
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

type tapeOp struct {
	label    string
	backward func()
}

// Backend wraps an inner compute backend with gradient tape recording.
type Backend struct {
	inner     tensor.Backend
	recording bool
	tape      []tapeOp
	grads     map[*tensor.RawTensor]*tensor.RawTensor
}

var _ tensor.Backend = (*Backend)(nil)

// New creates an autodiff decorator around inner. Recording starts disabled.
func New(inner tensor.Backend) *Backend {
	return &Backend{
		inner: inner,
		grads: map[*tensor.RawTensor]*tensor.RawTensor{},
	}
}

// Inner returns the wrapped backend.
func (b *Backend) Inner() tensor.Backend {
	return b.inner
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return b.inner.Name() + "+autodiff"
}

// Device returns the inner backend's device.
func (b *Backend) Device() tensor.Device {
	return b.inner.Device()
}

// Submit dispatches a kernel to the inner backend's queue.
func (b *Backend) Submit(label string, fn func()) {
	b.inner.Submit(label, fn)
}

// Synchronize blocks until all inner backend work has completed.
func (b *Backend) Synchronize() {
	b.inner.Synchronize()
}

// StartRecording enables tape recording for subsequent operations.
func (b *Backend) StartRecording() {
	b.recording = true
}

// StopRecording disables tape recording.
func (b *Backend) StopRecording() {
	b.recording = false
}

// ResetTape discards the tape and all accumulated gradients.
// Call it at the start of every training step.
func (b *Backend) ResetTape() {
	b.tape = b.tape[:0]
	b.grads = map[*tensor.RawTensor]*tensor.RawTensor{}
}

// record pushes a tape entry when recording is enabled.
func (b *Backend) record(label string, backward func()) {
	if b.recording {
		b.tape = append(b.tape, tapeOp{label: label, backward: backward})
	}
}

// Backward seeds the gradient of loss with ones and propagates gradients
// through the tape in reverse order. It returns the gradient map keyed by
// the RawTensors the forward pass touched; callers look up parameters by
// pointer. Gradient buffers are only valid after Synchronize.
func (b *Backend) Backward(loss *tensor.RawTensor) map[*tensor.RawTensor]*tensor.RawTensor {
	seed := tensor.MustNewRaw(loss.Shape(), tensor.Float32, loss.Device())
	b.Submit("grad_seed", func() {
		dst := seed.AsFloat32()
		for i := range dst {
			dst[i] = 1
		}
	})
	b.grads[loss] = seed

	for i := len(b.tape) - 1; i >= 0; i-- {
		b.tape[i].backward()
	}
	return b.grads
}

// grad returns the accumulated gradient for t, or nil if no consumer
// contributed one.
func (b *Backend) grad(t *tensor.RawTensor) *tensor.RawTensor {
	return b.grads[t]
}

// accumulate adds g into the gradient slot of t, creating the zeroed slot on
// first contribution. Slots always own their buffers, so a gradient that
// passes through several ops unchanged never aliases two slots.
func (b *Backend) accumulate(t, g *tensor.RawTensor) {
	existing, ok := b.grads[t]
	if !ok {
		existing = b.newGrad(g.Shape())
		b.grads[t] = existing
	}
	b.Submit("grad_accumulate", func() {
		dst := existing.AsFloat32()
		src := g.AsFloat32()
		for i, v := range src {
			dst[i] += v
		}
	})
}

// newGrad allocates a zeroed float32 gradient buffer. Gradients bypass the
// inner backend's buffer pool so that accumulation slots survive until the
// optimizer consumes them.
func (b *Backend) newGrad(shape tensor.Shape) *tensor.RawTensor {
	return tensor.MustNewRaw(shape, tensor.Float32, b.inner.Device())
}

// matmulGrad computes a plain float32 matmul for backward passes, with
// optional operand transposes folded into the index math.
func (b *Backend) matmulGrad(label string, a, bm *tensor.RawTensor, transA, transB bool) *tensor.RawTensor {
	as, bs := a.Shape(), bm.Shape()
	m, k := as[0], as[1]
	if transA {
		m, k = k, m
	}
	n := bs[1]
	if transB {
		n = bs[0]
	}
	out := b.newGrad(tensor.Shape{m, n})

	b.Submit(label, func() {
		av := a.AsFloat32()
		bv := bm.AsFloat32()
		dst := out.AsFloat32()
		aCols := as[1]
		bCols := bs[1]
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				var acc float32
				for l := 0; l < k; l++ {
					var x, y float32
					if transA {
						x = av[l*aCols+i]
					} else {
						x = av[i*aCols+l]
					}
					if transB {
						y = bv[j*bCols+l]
					} else {
						y = bv[l*bCols+j]
					}
					acc += x * y
				}
				dst[i*n+j] = acc
			}
		}
	})
	return out
}

// reduceToShape sums g down to shape, undoing trailing-dimension
// broadcasting. When the shapes already match it returns g unchanged.
func (b *Backend) reduceToShape(g *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	if g.Shape().Equal(shape) {
		return g
	}
	out := b.newGrad(shape)
	b.Submit("grad_reduce", func() {
		src := g.AsFloat32()
		dst := out.AsFloat32()
		n := len(dst)
		for i, v := range src {
			dst[i%n] += v
		}
	})
	return out
}
