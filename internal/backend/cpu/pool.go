package cpu

import (
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// bufferPool recycles kernel output buffers between training steps, keyed by
// byte size. After the first step every allocation the step graph needs is in
// the free lists, so steady-state steps allocate nothing. This is the
// mechanism behind the reduce-overhead compile mode.
type bufferPool struct {
	enabled bool
	free    map[int][]*tensor.RawTensor
	leased  []*tensor.RawTensor
}

func newBufferPool() *bufferPool {
	return &bufferPool{
		enabled: true,
		free:    map[int][]*tensor.RawTensor{},
	}
}

// get returns a buffer of the requested shape and dtype, reusing a recycled
// one of the same byte size when available.
func (p *bufferPool) get(shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	size := shape.NumElements() * dtype.Size()
	if list := p.free[size]; len(list) > 0 {
		buf := list[len(list)-1]
		p.free[size] = list[:len(list)-1]
		out := buf.ViewAs(shape, dtype)
		p.leased = append(p.leased, out)
		return out
	}
	out := tensor.MustNewRaw(shape, dtype, tensor.CPU)
	p.leased = append(p.leased, out)
	return out
}

// recycle moves every leased buffer back to the free lists. Only safe once
// the queue has drained and no live tensor references the previous step's
// outputs.
func (p *bufferPool) recycle() {
	for _, buf := range p.leased {
		size := buf.ByteSize()
		p.free[size] = append(p.free[size], buf)
	}
	p.leased = p.leased[:0]
}
