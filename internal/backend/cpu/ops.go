package cpu

import (
	"fmt"
	"math"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/parallel"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// binaryOp validates broadcasting, allocates the output and submits the
// element-wise kernel. The second operand broadcasts over the first via
// trailing-dimension repetition.
func (c *CPUBackend) binaryOp(name string, a, b *tensor.RawTensor, op func(x, y float32) float32) *tensor.RawTensor {
	if !b.Shape().BroadcastsOver(a.Shape()) {
		panic(fmt.Sprintf("cpu: %s shapes %v and %v are incompatible", name, a.Shape(), b.Shape()))
	}
	out := c.newResult(a.Shape(), a.DType())

	c.Submit(name, func() {
		av := a.AsFloat32()
		bv := b.AsFloat32()
		dst := out.AsFloat32()
		bn := len(bv)
		if bn == len(av) {
			parallel.For(len(av), func(i int) {
				dst[i] = op(av[i], bv[i])
			}, c.par)
			return
		}
		parallel.For(len(av), func(i int) {
			dst[i] = op(av[i], bv[i%bn])
		}, c.par)
	})
	return out
}

// Add returns a + b.
func (c *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return c.binaryOp("add", a, b, func(x, y float32) float32 { return x + y })
}

// Sub returns a - b.
func (c *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return c.binaryOp("sub", a, b, func(x, y float32) float32 { return x - y })
}

// Mul returns the element-wise product a * b.
func (c *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return c.binaryOp("mul", a, b, func(x, y float32) float32 { return x * y })
}

// Div returns the element-wise quotient a / b.
func (c *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return c.binaryOp("div", a, b, func(x, y float32) float32 { return x / y })
}

// MulScalar returns x * s.
func (c *CPUBackend) MulScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	out := c.newResult(x.Shape(), x.DType())
	c.Submit("mul_scalar", func() {
		src := x.AsFloat32()
		dst := out.AsFloat32()
		for i, v := range src {
			dst[i] = v * s
		}
	})
	return out
}

// AddScalar returns x + s.
func (c *CPUBackend) AddScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	out := c.newResult(x.Shape(), x.DType())
	c.Submit("add_scalar", func() {
		src := x.AsFloat32()
		dst := out.AsFloat32()
		for i, v := range src {
			dst[i] = v + s
		}
	})
	return out
}

// Gelu applies the tanh-approximated GELU activation.
func (c *CPUBackend) Gelu(x *tensor.RawTensor) *tensor.RawTensor {
	out := c.newResult(x.Shape(), x.DType())
	c.Submit("gelu", func() {
		src := x.AsFloat32()
		dst := out.AsFloat32()
		parallel.For(len(src), func(i int) {
			dst[i] = gelu(src[i])
		}, c.par)
	})
	return out
}

const geluCoeff = 0.044715

func gelu(v float32) float32 {
	x := float64(v)
	inner := math.Sqrt(2/math.Pi) * (x + geluCoeff*x*x*x)
	return float32(0.5 * x * (1 + math.Tanh(inner)))
}

// geluDerivative is used by the autodiff backward pass.
func geluDerivative(v float32) float32 {
	x := float64(v)
	inner := math.Sqrt(2/math.Pi) * (x + geluCoeff*x*x*x)
	tanh := math.Tanh(inner)
	sech2 := 1 - tanh*tanh
	dinner := math.Sqrt(2/math.Pi) * (1 + 3*geluCoeff*x*x)
	return float32(0.5*(1+tanh) + 0.5*x*sech2*dinner)
}

// GeluBackward returns grad * gelu'(x). The autodiff layer calls it when
// building the backward graph.
func (c *CPUBackend) GeluBackward(x, grad *tensor.RawTensor) *tensor.RawTensor {
	out := c.newResult(x.Shape(), tensor.Float32)
	c.Submit("gelu_backward", func() {
		src := x.AsFloat32()
		g := grad.AsFloat32()
		dst := out.AsFloat32()
		parallel.For(len(src), func(i int) {
			dst[i] = g[i] * geluDerivative(src[i])
		}, c.par)
	})
	return out
}

// Softmax applies softmax along the last dimension.
func (c *CPUBackend) Softmax(x *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) == 0 {
		panic("cpu: Softmax on scalar")
	}
	cols := shape[len(shape)-1]
	rows := shape.NumElements() / cols
	out := c.newResult(shape, x.DType())

	c.Submit("softmax", func() {
		src := x.AsFloat32()
		dst := out.AsFloat32()
		parallel.For(rows, func(r int) {
			softmaxRow(src[r*cols:(r+1)*cols], dst[r*cols:(r+1)*cols])
		}, c.par)
	})
	return out
}

// softmaxRow computes a numerically stable softmax into dst.
func softmaxRow(src, dst []float32) {
	maxv := src[0]
	for _, v := range src[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float32
	for i, v := range src {
		e := float32(math.Exp(float64(v - maxv)))
		dst[i] = e
		sum += e
	}
	inv := 1 / sum
	for i := range dst {
		dst[i] *= inv
	}
}
