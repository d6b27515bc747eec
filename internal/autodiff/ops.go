package autodiff

import (
	"math"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// Add returns a + b, recording reduce-to-shape backward for the broadcast
// operand.
func (b *Backend) Add(a, x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Add(a, x)
	b.record("add", func() {
		g := b.grad(out)
		if g == nil {
			return
		}
		b.accumulate(a, g)
		b.accumulate(x, b.reduceToShape(g, x.Shape()))
	})
	return out
}

// Sub returns a - b.
func (b *Backend) Sub(a, x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Sub(a, x)
	b.record("sub", func() {
		g := b.grad(out)
		if g == nil {
			return
		}
		b.accumulate(a, g)

		neg := b.newGrad(x.Shape())
		b.Submit("sub_backward", func() {
			src := g.AsFloat32()
			dst := neg.AsFloat32()
			n := len(dst)
			for i, v := range src {
				dst[i%n] -= v
			}
		})
		b.accumulate(x, neg)
	})
	return out
}

// Mul returns the element-wise product a * b.
func (b *Backend) Mul(a, x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Mul(a, x)
	b.record("mul", func() {
		g := b.grad(out)
		if g == nil {
			return
		}
		da := b.newGrad(a.Shape())
		dx := b.newGrad(x.Shape())
		b.Submit("mul_backward", func() {
			gv := g.AsFloat32()
			av := a.AsFloat32()
			xv := x.AsFloat32()
			dav := da.AsFloat32()
			dxv := dx.AsFloat32()
			n := len(xv)
			for i, gi := range gv {
				dav[i] = gi * xv[i%n]
				dxv[i%n] += gi * av[i]
			}
		})
		b.accumulate(a, da)
		b.accumulate(x, dx)
	})
	return out
}

// Div returns the element-wise quotient a / b.
func (b *Backend) Div(a, x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Div(a, x)
	b.record("div", func() {
		g := b.grad(out)
		if g == nil {
			return
		}
		da := b.newGrad(a.Shape())
		dx := b.newGrad(x.Shape())
		b.Submit("div_backward", func() {
			gv := g.AsFloat32()
			av := a.AsFloat32()
			xv := x.AsFloat32()
			dav := da.AsFloat32()
			dxv := dx.AsFloat32()
			n := len(xv)
			for i, gi := range gv {
				d := xv[i%n]
				dav[i] = gi / d
				dxv[i%n] -= gi * av[i] / (d * d)
			}
		})
		b.accumulate(a, da)
		b.accumulate(x, dx)
	})
	return out
}

// MulScalar returns x * s.
func (b *Backend) MulScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	out := b.inner.MulScalar(x, s)
	b.record("mul_scalar", func() {
		g := b.grad(out)
		if g == nil {
			return
		}
		dx := b.newGrad(x.Shape())
		b.Submit("mul_scalar_backward", func() {
			gv := g.AsFloat32()
			dst := dx.AsFloat32()
			for i, gi := range gv {
				dst[i] = gi * s
			}
		})
		b.accumulate(x, dx)
	})
	return out
}

// AddScalar returns x + s.
func (b *Backend) AddScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	out := b.inner.AddScalar(x, s)
	b.record("add_scalar", func() {
		if g := b.grad(out); g != nil {
			b.accumulate(x, g)
		}
	})
	return out
}

// MatMul returns a @ x with the standard matrix product gradients.
func (b *Backend) MatMul(a, x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.MatMul(a, x)
	b.record("matmul", func() {
		g := b.grad(out)
		if g == nil {
			return
		}
		b.accumulate(a, b.matmulGrad("matmul_backward_a", g, x, false, true))
		b.accumulate(x, b.matmulGrad("matmul_backward_b", a, g, true, false))
	})
	return out
}

// Transpose transposes a 2D tensor.
func (b *Backend) Transpose(t *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Transpose(t)
	b.record("transpose", func() {
		if g := b.grad(out); g != nil {
			b.accumulate(t, b.inner.Transpose(g))
		}
	})
	return out
}

// Reshape returns a view of t with a new shape.
func (b *Backend) Reshape(t *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	out := b.inner.Reshape(t, shape)
	b.record("reshape", func() {
		if g := b.grad(out); g != nil {
			b.accumulate(t, g.Reshaped(t.Shape()))
		}
	})
	return out
}

// Gelu applies the GELU activation.
func (b *Backend) Gelu(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Gelu(x)
	b.record("gelu", func() {
		g := b.grad(out)
		if g == nil {
			return
		}
		gb, ok := b.inner.(interface {
			GeluBackward(x, grad *tensor.RawTensor) *tensor.RawTensor
		})
		if !ok {
			panic("autodiff: inner backend does not provide a gelu backward kernel")
		}
		b.accumulate(x, gb.GeluBackward(x, g))
	})
	return out
}

// Softmax applies softmax along the last dimension.
func (b *Backend) Softmax(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Softmax(x)
	b.record("softmax", func() {
		g := b.grad(out)
		if g == nil {
			return
		}
		shape := x.Shape()
		cols := shape[len(shape)-1]
		rows := shape.NumElements() / cols
		dx := b.newGrad(shape)
		b.Submit("softmax_backward", func() {
			pv := out.AsFloat32()
			gv := g.AsFloat32()
			dst := dx.AsFloat32()
			for r := 0; r < rows; r++ {
				p := pv[r*cols : (r+1)*cols]
				gr := gv[r*cols : (r+1)*cols]
				var dot float32
				for i, pi := range p {
					dot += gr[i] * pi
				}
				d := dst[r*cols : (r+1)*cols]
				for i, pi := range p {
					d[i] = pi * (gr[i] - dot)
				}
			}
		})
		b.accumulate(x, dx)
	})
	return out
}

// LayerNorm normalizes the last dimension with affine parameters.
func (b *Backend) LayerNorm(x, gamma, beta *tensor.RawTensor, eps float32) *tensor.RawTensor {
	out := b.inner.LayerNorm(x, gamma, beta, eps)
	b.record("layer_norm", func() {
		g := b.grad(out)
		if g == nil {
			return
		}
		shape := x.Shape()
		dim := gamma.NumElements()
		rows := shape.NumElements() / dim

		dx := b.newGrad(shape)
		dgamma := b.newGrad(gamma.Shape())
		dbeta := b.newGrad(beta.Shape())

		// Statistics are recomputed rather than saved from the forward pass.
		b.Submit("layer_norm_backward", func() {
			xv := x.AsFloat32()
			gv := gamma.AsFloat32()
			grad := g.AsFloat32()
			dxv := dx.AsFloat32()
			dgv := dgamma.AsFloat32()
			dbv := dbeta.AsFloat32()

			for r := 0; r < rows; r++ {
				row := xv[r*dim : (r+1)*dim]
				gr := grad[r*dim : (r+1)*dim]

				var sum float32
				for _, v := range row {
					sum += v
				}
				mean := sum / float32(dim)
				var sqSum float32
				for _, v := range row {
					d := v - mean
					sqSum += d * d
				}
				invStd := float32(1 / math.Sqrt(float64(sqSum/float32(dim)+eps)))

				var meanDxhat, meanDxhatXhat float32
				for i, v := range row {
					xhat := (v - mean) * invStd
					dxhat := gr[i] * gv[i]
					meanDxhat += dxhat
					meanDxhatXhat += dxhat * xhat
					dgv[i] += gr[i] * xhat
					dbv[i] += gr[i]
				}
				meanDxhat /= float32(dim)
				meanDxhatXhat /= float32(dim)

				d := dxv[r*dim : (r+1)*dim]
				for i, v := range row {
					xhat := (v - mean) * invStd
					dxhat := gr[i] * gv[i]
					d[i] = invStd * (dxhat - meanDxhat - xhat*meanDxhatXhat)
				}
			}
		})
		b.accumulate(x, dx)
		b.accumulate(gamma, dgamma)
		b.accumulate(beta, dbeta)
	})
	return out
}

// Embedding gathers rows of weight by int32 indices.
func (b *Backend) Embedding(weight, indices *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Embedding(weight, indices)
	b.record("embedding", func() {
		g := b.grad(out)
		if g == nil {
			return
		}
		dim := weight.Shape()[1]
		dw := b.newGrad(weight.Shape())
		b.Submit("embedding_backward", func() {
			gv := g.AsFloat32()
			idx := indices.AsInt32()
			dst := dw.AsFloat32()
			for i, id := range idx {
				row := dst[int(id)*dim : (int(id)+1)*dim]
				src := gv[i*dim : (i+1)*dim]
				for j, v := range src {
					row[j] += v
				}
			}
		})
		b.accumulate(weight, dw)
	})
	return out
}

// CrossEntropy computes mean negative log-likelihood over the batch.
func (b *Backend) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.CrossEntropy(logits, targets)
	b.record("cross_entropy", func() {
		g := b.grad(out)
		if g == nil {
			return
		}
		batch, classes := logits.Shape()[0], logits.Shape()[1]
		dl := b.newGrad(logits.Shape())
		b.Submit("cross_entropy_backward", func() {
			scale := g.AsFloat32()[0] / float32(batch)
			lv := logits.AsFloat32()
			tv := targets.AsInt32()
			dst := dl.AsFloat32()
			probs := make([]float32, classes)
			for i := 0; i < batch; i++ {
				row := lv[i*classes : (i+1)*classes]
				softmaxInto(row, probs)
				d := dst[i*classes : (i+1)*classes]
				for j, p := range probs {
					d[j] = p * scale
				}
				d[tv[i]] -= scale
			}
		})
		b.accumulate(logits, dl)
	})
	return out
}

func softmaxInto(src, dst []float32) {
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
