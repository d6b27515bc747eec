package autodiff

import (
	"math"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// Attention computes fused scaled-dot-product attention, recording a backward
// pass that recomputes the attention probabilities instead of saving them.
// Recomputation keeps the forward kernels free to use the streaming flash and
// memory-efficient paths, which never materialize the score matrix.
func (b *Backend) Attention(q, k, v *tensor.RawTensor, p tensor.AttentionParams) *tensor.RawTensor {
	out := b.inner.Attention(q, k, v, p)
	b.record("attention", func() {
		g := b.grad(out)
		if g == nil {
			return
		}
		dq := b.newGrad(q.Shape())
		dk := b.newGrad(k.Shape())
		dv := b.newGrad(v.Shape())

		b.Submit("attention_backward", func() {
			attentionBackward(q.AsFloat32(), k.AsFloat32(), v.AsFloat32(), g.AsFloat32(),
				dq.AsFloat32(), dk.AsFloat32(), dv.AsFloat32(), p)
		})
		b.accumulate(q, dq)
		b.accumulate(k, dk)
		b.accumulate(v, dv)
	})
	return out
}

func attnIndex(p tensor.AttentionParams, b, t, h, d int) int {
	return ((b*p.SeqLen+t)*p.NumHeads+h)*p.HeadDim + d
}

// attentionBackward propagates gradients through softmax(QK^T * scale) V
// one head at a time, recomputing each query row's probabilities.
func attentionBackward(q, k, v, g, dq, dk, dv []float32, p tensor.AttentionParams) {
	probs := make([]float32, p.SeqLen)
	dp := make([]float32, p.SeqLen)

	for b := 0; b < p.Batch; b++ {
		for h := 0; h < p.NumHeads; h++ {
			for t := 0; t < p.SeqLen; t++ {
				limit := p.SeqLen
				if p.Causal {
					limit = t + 1
				}

				// Recompute the probability row.
				rowMax := float32(math.Inf(-1))
				for s := 0; s < limit; s++ {
					var dot float32
					for d := 0; d < p.HeadDim; d++ {
						dot += q[attnIndex(p, b, t, h, d)] * k[attnIndex(p, b, s, h, d)]
					}
					probs[s] = dot * p.Scale
					if probs[s] > rowMax {
						rowMax = probs[s]
					}
				}
				var sum float32
				for s := 0; s < limit; s++ {
					probs[s] = float32(math.Exp(float64(probs[s] - rowMax)))
					sum += probs[s]
				}
				inv := 1 / sum
				for s := 0; s < limit; s++ {
					probs[s] *= inv
				}

				// dV and dP from the output gradient.
				var dot float32
				for s := 0; s < limit; s++ {
					var acc float32
					for d := 0; d < p.HeadDim; d++ {
						gi := g[attnIndex(p, b, t, h, d)]
						dv[attnIndex(p, b, s, h, d)] += probs[s] * gi
						acc += gi * v[attnIndex(p, b, s, h, d)]
					}
					dp[s] = acc
					dot += dp[s] * probs[s]
				}

				// Softmax backward, then the score gradient flows into Q and K.
				for s := 0; s < limit; s++ {
					ds := probs[s] * (dp[s] - dot) * p.Scale
					for d := 0; d < p.HeadDim; d++ {
						dq[attnIndex(p, b, t, h, d)] += ds * k[attnIndex(p, b, s, h, d)]
						dk[attnIndex(p, b, s, h, d)] += ds * q[attnIndex(p, b, t, h, d)]
					}
				}
			}
		}
	}
}
