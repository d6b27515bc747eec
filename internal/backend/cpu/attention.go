package cpu

import (
	"fmt"
	"math"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/amp"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/backend"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/parallel"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// flashTileSize is the key/value tile length of the flash kernel.
const flashTileSize = 64

// Attention computes fused scaled-dot-product attention over
// [batch*seqLen, numHeads*headDim] inputs.
//
// The kernel is chosen from the global backend flags at dispatch time:
// flash when enabled, otherwise memory-efficient when enabled, otherwise the
// math kernel that materializes the full score matrix. All three produce the
// same values for the same inputs; they differ in working-set size and
// summation order.
func (c *CPUBackend) Attention(q, k, v *tensor.RawTensor, p tensor.AttentionParams) *tensor.RawTensor {
	want := tensor.Shape{p.Batch * p.SeqLen, p.NumHeads * p.HeadDim}
	for _, t := range []*tensor.RawTensor{q, k, v} {
		if !t.Shape().Equal(want) {
			panic(fmt.Sprintf("cpu: Attention input shape %v, want %v", t.Shape(), want))
		}
	}

	outDType := q.DType()
	var round func(float32) float32
	if amp.Enabled() && amp.DType() == tensor.BFloat16 {
		round = tensor.RoundBFloat16
		outDType = tensor.BFloat16
	}

	useFlash := backend.FlashAttentionEnabled()
	useMemEfficient := backend.MemEfficientAttentionEnabled()

	out := c.newResult(want, outDType)
	c.Submit("attention", func() {
		qv, kv, vv := q.AsFloat32(), k.AsFloat32(), v.AsFloat32()
		if round != nil {
			qv = roundedCopy(qv, round)
			kv = roundedCopy(kv, round)
			vv = roundedCopy(vv, round)
		}
		dst := out.AsFloat32()
		switch {
		case useFlash:
			c.flashAttention(qv, kv, vv, dst, p)
		case useMemEfficient:
			c.memEfficientAttention(qv, kv, vv, dst, p)
		default:
			c.mathAttention(qv, kv, vv, dst, p)
		}
	})
	return out
}

// headIndex maps (batch, position, head, dim) into the flat
// [batch*seqLen, numHeads*headDim] layout.
func headIndex(p tensor.AttentionParams, b, t, h, d int) int {
	return ((b*p.SeqLen+t)*p.NumHeads+h)*p.HeadDim + d
}

// mathAttention materializes the full [seqLen, seqLen] score matrix per head.
func (c *CPUBackend) mathAttention(q, k, v, out []float32, p tensor.AttentionParams) {
	parallel.For(p.Batch*p.NumHeads, func(bh int) {
		b, h := bh/p.NumHeads, bh%p.NumHeads
		scores := make([]float32, p.SeqLen*p.SeqLen)

		for t := 0; t < p.SeqLen; t++ {
			limit := p.SeqLen
			if p.Causal {
				limit = t + 1
			}
			row := scores[t*p.SeqLen : t*p.SeqLen+limit]
			for s := range row {
				var dot float32
				for d := 0; d < p.HeadDim; d++ {
					dot += q[headIndex(p, b, t, h, d)] * k[headIndex(p, b, s, h, d)]
				}
				row[s] = dot * p.Scale
			}
			softmaxRow(row, row)

			base := headIndex(p, b, t, h, 0)
			for d := 0; d < p.HeadDim; d++ {
				var acc float32
				for s, w := range row {
					acc += w * v[headIndex(p, b, s, h, d)]
				}
				out[base+d] = acc
			}
		}
	}, c.par)
}

// memEfficientAttention streams over keys per query row, keeping running
// max/sum statistics instead of the score matrix.
func (c *CPUBackend) memEfficientAttention(q, k, v, out []float32, p tensor.AttentionParams) {
	parallel.For(p.Batch*p.NumHeads, func(bh int) {
		b, h := bh/p.NumHeads, bh%p.NumHeads
		acc := make([]float32, p.HeadDim)

		for t := 0; t < p.SeqLen; t++ {
			limit := p.SeqLen
			if p.Causal {
				limit = t + 1
			}

			rowMax := float32(math.Inf(-1))
			var rowSum float32
			for i := range acc {
				acc[i] = 0
			}

			for s := 0; s < limit; s++ {
				var dot float32
				for d := 0; d < p.HeadDim; d++ {
					dot += q[headIndex(p, b, t, h, d)] * k[headIndex(p, b, s, h, d)]
				}
				score := dot * p.Scale

				newMax := rowMax
				if score > newMax {
					newMax = score
				}
				correction := float32(math.Exp(float64(rowMax - newMax)))
				w := float32(math.Exp(float64(score - newMax)))
				rowSum = rowSum*correction + w
				for d := 0; d < p.HeadDim; d++ {
					acc[d] = acc[d]*correction + w*v[headIndex(p, b, s, h, d)]
				}
				rowMax = newMax
			}

			base := headIndex(p, b, t, h, 0)
			inv := 1 / rowSum
			for d, a := range acc {
				out[base+d] = a * inv
			}
		}
	}, c.par)
}

// flashAttention processes keys and values in tiles with an online-softmax
// accumulator, rescaling the partial output when a tile raises the running
// maximum.
func (c *CPUBackend) flashAttention(q, k, v, out []float32, p tensor.AttentionParams) {
	parallel.For(p.Batch*p.NumHeads, func(bh int) {
		b, h := bh/p.NumHeads, bh%p.NumHeads
		acc := make([]float32, p.HeadDim)
		weights := make([]float32, flashTileSize)

		for t := 0; t < p.SeqLen; t++ {
			limit := p.SeqLen
			if p.Causal {
				limit = t + 1
			}

			rowMax := float32(math.Inf(-1))
			var rowSum float32
			for i := range acc {
				acc[i] = 0
			}

			for tile := 0; tile < limit; tile += flashTileSize {
				end := min(tile+flashTileSize, limit)

				tileMax := float32(math.Inf(-1))
				for s := tile; s < end; s++ {
					var dot float32
					for d := 0; d < p.HeadDim; d++ {
						dot += q[headIndex(p, b, t, h, d)] * k[headIndex(p, b, s, h, d)]
					}
					score := dot * p.Scale
					weights[s-tile] = score
					if score > tileMax {
						tileMax = score
					}
				}

				newMax := rowMax
				if tileMax > newMax {
					newMax = tileMax
				}
				correction := float32(math.Exp(float64(rowMax - newMax)))

				var tileSum float32
				for i := 0; i < end-tile; i++ {
					w := float32(math.Exp(float64(weights[i] - newMax)))
					weights[i] = w
					tileSum += w
				}

				rowSum = rowSum*correction + tileSum
				for d := range acc {
					acc[d] *= correction
				}
				for s := tile; s < end; s++ {
					w := weights[s-tile]
					for d := 0; d < p.HeadDim; d++ {
						acc[d] += w * v[headIndex(p, b, s, h, d)]
					}
				}
				rowMax = newMax
			}

			base := headIndex(p, b, t, h, 0)
			inv := 1 / rowSum
			for d, a := range acc {
				out[base+d] = a * inv
			}
		}
	}, c.par)
}
