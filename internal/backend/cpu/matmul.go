package cpu

import (
	"fmt"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/amp"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/backend"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/parallel"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// matmulCast describes how a matmul rounds its inputs. It is resolved on the
// host at dispatch time so that later flag changes cannot affect kernels
// already in flight.
type matmulCast struct {
	round    func(float32) float32
	outDType tensor.DataType
}

// resolveMatmulCast folds the autocast state and the global matmul precision
// mode into a single casting decision. Autocast wins when active.
func resolveMatmulCast() matmulCast {
	if amp.Enabled() {
		dt := amp.DType()
		if dt == tensor.BFloat16 {
			return matmulCast{round: tensor.RoundBFloat16, outDType: tensor.BFloat16}
		}
		return matmulCast{outDType: dt}
	}
	switch backend.Float32MatmulPrecision() {
	case backend.PrecisionHigh:
		return matmulCast{round: tensor.RoundTF32, outDType: tensor.Float32}
	case backend.PrecisionMedium:
		return matmulCast{round: tensor.RoundBFloat16, outDType: tensor.Float32}
	default:
		return matmulCast{outDType: tensor.Float32}
	}
}

// MatMul computes the 2D product (M, K) @ (K, N) -> (M, N).
//
// Inputs are rounded per the resolved cast before accumulation; accumulation
// itself is always float32, matching how tensor cores consume reduced-precision
// operands but keep a full-precision accumulator.
func (c *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	as, bs := a.Shape(), b.Shape()
	if len(as) != 2 || len(bs) != 2 {
		panic(fmt.Sprintf("cpu: MatMul needs 2D tensors, got %v @ %v", as, bs))
	}
	if as[1] != bs[0] {
		panic(fmt.Sprintf("cpu: MatMul inner dimensions mismatch: %v @ %v", as, bs))
	}
	m, k, n := as[0], as[1], bs[1]

	cast := resolveMatmulCast()
	out := c.newResult(tensor.Shape{m, n}, cast.outDType)

	c.Submit("matmul", func() {
		av := a.AsFloat32()
		bv := b.AsFloat32()
		dst := out.AsFloat32()

		if cast.round != nil {
			av = roundedCopy(av, cast.round)
			bv = roundedCopy(bv, cast.round)
		}

		parallel.For(m, func(i int) {
			row := dst[i*n : (i+1)*n]
			for x := range row {
				row[x] = 0
			}
			for l := 0; l < k; l++ {
				aik := av[i*k+l]
				if aik == 0 {
					continue
				}
				brow := bv[l*n : (l+1)*n]
				for j, v := range brow {
					row[j] += aik * v
				}
			}
		}, c.par)
	})
	return out
}

// roundedCopy applies the precision rounding to a scratch copy, leaving the
// source operand (often a live parameter) untouched.
func roundedCopy(src []float32, round func(float32) float32) []float32 {
	dst := make([]float32, len(src))
	for i, v := range src {
		dst[i] = round(v)
	}
	return dst
}
