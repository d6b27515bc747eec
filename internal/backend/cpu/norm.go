package cpu

import (
	"fmt"
	"math"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/parallel"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// LayerNorm normalizes the last dimension of x and applies the affine
// transform gamma * xhat + beta as a single fused kernel.
func (c *CPUBackend) LayerNorm(x, gamma, beta *tensor.RawTensor, eps float32) *tensor.RawTensor {
	shape := x.Shape()
	dim := shape[len(shape)-1]
	if gamma.NumElements() != dim || beta.NumElements() != dim {
		panic(fmt.Sprintf("cpu: LayerNorm affine params %v/%v do not match dim %d",
			gamma.Shape(), beta.Shape(), dim))
	}
	rows := shape.NumElements() / dim
	out := c.newResult(shape, x.DType())

	c.Submit("layer_norm", func() {
		src := x.AsFloat32()
		g := gamma.AsFloat32()
		bv := beta.AsFloat32()
		dst := out.AsFloat32()
		parallel.For(rows, func(r int) {
			row := src[r*dim : (r+1)*dim]
			mean, invStd := rowStats(row, eps)
			o := dst[r*dim : (r+1)*dim]
			for i, v := range row {
				o[i] = (v-mean)*invStd*g[i] + bv[i]
			}
		}, c.par)
	})
	return out
}

// rowStats returns the mean and inverse standard deviation of a row.
func rowStats(row []float32, eps float32) (mean, invStd float32) {
	var sum float32
	for _, v := range row {
		sum += v
	}
	mean = sum / float32(len(row))
	var sqSum float32
	for _, v := range row {
		d := v - mean
		sqSum += d * d
	}
	variance := sqSum / float32(len(row))
	invStd = float32(1 / math.Sqrt(float64(variance+eps)))
	return mean, invStd
}

// Embedding gathers rows of weight [vocab, dim] by int32 indices, producing
// [indices..., dim].
func (c *CPUBackend) Embedding(weight, indices *tensor.RawTensor) *tensor.RawTensor {
	ws := weight.Shape()
	if len(ws) != 2 {
		panic(fmt.Sprintf("cpu: Embedding weight must be 2D, got %v", ws))
	}
	vocab, dim := ws[0], ws[1]
	outShape := append(indices.Shape().Clone(), dim)
	out := c.newResult(outShape, weight.DType())

	c.Submit("embedding", func() {
		w := weight.AsFloat32()
		idx := indices.AsInt32()
		dst := out.AsFloat32()
		for i, id := range idx {
			if id < 0 || int(id) >= vocab {
				panic(fmt.Sprintf("cpu: embedding index %d out of range [0, %d)", id, vocab))
			}
			copy(dst[i*dim:(i+1)*dim], w[int(id)*dim:(int(id)+1)*dim])
		}
	})
	return out
}

// CrossEntropy computes the mean negative log-likelihood of targets under
// softmax(logits) as one fused kernel. logits: [batch, classes] float,
// targets: [batch] int32. The scalar result is always float32, also when the
// logits are reduced precision.
func (c *CPUBackend) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	ls := logits.Shape()
	if len(ls) != 2 {
		panic(fmt.Sprintf("cpu: CrossEntropy logits must be 2D, got %v", ls))
	}
	batch, classes := ls[0], ls[1]
	if targets.NumElements() != batch {
		panic(fmt.Sprintf("cpu: CrossEntropy got %d targets for batch %d",
			targets.NumElements(), batch))
	}
	out := c.newResult(tensor.Shape{1}, tensor.Float32)

	c.Submit("cross_entropy", func() {
		lv := logits.AsFloat32()
		tv := targets.AsInt32()
		losses := make([]float32, batch)
		parallel.For(batch, func(i int) {
			row := lv[i*classes : (i+1)*classes]
			losses[i] = float32(logSumExp(row)) - row[tv[i]]
		}, c.par)
		var sum float32
		for _, l := range losses {
			sum += l
		}
		out.AsFloat32()[0] = sum / float32(batch)
	})
	return out
}

// logSumExp computes log(sum(exp(row))) stably.
func logSumExp(row []float32) float64 {
	maxv := row[0]
	for _, v := range row[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v - maxv))
	}
	return float64(maxv) + math.Log(sum)
}
