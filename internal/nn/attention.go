package nn

import (
	"math"
	"math/rand"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// CausalSelfAttention is multi-head self-attention with autoregressive
// masking. The scaled-dot-product core runs as a single fused backend kernel;
// which implementation executes (flash, memory-efficient or math) is decided
// by the global backend flags.
type CausalSelfAttention struct {
	Query *Linear
	Key   *Linear
	Value *Linear
	Proj  *Linear

	numHeads int
	headDim  int

	backend tensor.Backend
}

// NewCausalSelfAttention creates an attention block for embedDim split across
// numHeads heads.
func NewCausalSelfAttention(name string, embedDim, numHeads int, rng *rand.Rand, b tensor.Backend) *CausalSelfAttention {
	if embedDim%numHeads != 0 {
		panic("nn: embedDim must be divisible by numHeads")
	}
	return &CausalSelfAttention{
		Query:    NewLinear(name+".query", embedDim, embedDim, rng, b),
		Key:      NewLinear(name+".key", embedDim, embedDim, rng, b),
		Value:    NewLinear(name+".value", embedDim, embedDim, rng, b),
		Proj:     NewLinear(name+".proj", embedDim, embedDim, rng, b),
		numHeads: numHeads,
		headDim:  embedDim / numHeads,
		backend:  b,
	}
}

// Forward applies attention to x of shape [batch*seqLen, embedDim].
func (a *CausalSelfAttention) Forward(x *tensor.Tensor, batch, seqLen int) *tensor.Tensor {
	q := a.Query.Forward(x)
	k := a.Key.Forward(x)
	v := a.Value.Forward(x)

	params := tensor.AttentionParams{
		Batch:    batch,
		SeqLen:   seqLen,
		NumHeads: a.numHeads,
		HeadDim:  a.headDim,
		Causal:   true,
		Scale:    float32(1 / math.Sqrt(float64(a.headDim))),
	}
	att := a.backend.Attention(q.Raw(), k.Raw(), v.Raw(), params)
	return a.Proj.Forward(tensor.New(att, a.backend))
}

// Parameters returns the parameters of all four projections.
func (a *CausalSelfAttention) Parameters() []*Parameter {
	var params []*Parameter
	for _, l := range []*Linear{a.Query, a.Key, a.Value, a.Proj} {
		params = append(params, l.Parameters()...)
	}
	return params
}
