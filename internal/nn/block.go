package nn

import (
	"math/rand"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// MLP is the transformer feed-forward sublayer: expand 4x, GELU, project back.
type MLP struct {
	FC   *Linear
	Proj *Linear

	backend tensor.Backend
}

// NewMLP creates the feed-forward sublayer for embedDim.
func NewMLP(name string, embedDim int, rng *rand.Rand, b tensor.Backend) *MLP {
	return &MLP{
		FC:      NewLinear(name+".fc", embedDim, 4*embedDim, rng, b),
		Proj:    NewLinear(name+".proj", 4*embedDim, embedDim, rng, b),
		backend: b,
	}
}

// Forward applies the feed-forward transform to x of shape [n, embedDim].
func (m *MLP) Forward(x *tensor.Tensor) *tensor.Tensor {
	return m.Proj.Forward(m.FC.Forward(x).Gelu())
}

// Parameters returns the parameters of both projections.
func (m *MLP) Parameters() []*Parameter {
	return append(m.FC.Parameters(), m.Proj.Parameters()...)
}

// Block is a pre-norm transformer decoder block.
type Block struct {
	LN1  *LayerNorm
	Attn *CausalSelfAttention
	LN2  *LayerNorm
	MLP  *MLP
}

// NewBlock creates a decoder block.
func NewBlock(name string, embedDim, numHeads int, rng *rand.Rand, b tensor.Backend) *Block {
	return &Block{
		LN1:  NewLayerNorm(name+".ln1", embedDim, b),
		Attn: NewCausalSelfAttention(name+".attn", embedDim, numHeads, rng, b),
		LN2:  NewLayerNorm(name+".ln2", embedDim, b),
		MLP:  NewMLP(name+".mlp", embedDim, rng, b),
	}
}

// Forward applies the block with residual connections.
func (blk *Block) Forward(x *tensor.Tensor, batch, seqLen int) *tensor.Tensor {
	x = x.Add(blk.Attn.Forward(blk.LN1.Forward(x), batch, seqLen))
	x = x.Add(blk.MLP.Forward(blk.LN2.Forward(x)))
	return x
}

// Parameters returns all parameters of the block.
func (blk *Block) Parameters() []*Parameter {
	var params []*Parameter
	params = append(params, blk.LN1.Parameters()...)
	params = append(params, blk.Attn.Parameters()...)
	params = append(params, blk.LN2.Parameters()...)
	params = append(params, blk.MLP.Parameters()...)
	return params
}
