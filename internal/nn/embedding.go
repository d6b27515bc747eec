package nn

import (
	"math/rand"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// Embedding is a lookup table mapping int32 indices to dense rows.
type Embedding struct {
	Weight *Parameter // [numEmbeddings, dim]

	backend tensor.Backend
}

// NewEmbedding creates an embedding table.
func NewEmbedding(name string, numEmbeddings, dim int, rng *rand.Rand, b tensor.Backend) *Embedding {
	return &Embedding{
		Weight:  normalParam(name+".weight", tensor.Shape{numEmbeddings, dim}, rng, b),
		backend: b,
	}
}

// Forward gathers rows for indices of any shape, producing [indices..., dim].
func (e *Embedding) Forward(indices *tensor.Tensor) *tensor.Tensor {
	return tensor.New(e.backend.Embedding(e.Weight.Raw(), indices.Raw()), e.backend)
}

// Parameters returns the embedding weight.
func (e *Embedding) Parameters() []*Parameter {
	return []*Parameter{e.Weight}
}
