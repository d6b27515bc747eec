package nn

import (
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// layerNormEps matches the epsilon used by standard transformer stacks.
const layerNormEps = 1e-5

// LayerNorm normalizes the last dimension with learned scale and shift.
type LayerNorm struct {
	Gamma *Parameter // [dim]
	Beta  *Parameter // [dim]

	backend tensor.Backend
}

// NewLayerNorm creates a layer norm over the trailing dimension of size dim.
func NewLayerNorm(name string, dim int, b tensor.Backend) *LayerNorm {
	return &LayerNorm{
		Gamma:   onesParam(name+".gamma", tensor.Shape{dim}, b),
		Beta:    zerosParam(name+".beta", tensor.Shape{dim}, b),
		backend: b,
	}
}

// Forward normalizes x along its last dimension.
func (l *LayerNorm) Forward(x *tensor.Tensor) *tensor.Tensor {
	raw := l.backend.LayerNorm(x.Raw(), l.Gamma.Raw(), l.Beta.Raw(), layerNormEps)
	return tensor.New(raw, l.backend)
}

// Parameters returns gamma and beta.
func (l *LayerNorm) Parameters() []*Parameter {
	return []*Parameter{l.Gamma, l.Beta}
}
