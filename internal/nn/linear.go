package nn

import (
	"math/rand"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// Linear is a fully connected layer: y = x @ W^T + b.
type Linear struct {
	Weight *Parameter // [outFeatures, inFeatures]
	Bias   *Parameter // [outFeatures], nil when constructed without bias

	backend tensor.Backend
}

// NewLinear creates a linear layer with bias.
func NewLinear(name string, inFeatures, outFeatures int, rng *rand.Rand, b tensor.Backend) *Linear {
	return &Linear{
		Weight:  normalParam(name+".weight", tensor.Shape{outFeatures, inFeatures}, rng, b),
		Bias:    zerosParam(name+".bias", tensor.Shape{outFeatures}, b),
		backend: b,
	}
}

// NewLinearNoBias creates a linear layer without a bias term.
func NewLinearNoBias(name string, inFeatures, outFeatures int, rng *rand.Rand, b tensor.Backend) *Linear {
	return &Linear{
		Weight:  normalParam(name+".weight", tensor.Shape{outFeatures, inFeatures}, rng, b),
		backend: b,
	}
}

// Forward applies the layer to x of shape [n, inFeatures].
func (l *Linear) Forward(x *tensor.Tensor) *tensor.Tensor {
	be := l.backend
	out := be.MatMul(x.Raw(), be.Transpose(l.Weight.Raw()))
	if l.Bias != nil {
		out = be.Add(out, l.Bias.Raw())
	}
	return tensor.New(out, be)
}

// Parameters returns the layer's trainable parameters.
func (l *Linear) Parameters() []*Parameter {
	if l.Bias == nil {
		return []*Parameter{l.Weight}
	}
	return []*Parameter{l.Weight, l.Bias}
}
