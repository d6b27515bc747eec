// Package nn provides the neural network modules for the benchmark model:
// a small GPT-style decoder built from linear, embedding, layer norm and
// fused attention primitives.
package nn

import (
	"math/rand"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// Parameter is a named trainable tensor.
type Parameter struct {
	Name   string
	Tensor *tensor.Tensor
}

// Raw returns the parameter's underlying buffer. Optimizers key their state
// and gradient lookups on this pointer.
func (p *Parameter) Raw() *tensor.RawTensor {
	return p.Tensor.Raw()
}

// Module is the common interface of all network building blocks.
type Module interface {
	Parameters() []*Parameter
}

// initStd is the weight initialization scale used throughout the model.
const initStd = 0.02

// normalParam creates a parameter initialized from N(0, initStd) using the
// given source of randomness.
func normalParam(name string, shape tensor.Shape, rng *rand.Rand, b tensor.Backend) *Parameter {
	t := tensor.Randn(shape, rng, b)
	t = t.MulScalar(initStd)
	return &Parameter{Name: name, Tensor: t}
}

// zerosParam creates a zero-initialized parameter.
func zerosParam(name string, shape tensor.Shape, b tensor.Backend) *Parameter {
	return &Parameter{Name: name, Tensor: tensor.Zeros(shape, b)}
}

// onesParam creates a one-initialized parameter.
func onesParam(name string, shape tensor.Shape, b tensor.Backend) *Parameter {
	return &Parameter{Name: name, Tensor: tensor.Full(shape, 1, b)}
}
