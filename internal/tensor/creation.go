package tensor

import (
	"fmt"
	"math/rand"
)

// Zeros creates a float32 tensor filled with zeros.
func Zeros(shape Shape, b Backend) *Tensor {
	return New(MustNewRaw(shape, Float32, b.Device()), b)
}

// Full creates a float32 tensor filled with value.
func Full(shape Shape, value float32, b Backend) *Tensor {
	t := Zeros(shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Randn creates a float32 tensor with values drawn from N(0, 1) using the
// provided source. Creation takes an explicit RNG so that runs with a fixed
// seed are reproducible, which the benchmark baselines rely on.
func Randn(shape Shape, rng *rand.Rand, b Backend) *Tensor {
	t := Zeros(shape, b)
	data := t.Data()
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	return t
}

// FromSlice creates a float32 tensor from a Go slice. The data is copied.
func FromSlice(data []float32, shape Shape, b Backend) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t := Zeros(shape, b)
	copy(t.Data(), data)
	return t, nil
}

// FromInt32Slice creates an int32 tensor from a Go slice. The data is copied.
func FromInt32Slice(data []int32, shape Shape, b Backend) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	raw := MustNewRaw(shape, Int32, b.Device())
	copy(raw.AsInt32(), data)
	return New(raw, b), nil
}
