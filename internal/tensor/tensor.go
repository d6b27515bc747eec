// Package tensor provides the tensor core for the training benchmarks:
// shapes, dtype-tagged raw buffers, the Backend compute interface and a
// typed wrapper with method-style operations.
package tensor

import "fmt"

// Tensor binds a RawTensor to the Backend that computes with it.
//
// Operations delegate to the backend and return new tensors on the same
// backend. Data reads (Data, Item, At) require the backend to be
// synchronized first when it executes asynchronously.
type Tensor struct {
	raw     *RawTensor
	backend Backend
}

// New wraps a RawTensor with a backend.
func New(raw *RawTensor, b Backend) *Tensor {
	return &Tensor{raw: raw, backend: b}
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.raw.Shape()
}

// DType returns the tensor's data type.
func (t *Tensor) DType() DataType {
	return t.raw.DType()
}

// Device returns the tensor's compute device.
func (t *Tensor) Device() Device {
	return t.raw.Device()
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return t.raw.NumElements()
}

// Raw returns the underlying RawTensor.
func (t *Tensor) Raw() *RawTensor {
	return t.raw
}

// Backend returns the computation backend.
func (t *Tensor) Backend() Backend {
	return t.backend
}

// Data returns a float32 view of the tensor's data.
func (t *Tensor) Data() []float32 {
	return t.raw.AsFloat32()
}

// Int32Data returns an int32 view of the tensor's data.
func (t *Tensor) Int32Data() []int32 {
	return t.raw.AsInt32()
}

// Item returns the value of a single-element tensor.
func (t *Tensor) Item() float32 {
	if t.NumElements() != 1 {
		panic(fmt.Sprintf("Item() requires a single-element tensor, got shape %v", t.Shape()))
	}
	return t.raw.AsFloat32()[0]
}

// At returns the element at the given indices.
func (t *Tensor) At(indices ...int) float32 {
	if len(indices) != len(t.Shape()) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.Shape()), len(indices)))
	}
	offset := 0
	strides := t.raw.Strides()
	for i, idx := range indices {
		if idx < 0 || idx >= t.Shape()[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.Shape()[i]))
		}
		offset += idx * strides[i]
	}
	return t.raw.AsFloat32()[offset]
}

// Clone creates a deep copy of the tensor on the same backend.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{raw: t.raw.Clone(), backend: t.backend}
}

// To copies the tensor onto another backend. This is the host-to-device
// (or device-to-host) transfer of the training loop.
func (t *Tensor) To(b Backend) *Tensor {
	clone := t.raw.Clone()
	clone.device = b.Device()
	return &Tensor{raw: clone, backend: b}
}

// String returns a human-readable representation of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor[%s]%v on %s", t.raw.DType(), t.raw.Shape(), t.raw.Device())
}

// Method-style operations delegating to the backend.

// Add performs element-wise addition (other broadcasts over t).
func (t *Tensor) Add(other *Tensor) *Tensor {
	return New(t.backend.Add(t.raw, other.raw), t.backend)
}

// Sub performs element-wise subtraction.
func (t *Tensor) Sub(other *Tensor) *Tensor {
	return New(t.backend.Sub(t.raw, other.raw), t.backend)
}

// Mul performs element-wise multiplication.
func (t *Tensor) Mul(other *Tensor) *Tensor {
	return New(t.backend.Mul(t.raw, other.raw), t.backend)
}

// Div performs element-wise division.
func (t *Tensor) Div(other *Tensor) *Tensor {
	return New(t.backend.Div(t.raw, other.raw), t.backend)
}

// MulScalar multiplies every element by s.
func (t *Tensor) MulScalar(s float32) *Tensor {
	return New(t.backend.MulScalar(t.raw, s), t.backend)
}

// AddScalar adds s to every element.
func (t *Tensor) AddScalar(s float32) *Tensor {
	return New(t.backend.AddScalar(t.raw, s), t.backend)
}

// MatMul performs 2D matrix multiplication.
func (t *Tensor) MatMul(other *Tensor) *Tensor {
	return New(t.backend.MatMul(t.raw, other.raw), t.backend)
}

// Transpose transposes a 2D tensor.
func (t *Tensor) Transpose() *Tensor {
	return New(t.backend.Transpose(t.raw), t.backend)
}

// Reshape returns a tensor with a new shape over the same elements.
func (t *Tensor) Reshape(dims ...int) *Tensor {
	return New(t.backend.Reshape(t.raw, Shape(dims)), t.backend)
}

// Gelu applies the GELU activation (tanh approximation).
func (t *Tensor) Gelu() *Tensor {
	return New(t.backend.Gelu(t.raw), t.backend)
}

// Softmax applies softmax along the last dimension.
func (t *Tensor) Softmax() *Tensor {
	return New(t.backend.Softmax(t.raw), t.backend)
}
