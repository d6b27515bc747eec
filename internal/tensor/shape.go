package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// String returns a human-readable form like [2 64 128].
func (s Shape) String() string {
	return fmt.Sprintf("%v", []int(s))
}

// BroadcastsOver reports whether a tensor of shape s can be broadcast
// element-wise over a tensor of shape target.
//
// The supported rule is trailing-dimension broadcasting: after stripping
// leading 1-sized dimensions, s must be a suffix of target. This covers the
// patterns the training loop needs (bias over rows, positional embeddings
// over batch) without the full NumPy rule set.
//
// Examples:
//
//	[64]      over [32, 64]     → true
//	[1, 64]   over [32, 64]     → true
//	[16, 64]  over [4, 16, 64]  → true
//	[32]      over [32, 64]     → false
func (s Shape) BroadcastsOver(target Shape) bool {
	trimmed := s
	for len(trimmed) > 0 && trimmed[0] == 1 {
		trimmed = trimmed[1:]
	}
	if len(trimmed) > len(target) {
		return false
	}
	offset := len(target) - len(trimmed)
	for i, dim := range trimmed {
		if target[offset+i] != dim {
			return false
		}
	}
	return true
}
