package tensor

import "math"

// DataType represents the numeric precision of a tensor.
//
// BFloat16 and TF32 are storage-emulated on the CPU backend: values are held
// as float32 whose mantissa has been rounded to the reduced width, and the
// dtype tag records the effective precision. This reproduces the numerics of
// reduced-precision kernels without a second storage layout.
type DataType int

// Supported data types.
const (
	Float32 DataType = iota
	BFloat16
	Int32
)

// Size returns the storage size in bytes of one element.
func (d DataType) Size() int {
	switch d {
	case Float32, BFloat16, Int32:
		return 4
	default:
		panic("tensor: unknown dtype")
	}
}

// String returns the lowercase dtype name.
func (d DataType) String() string {
	switch d {
	case Float32:
		return "float32"
	case BFloat16:
		return "bfloat16"
	case Int32:
		return "int32"
	default:
		return "unknown"
	}
}

// IsFloat reports whether the dtype is a floating-point type.
func (d DataType) IsFloat() bool {
	return d == Float32 || d == BFloat16
}

// RoundBFloat16 rounds a float32 to bfloat16 precision (8-bit mantissa),
// round-to-nearest-even, returning the result as float32.
func RoundBFloat16(x float32) float32 {
	bits := math.Float32bits(x)
	bits += 0x7FFF + ((bits >> 16) & 1)
	bits &= 0xFFFF0000
	return math.Float32frombits(bits)
}

// RoundTF32 rounds a float32 to TensorFloat32 precision (10-bit mantissa),
// round-to-nearest-even, returning the result as float32. This is the input
// rounding the "high" matmul precision mode applies.
func RoundTF32(x float32) float32 {
	bits := math.Float32bits(x)
	bits += 0x0FFF + ((bits >> 13) & 1)
	bits &^= 0x1FFF
	return math.Float32frombits(bits)
}
