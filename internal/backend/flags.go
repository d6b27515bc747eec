// Package backend holds the process-wide kernel selection and precision
// flags shared by all compute backends.
//
// Flags are set once at startup, before any tensor operation, and affect
// every subsequent computation in the process. There is no teardown: each
// benchmark variant is a one-shot process.
package backend

import (
	"fmt"
	"sync"
)

// Float32 matmul precision modes, from slowest/most accurate to fastest.
const (
	PrecisionHighest = "highest" // full float32 inputs
	PrecisionHigh    = "high"    // TF32-style 10-bit-mantissa input rounding
	PrecisionMedium  = "medium"  // bfloat16 input rounding
)

var (
	mu sync.RWMutex

	flashAttention        = true
	memEfficientAttention = true
	matmulPrecision       = PrecisionHighest
)

// EnableFlashAttention toggles the tiled flash attention kernel.
func EnableFlashAttention(enabled bool) {
	mu.Lock()
	flashAttention = enabled
	mu.Unlock()
}

// FlashAttentionEnabled reports whether the flash kernel may be selected.
func FlashAttentionEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return flashAttention
}

// EnableMemEfficientAttention toggles the memory-efficient attention kernel.
func EnableMemEfficientAttention(enabled bool) {
	mu.Lock()
	memEfficientAttention = enabled
	mu.Unlock()
}

// MemEfficientAttentionEnabled reports whether the memory-efficient kernel
// may be selected.
func MemEfficientAttentionEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return memEfficientAttention
}

// SetFloat32MatmulPrecision sets the global matmul precision mode.
// Accepts "highest", "high" or "medium".
func SetFloat32MatmulPrecision(p string) error {
	switch p {
	case PrecisionHighest, PrecisionHigh, PrecisionMedium:
	default:
		return fmt.Errorf("backend: unknown float32 matmul precision %q", p)
	}
	mu.Lock()
	matmulPrecision = p
	mu.Unlock()
	return nil
}

// Float32MatmulPrecision returns the current matmul precision mode.
func Float32MatmulPrecision() string {
	mu.RLock()
	defer mu.RUnlock()
	return matmulPrecision
}

// Reset restores the default flag values. Tests use it to isolate cases;
// the benchmark binaries never call it.
func Reset() {
	mu.Lock()
	flashAttention = true
	memEfficientAttention = true
	matmulPrecision = PrecisionHighest
	mu.Unlock()
}
