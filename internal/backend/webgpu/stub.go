//go:build !windows

// Package webgpu provides a GPU-assisted backend using go-webgpu's zero-CGO
// WebGPU bindings. The native library currently ships for windows only; on
// other platforms New reports the backend as unavailable and callers fall
// back to the CPU backend.
package webgpu

import (
	"fmt"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/backend/cpu"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/device"
)

// Backend is unavailable on this platform.
type Backend struct {
	*cpu.CPUBackend
}

// New reports that WebGPU is not supported on this platform.
func New(q *device.Queue) (*Backend, error) {
	return nil, fmt.Errorf("webgpu: not supported on this platform")
}
