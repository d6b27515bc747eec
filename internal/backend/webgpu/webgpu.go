//go:build windows

// Package webgpu provides a GPU-assisted backend using go-webgpu's zero-CGO
// WebGPU bindings. Matrix multiplication runs as a WGSL compute shader; all
// other kernels delegate to the CPU backend on the same execution queue, so
// the step timeline stays in submission order.
package webgpu

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/amp"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/backend"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/backend/cpu"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/device"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// Backend offloads matmul to the GPU and inherits everything else from the
// CPU backend.
type Backend struct {
	*cpu.CPUBackend

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	dev      *wgpu.Device
	gpuQueue *wgpu.Queue

	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex
}

var _ tensor.Backend = (*Backend)(nil)

// New creates a WebGPU backend dispatching through q. It fails when no
// adapter or native library is available.
func New(q *device.Queue) (b *Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			b = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: request adapter: %w", adapterErr)
	}
	dev, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: request device: %w", deviceErr)
	}
	gpuQueue := dev.GetQueue()
	if gpuQueue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: no device queue")
	}

	return &Backend{
		CPUBackend: cpu.NewWithQueue(q),
		instance:   instance,
		adapter:    adapter,
		dev:        dev,
		gpuQueue:   gpuQueue,
		shaders:    map[string]*wgpu.ShaderModule{},
		pipelines:  map[string]*wgpu.ComputePipeline{},
	}, nil
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "webgpu"
}

// Device returns the compute device.
func (b *Backend) Device() tensor.Device {
	return tensor.WebGPU
}

// MatMul runs the matmul shader on the GPU. Reduced-precision modes round
// operands on the host, so those fall back to the CPU kernel.
func (b *Backend) MatMul(a, x *tensor.RawTensor) *tensor.RawTensor {
	if amp.Enabled() || backend.Float32MatmulPrecision() != backend.PrecisionHighest {
		return b.CPUBackend.MatMul(a, x)
	}
	as, xs := a.Shape(), x.Shape()
	if len(as) != 2 || len(xs) != 2 || as[1] != xs[0] {
		panic(fmt.Sprintf("webgpu: MatMul shapes %v @ %v", as, xs))
	}
	m, k, n := as[0], as[1], xs[1]
	out := tensor.MustNewRaw(tensor.Shape{m, n}, tensor.Float32, tensor.WebGPU)

	b.Submit("matmul_gpu", func() {
		if err := b.runMatMul(a, x, out, m, k, n); err != nil {
			panic(err)
		}
	})
	return out
}

func (b *Backend) compileShader(name, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	shader, exists := b.shaders[name]
	b.mu.RUnlock()
	if exists {
		return shader
	}
	shader = b.dev.CreateShaderModuleWGSL(code)
	b.mu.Lock()
	b.shaders[name] = shader
	b.mu.Unlock()
	return shader
}

func (b *Backend) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	b.mu.RLock()
	pipeline, exists := b.pipelines[name]
	b.mu.RUnlock()
	if exists {
		return pipeline
	}
	pipeline = b.dev.CreateComputePipelineSimple(nil, shader, "main")
	b.mu.Lock()
	b.pipelines[name] = pipeline
	b.mu.Unlock()
	return pipeline
}

func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := b.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := unsafe.Slice((*byte)(buffer.GetMappedRange(0, size)), size)
	copy(mapped, data)
	buffer.Unmap()
	return buffer
}

func (b *Backend) createUniformBuffer(data []byte) *wgpu.Buffer {
	size := (uint64(len(data)) + 15) &^ 15 // uniform structs need 16-byte alignment
	buffer := b.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := unsafe.Slice((*byte)(buffer.GetMappedRange(0, size)), size)
	copy(mapped, data)
	buffer.Unmap()
	return buffer
}

// readBuffer copies a storage buffer into host memory via a staging buffer.
func (b *Backend) readBuffer(src *wgpu.Buffer, size uint64, dst []byte) error {
	staging := b.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.dev.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.gpuQueue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.dev, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("webgpu: map staging buffer: %w", err)
	}
	mapped := unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size)
	copy(dst, mapped)
	staging.Unmap()
	return nil
}

// runMatMul uploads operands, dispatches the matmul shader and reads the
// product back into out. It runs inside the execution queue worker, so the
// GPU round trip is part of the step's measured compute.
func (b *Backend) runMatMul(a, x, out *tensor.RawTensor, m, k, n int) error {
	shader := b.compileShader("matmul", matmulShader)
	pipeline := b.getOrCreatePipeline("matmul", shader)

	bufA := b.createBuffer(a.Bytes(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufA.Release()
	bufX := b.createBuffer(x.Bytes(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufX.Release()

	resultSize := uint64(out.ByteSize())
	bufResult := b.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  resultSize,
	})
	defer bufResult.Release()

	params := make([]byte, 16)
	binary.LittleEndian.PutUint32(params[0:4], uint32(m))
	binary.LittleEndian.PutUint32(params[4:8], uint32(k))
	binary.LittleEndian.PutUint32(params[8:12], uint32(n))
	bufParams := b.createUniformBuffer(params)
	defer bufParams.Release()

	bindGroup := b.dev.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufA, 0, uint64(a.ByteSize())),
		wgpu.BufferBindingEntry(1, bufX, 0, uint64(x.ByteSize())),
		wgpu.BufferBindingEntry(2, bufResult, 0, resultSize),
		wgpu.BufferBindingEntry(3, bufParams, 0, 16),
	})
	defer bindGroup.Release()

	encoder := b.dev.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(uint32((n+15)/16), uint32((m+15)/16), 1)
	pass.End()
	b.gpuQueue.Submit(encoder.Finish(nil))

	return b.readBuffer(bufResult, resultSize, out.Bytes())
}

// Release frees all GPU resources.
func (b *Backend) Release() {
	b.Synchronize()
	b.gpuQueue = nil
	if b.dev != nil {
		b.dev.Release()
	}
	if b.adapter != nil {
		b.adapter.Release()
	}
	if b.instance != nil {
		b.instance.Release()
	}
}
