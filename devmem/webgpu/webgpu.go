// Package webgpu implements a devmem.Service backed by WebGPU storage
// buffers. Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO
// WebGPU bindings.
//
// WebGPU storage buffers cannot be mapped directly, so host transfers go
// through staging buffers: uploads write a mapped-at-creation staging
// buffer and copy it on the GPU, downloads copy into a mappable staging
// buffer and read it back. Allocation sizes are rounded up to the 4-byte
// copy alignment WebGPU requires.
package webgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/devbuf-ml/devbuf/devmem"
	"github.com/go-webgpu/webgpu/wgpu"
)

// Verify that Service implements devmem.Service.
var _ devmem.Service = (*Service)(nil)

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// Service is a devmem.Service that places every allocation in GPU
// memory. Released buffers are pooled for reuse.
type Service struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	pool *bufferPool

	memoryStats struct {
		totalAllocatedBytes uint64
		peakMemoryBytes     uint64
		activeBuffers       int64
		mu                  sync.RWMutex
	}
}

// gpuBlock is the Service's handle type.
type gpuBlock struct {
	svc      *Service
	buffer   *wgpu.Buffer
	size     int    // requested size
	aligned  uint64 // actual buffer size, 4-byte aligned
	released bool
}

// ByteSize returns the requested allocation size in bytes.
func (blk *gpuBlock) ByteSize() int {
	return blk.size
}

// New creates a WebGPU-backed device memory service.
// Returns an error if WebGPU is not available or initialization fails.
func New() (svc *Service, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			svc = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, _ := wgpu.CreateInstance(nil)

	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &Service{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    queue,
		pool:     newBufferPool(device, storageUsage),
	}, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, _ := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// Name returns the service name.
func (s *Service) Name() string {
	return "webgpu"
}

// Allocate reserves byteSize bytes of GPU memory. The underlying buffer
// is rounded up to the 4-byte copy alignment.
func (s *Service) Allocate(byteSize int) (devmem.Handle, error) {
	if byteSize < 0 {
		return nil, fmt.Errorf("allocate: negative size %d", byteSize)
	}

	aligned := alignSize(byteSize)
	buffer := s.pool.acquire(aligned)
	if buffer == nil {
		return nil, fmt.Errorf("%w: %d bytes", devmem.ErrOutOfMemory, byteSize)
	}
	s.trackAllocation(aligned)

	return &gpuBlock{svc: s, buffer: buffer, size: byteSize, aligned: aligned}, nil
}

// Free returns the allocation's buffer to the pool.
func (s *Service) Free(h devmem.Handle) error {
	blk, err := s.block(h)
	if err != nil {
		return err
	}
	blk.released = true
	s.pool.release(blk.buffer, blk.aligned)
	blk.buffer = nil
	s.trackRelease(blk.aligned)
	return nil
}

// CopyHostToDevice uploads src through a mapped staging buffer.
func (s *Service) CopyHostToDevice(h devmem.Handle, src []byte) error {
	blk, err := s.block(h)
	if err != nil {
		return err
	}
	if len(src) > blk.size {
		return fmt.Errorf("%w: %d bytes into %d-byte allocation", devmem.ErrSizeMismatch, len(src), blk.size)
	}
	if len(src) == 0 {
		return nil
	}

	aligned := alignSize(len(src))
	alignedData := make([]byte, aligned)
	copy(alignedData, src)

	staging := s.createMappedBuffer(alignedData, wgpu.BufferUsageCopySrc)
	defer staging.Release()

	encoder := s.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, blk.buffer, 0, aligned)
	cmdBuffer := encoder.Finish(nil)
	s.queue.Submit(cmdBuffer)
	return nil
}

// CopyDeviceToHost reads the allocation back through a staging buffer.
func (s *Service) CopyDeviceToHost(h devmem.Handle, dst []byte) error {
	blk, err := s.block(h)
	if err != nil {
		return err
	}
	if len(dst) > blk.size {
		return fmt.Errorf("%w: %d bytes from %d-byte allocation", devmem.ErrSizeMismatch, len(dst), blk.size)
	}
	if len(dst) == 0 {
		return nil
	}

	aligned := alignSize(len(dst))

	// Storage buffers can't be mapped directly; copy into a mappable
	// staging buffer first.
	staging := s.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  aligned,
	})
	defer staging.Release()

	encoder := s.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(blk.buffer, 0, staging, 0, aligned)
	cmdBuffer := encoder.Finish(nil)
	s.queue.Submit(cmdBuffer)

	if err := staging.MapAsync(s.device, wgpu.MapModeRead, 0, aligned); err != nil {
		return fmt.Errorf("map staging buffer: %w", err)
	}
	mappedPtr := staging.GetMappedRange(0, aligned)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), aligned)
	copy(dst, mappedSlice)
	staging.Unmap()
	return nil
}

// CopyDeviceToDevice copies byteSize bytes between two allocations on
// the GPU, without a host round trip.
func (s *Service) CopyDeviceToDevice(dst, src devmem.Handle, byteSize int) error {
	if byteSize < 0 {
		return fmt.Errorf("copy: negative size %d", byteSize)
	}

	dstBlk, err := s.block(dst)
	if err != nil {
		return err
	}
	srcBlk, err := s.block(src)
	if err != nil {
		return err
	}
	if byteSize > srcBlk.size || byteSize > dstBlk.size {
		return fmt.Errorf("%w: %d bytes between %d-byte and %d-byte allocations",
			devmem.ErrSizeMismatch, byteSize, srcBlk.size, dstBlk.size)
	}
	if byteSize == 0 {
		return nil
	}

	encoder := s.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(srcBlk.buffer, 0, dstBlk.buffer, 0, alignSize(byteSize))
	cmdBuffer := encoder.Finish(nil)
	s.queue.Submit(cmdBuffer)
	return nil
}

// MemoryStats represents GPU memory usage statistics.
type MemoryStats struct {
	TotalAllocatedBytes uint64
	PeakMemoryBytes     uint64
	ActiveBuffers       int64
	PoolHits            uint64
	PoolMisses          uint64
	PooledBuffers       int
}

// MemoryStats returns current GPU memory usage statistics.
func (s *Service) MemoryStats() MemoryStats {
	s.memoryStats.mu.RLock()
	total := s.memoryStats.totalAllocatedBytes
	peak := s.memoryStats.peakMemoryBytes
	active := s.memoryStats.activeBuffers
	s.memoryStats.mu.RUnlock()

	hits, misses, pooled := s.pool.stats()
	return MemoryStats{
		TotalAllocatedBytes: total,
		PeakMemoryBytes:     peak,
		ActiveBuffers:       active,
		PoolHits:            hits,
		PoolMisses:          misses,
		PooledBuffers:       pooled,
	}
}

// Close releases all WebGPU resources. The service must not be used
// afterwards.
func (s *Service) Close() {
	if s.pool != nil {
		s.pool.clear()
		s.pool = nil
	}
	if s.queue != nil {
		s.queue.Release()
		s.queue = nil
	}
	if s.device != nil {
		s.device.Release()
		s.device = nil
	}
	if s.adapter != nil {
		s.adapter.Release()
		s.adapter = nil
	}
	if s.instance != nil {
		s.instance.Release()
		s.instance = nil
	}
}

// createMappedBuffer creates a GPU buffer pre-filled with data via
// MappedAtCreation.
func (s *Service) createMappedBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))

	buffer := s.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// block validates a handle.
func (s *Service) block(h devmem.Handle) (*gpuBlock, error) {
	blk, ok := h.(*gpuBlock)
	if !ok || blk.svc != s {
		return nil, devmem.ErrForeignHandle
	}
	if blk.released {
		return nil, devmem.ErrHandleReleased
	}
	return blk, nil
}

// alignSize rounds size up to WebGPU's 4-byte copy alignment, with a
// 4-byte floor for zero-length allocations.
func alignSize(size int) uint64 {
	aligned := (uint64(size) + 3) &^ 3 //nolint:gosec // G115: size is validated non-negative
	if aligned < 4 {
		aligned = 4
	}
	return aligned
}

func (s *Service) trackAllocation(size uint64) {
	s.memoryStats.mu.Lock()
	defer s.memoryStats.mu.Unlock()

	s.memoryStats.totalAllocatedBytes += size
	s.memoryStats.activeBuffers++
	if s.memoryStats.totalAllocatedBytes > s.memoryStats.peakMemoryBytes {
		s.memoryStats.peakMemoryBytes = s.memoryStats.totalAllocatedBytes
	}
}

func (s *Service) trackRelease(size uint64) {
	s.memoryStats.mu.Lock()
	defer s.memoryStats.mu.Unlock()

	if s.memoryStats.totalAllocatedBytes >= size {
		s.memoryStats.totalAllocatedBytes -= size
	}
	s.memoryStats.activeBuffers--
}
