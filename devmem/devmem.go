// Package devmem defines the device memory service that typed buffers are
// built on: allocation, release, and synchronous host/device copy primitives.
//
// Implementations:
//   - Arena: host-simulated device memory with capacity accounting (this package)
//   - webgpu.Service: real accelerator memory via WebGPU (devmem/webgpu)
package devmem

import "errors"

// Common errors.
var (
	ErrOutOfMemory    = errors.New("device memory exhausted")
	ErrForeignHandle  = errors.New("handle does not belong to this service")
	ErrHandleReleased = errors.New("handle already released")
	ErrSizeMismatch   = errors.New("copy size exceeds allocation")
)

// Handle is an opaque reference to a single device allocation. Handles are
// created by Service.Allocate and become invalid after Service.Free.
type Handle interface {
	// ByteSize returns the size of the allocation in bytes.
	ByteSize() int
}

// Service is the device memory interface. All copy operations are
// synchronous: the transfer has completed when the call returns.
//
// A Service only accepts handles it allocated itself; passing a handle from
// another service fails with ErrForeignHandle.
type Service interface {
	// Name returns a human-readable service name.
	Name() string

	// Allocate reserves byteSize bytes of device memory.
	// Fails with ErrOutOfMemory if the device cannot satisfy the request.
	Allocate(byteSize int) (Handle, error)

	// Free releases an allocation. Freeing the same handle twice fails
	// with ErrHandleReleased.
	Free(h Handle) error

	// CopyHostToDevice copies len(src) bytes from host memory into the
	// allocation. len(src) must not exceed the allocation size.
	CopyHostToDevice(h Handle, src []byte) error

	// CopyDeviceToHost copies len(dst) bytes from the allocation into host
	// memory. len(dst) must not exceed the allocation size.
	CopyDeviceToHost(h Handle, dst []byte) error

	// CopyDeviceToDevice copies byteSize bytes from src to dst. byteSize
	// must not exceed either allocation size.
	CopyDeviceToDevice(dst, src Handle, byteSize int) error
}
