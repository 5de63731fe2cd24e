package buffer

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/devbuf-ml/devbuf/devmem"
)

// bufferState tracks the buffer lifecycle:
// allocated -> populated (repeatedly) -> freed. Freed is terminal.
type bufferState int

const (
	stateAllocated bufferState = iota
	statePopulated
	stateFreed
)

// Buffer is a fixed-length typed buffer backed by exactly one device
// allocation and a host mirror caching the same content.
//
// Coherence contract: the host mirror is the authoritative store for
// element access. Mutations update the mirror and mark the buffer dirty;
// device content is refreshed only at explicit sync points (Upload,
// Download) or internally by Dup. The two representations are never
// assumed equal between sync points.
//
// Buffer is not safe for concurrent use. The internal mutex only
// guarantees that Free cannot race an in-flight operation; interleaving
// of whole operations from multiple goroutines still needs external
// synchronization.
type Buffer[T Element] struct {
	mu     sync.Mutex
	svc    devmem.Service
	handle devmem.Handle
	host   []T
	length int
	dtype  DataType
	state  bufferState
	dirty  bool
}

// New allocates a buffer of length elements of T on the device service.
// The host mirror starts zeroed and the buffer is unpopulated. The device
// allocation is sized length*ElementSize bytes and is released exactly
// once, by Free.
func New[T Element](svc devmem.Service, length int) (*Buffer[T], error) {
	if length < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeLength, length)
	}
	dtype := dataTypeOf[T]()

	handle, err := svc.Allocate(length * dtype.Size())
	if err != nil {
		return nil, fmt.Errorf("allocate %d elements of %s: %w", length, dtype, err)
	}

	return &Buffer[T]{
		svc:    svc,
		handle: handle,
		host:   make([]T, length),
		length: length,
		dtype:  dtype,
		state:  stateAllocated,
	}, nil
}

// FromSlice allocates a buffer sized to data, populates the host mirror
// and uploads the content to the device. The device allocation is rolled
// back if the upload fails.
func FromSlice[T Element](svc devmem.Service, data []T) (*Buffer[T], error) {
	b, err := New[T](svc, len(data))
	if err != nil {
		return nil, err
	}

	copy(b.host, data)
	b.state = statePopulated
	b.dirty = true

	if err := b.uploadLocked(); err != nil {
		b.state = stateFreed
		if ferr := svc.Free(b.handle); ferr != nil {
			return nil, fmt.Errorf("upload failed (%v), rollback failed: %w", err, ferr)
		}
		return nil, err
	}
	return b, nil
}

// Len returns the element count, fixed at construction.
func (b *Buffer[T]) Len() int {
	return b.length
}

// DType returns the buffer's element type tag.
func (b *Buffer[T]) DType() DataType {
	return b.dtype
}

// ElementSize returns the byte width of one element.
func (b *Buffer[T]) ElementSize() int {
	return b.dtype.Size()
}

// ByteSize returns the total content size in bytes.
func (b *Buffer[T]) ByteSize() int {
	return b.length * b.dtype.Size()
}

// Service returns the device memory service backing this buffer.
func (b *Buffer[T]) Service() devmem.Service {
	return b.svc
}

// Handle returns the device allocation handle. It stays owned by the
// buffer; callers must not free it.
func (b *Buffer[T]) Handle() devmem.Handle {
	return b.handle
}

// Populated reports whether the buffer has ever been written.
func (b *Buffer[T]) Populated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == statePopulated
}

// Freed reports whether the buffer has been freed.
func (b *Buffer[T]) Freed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateFreed
}

// Get reads one element from the host mirror.
func (b *Buffer[T]) Get(i int) (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	if err := b.live(); err != nil {
		return zero, err
	}
	if err := b.checkIndex(i); err != nil {
		return zero, err
	}
	return b.host[i], nil
}

// Put writes one element to the host mirror and marks the buffer dirty.
func (b *Buffer[T]) Put(i int, v T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.live(); err != nil {
		return err
	}
	if err := b.checkIndex(i); err != nil {
		return err
	}
	b.host[i] = v
	b.state = statePopulated
	b.dirty = true
	return nil
}

// Float32At reads one element converted to float32.
func (b *Buffer[T]) Float32At(i int) (float32, error) {
	v, err := b.Get(i)
	if err != nil {
		return 0, err
	}
	return Convert[T, float32](v), nil
}

// Float64At reads one element converted to float64.
func (b *Buffer[T]) Float64At(i int) (float64, error) {
	v, err := b.Get(i)
	if err != nil {
		return 0, err
	}
	return Convert[T, float64](v), nil
}

// Int32At reads one element converted to int32, truncating toward zero.
func (b *Buffer[T]) Int32At(i int) (int32, error) {
	v, err := b.Get(i)
	if err != nil {
		return 0, err
	}
	return Convert[T, int32](v), nil
}

// PutFloat32 writes a float32 value converted to the element type.
func (b *Buffer[T]) PutFloat32(i int, v float32) error {
	return b.Put(i, Convert[float32, T](v))
}

// PutFloat64 writes a float64 value converted to the element type.
func (b *Buffer[T]) PutFloat64(i int, v float64) error {
	return b.Put(i, Convert[float64, T](v))
}

// PutInt32 writes an int32 value converted to the element type.
func (b *Buffer[T]) PutInt32(i int, v int32) error {
	return b.Put(i, Convert[int32, T](v))
}

// SetAll replaces the full logical content with data. The device
// allocation is reused, never resized; the device copy is refreshed at
// the next Upload.
func (b *Buffer[T]) SetAll(data []T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.live(); err != nil {
		return err
	}
	if len(data) != b.length {
		return fmt.Errorf("%w: buffer holds %d elements, got %d", ErrLengthMismatch, b.length, len(data))
	}
	copy(b.host, data)
	b.state = statePopulated
	b.dirty = true
	return nil
}

// Elements returns a copy of the buffer's full content.
func (b *Buffer[T]) Elements() ([]T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.live(); err != nil {
		return nil, err
	}
	out := make([]T, b.length)
	copy(out, b.host)
	return out, nil
}

// Bytes returns the host mirror's content as length*ElementSize bytes in
// the platform's native element layout. The returned slice is a copy.
func (b *Buffer[T]) Bytes() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.live(); err != nil {
		return nil, err
	}
	out := make([]byte, b.ByteSize())
	copy(out, b.rawBytes())
	return out, nil
}

// Upload pushes the host mirror to the device and clears the dirty flag.
// This is the host-to-device sync point of the coherence contract.
func (b *Buffer[T]) Upload() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.live(); err != nil {
		return err
	}
	return b.uploadLocked()
}

// Download replaces the host mirror with the device content. This is the
// device-to-host sync point; pending host changes are discarded.
func (b *Buffer[T]) Download() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.live(); err != nil {
		return err
	}
	if err := b.svc.CopyDeviceToHost(b.handle, b.rawBytes()); err != nil {
		return fmt.Errorf("download %d bytes: %w", b.ByteSize(), err)
	}
	b.state = statePopulated
	b.dirty = false
	return nil
}

// Dup creates an independent buffer of identical length and type. Pending
// host changes are flushed first, then the content is copied device to
// device and the mirror duplicated.
func (b *Buffer[T]) Dup() (*Buffer[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.live(); err != nil {
		return nil, err
	}
	if b.dirty {
		if err := b.uploadLocked(); err != nil {
			return nil, err
		}
	}

	dup, err := New[T](b.svc, b.length)
	if err != nil {
		return nil, err
	}
	if err := b.svc.CopyDeviceToDevice(dup.handle, b.handle, b.ByteSize()); err != nil {
		dup.state = stateFreed
		if ferr := b.svc.Free(dup.handle); ferr != nil {
			return nil, fmt.Errorf("device copy failed (%v), rollback failed: %w", err, ferr)
		}
		return nil, fmt.Errorf("copy %d bytes device to device: %w", b.ByteSize(), err)
	}

	copy(dup.host, b.host)
	dup.state = b.state
	return dup, nil
}

// Free releases the device allocation. The buffer is inert afterwards:
// every other operation fails with ErrUseAfterFree, and a second Free
// fails with ErrDoubleFree.
func (b *Buffer[T]) Free() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateFreed {
		return ErrDoubleFree
	}
	b.state = stateFreed
	b.host = nil

	if err := b.svc.Free(b.handle); err != nil {
		return fmt.Errorf("release device allocation: %w", err)
	}
	return nil
}

// uploadLocked pushes the host mirror to the device. Caller holds b.mu
// (or has exclusive ownership during construction).
func (b *Buffer[T]) uploadLocked() error {
	if err := b.svc.CopyHostToDevice(b.handle, b.rawBytes()); err != nil {
		return fmt.Errorf("upload %d bytes: %w", b.ByteSize(), err)
	}
	b.dirty = false
	return nil
}

// rawBytes reinterprets the host mirror as its native byte layout.
// Caller holds b.mu. The result aliases the mirror.
func (b *Buffer[T]) rawBytes() []byte {
	if b.length == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy reinterpretation, sized by ByteSize()
	return unsafe.Slice((*byte)(unsafe.Pointer(&b.host[0])), b.ByteSize())
}

// live checks the freed flag. Caller holds b.mu.
func (b *Buffer[T]) live() error {
	if b.state == stateFreed {
		return ErrUseAfterFree
	}
	return nil
}

// checkIndex bounds-checks one element index. Caller holds b.mu.
func (b *Buffer[T]) checkIndex(i int) error {
	if i < 0 || i >= b.length {
		return fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, b.length)
	}
	return nil
}
