package devmem

import (
	"fmt"
	"sync"
)

// Verify that Arena implements Service.
var _ Service = (*Arena)(nil)

// Arena is a host-simulated device memory service. Every allocation is an
// ordinary host byte region, so copies are plain memory moves. It is the
// reference implementation used when no accelerator is present, and the
// test substrate for verifying allocate/free pairing.
//
// An optional capacity limit makes allocation failures reproducible.
type Arena struct {
	mu    sync.Mutex
	limit int // 0 = unlimited
	used  int
	stats Stats
}

// Stats describes cumulative arena activity.
type Stats struct {
	Allocs         uint64 // successful allocations
	Frees          uint64 // successful frees
	AllocatedBytes uint64 // total bytes ever allocated
	FreedBytes     uint64 // total bytes ever freed
	PeakBytes      uint64 // high-water mark of in-use bytes
	InUseBytes     uint64 // currently outstanding bytes
}

// arenaBlock is the Arena's handle type.
type arenaBlock struct {
	arena    *Arena
	data     []byte
	size     int
	released bool
}

// ByteSize returns the size of the allocation in bytes.
func (blk *arenaBlock) ByteSize() int {
	return blk.size
}

// NewArena creates an arena with no capacity limit.
func NewArena() *Arena {
	return &Arena{}
}

// NewArenaWithLimit creates an arena that refuses to hold more than
// limit bytes at once.
func NewArenaWithLimit(limit int) *Arena {
	return &Arena{limit: limit}
}

// Name returns the service name.
func (a *Arena) Name() string {
	return "arena"
}

// Allocate reserves byteSize bytes.
func (a *Arena) Allocate(byteSize int) (Handle, error) {
	if byteSize < 0 {
		return nil, fmt.Errorf("allocate: negative size %d", byteSize)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.limit > 0 && a.used+byteSize > a.limit {
		return nil, fmt.Errorf("%w: need %d bytes, %d available", ErrOutOfMemory, byteSize, a.limit-a.used)
	}

	blk := &arenaBlock{
		arena: a,
		data:  make([]byte, byteSize),
		size:  byteSize,
	}

	a.used += byteSize
	a.stats.Allocs++
	a.stats.AllocatedBytes += uint64(byteSize)
	if uint64(a.used) > a.stats.PeakBytes {
		a.stats.PeakBytes = uint64(a.used)
	}

	return blk, nil
}

// Free releases an allocation.
func (a *Arena) Free(h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	blk, err := a.block(h)
	if err != nil {
		return err
	}

	blk.released = true
	blk.data = nil
	a.used -= blk.size
	a.stats.Frees++
	a.stats.FreedBytes += uint64(blk.size)
	return nil
}

// CopyHostToDevice copies len(src) bytes from src into the allocation.
func (a *Arena) CopyHostToDevice(h Handle, src []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	blk, err := a.block(h)
	if err != nil {
		return err
	}
	if len(src) > blk.size {
		return fmt.Errorf("%w: %d bytes into %d-byte allocation", ErrSizeMismatch, len(src), blk.size)
	}
	copy(blk.data, src)
	return nil
}

// CopyDeviceToHost copies len(dst) bytes from the allocation into dst.
func (a *Arena) CopyDeviceToHost(h Handle, dst []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	blk, err := a.block(h)
	if err != nil {
		return err
	}
	if len(dst) > blk.size {
		return fmt.Errorf("%w: %d bytes from %d-byte allocation", ErrSizeMismatch, len(dst), blk.size)
	}
	copy(dst, blk.data)
	return nil
}

// CopyDeviceToDevice copies byteSize bytes between two allocations.
func (a *Arena) CopyDeviceToDevice(dst, src Handle, byteSize int) error {
	if byteSize < 0 {
		return fmt.Errorf("copy: negative size %d", byteSize)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	dstBlk, err := a.block(dst)
	if err != nil {
		return err
	}
	srcBlk, err := a.block(src)
	if err != nil {
		return err
	}
	if byteSize > srcBlk.size || byteSize > dstBlk.size {
		return fmt.Errorf("%w: %d bytes between %d-byte and %d-byte allocations",
			ErrSizeMismatch, byteSize, srcBlk.size, dstBlk.size)
	}
	copy(dstBlk.data, srcBlk.data[:byteSize])
	return nil
}

// Stats returns a snapshot of cumulative arena activity.
func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.stats
	s.InUseBytes = uint64(a.used)
	return s
}

// block validates a handle. Caller holds a.mu.
func (a *Arena) block(h Handle) (*arenaBlock, error) {
	blk, ok := h.(*arenaBlock)
	if !ok || blk.arena != a {
		return nil, ErrForeignHandle
	}
	if blk.released {
		return nil, ErrHandleReleased
	}
	return blk, nil
}
