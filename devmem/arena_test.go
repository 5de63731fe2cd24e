package devmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaAllocateFree(t *testing.T) {
	a := NewArena()

	h, err := a.Allocate(64)
	require.NoError(t, err)
	require.Equal(t, 64, h.ByteSize())

	s := a.Stats()
	assert.Equal(t, uint64(1), s.Allocs)
	assert.Equal(t, uint64(64), s.InUseBytes)
	assert.Equal(t, uint64(64), s.PeakBytes)

	require.NoError(t, a.Free(h))

	s = a.Stats()
	assert.Equal(t, uint64(1), s.Frees)
	assert.Equal(t, uint64(0), s.InUseBytes)
	assert.Equal(t, uint64(64), s.PeakBytes)
}

func TestArenaZeroByteAllocation(t *testing.T) {
	a := NewArena()

	h, err := a.Allocate(0)
	require.NoError(t, err)
	assert.Equal(t, 0, h.ByteSize())
	require.NoError(t, a.CopyHostToDevice(h, nil))
	require.NoError(t, a.Free(h))
}

func TestArenaNegativeSize(t *testing.T) {
	a := NewArena()

	_, err := a.Allocate(-1)
	assert.Error(t, err)
}

func TestArenaDoubleFree(t *testing.T) {
	a := NewArena()

	h, err := a.Allocate(16)
	require.NoError(t, err)
	require.NoError(t, a.Free(h))

	err = a.Free(h)
	assert.ErrorIs(t, err, ErrHandleReleased)
}

func TestArenaForeignHandle(t *testing.T) {
	a := NewArena()
	other := NewArena()

	h, err := other.Allocate(16)
	require.NoError(t, err)

	assert.ErrorIs(t, a.Free(h), ErrForeignHandle)
	assert.ErrorIs(t, a.CopyHostToDevice(h, make([]byte, 16)), ErrForeignHandle)
}

func TestArenaCapacityLimit(t *testing.T) {
	a := NewArenaWithLimit(100)

	h, err := a.Allocate(80)
	require.NoError(t, err)

	_, err = a.Allocate(40)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	// Freeing makes room again.
	require.NoError(t, a.Free(h))
	h2, err := a.Allocate(40)
	require.NoError(t, err)
	require.NoError(t, a.Free(h2))
}

func TestArenaCopies(t *testing.T) {
	a := NewArena()

	src, err := a.Allocate(8)
	require.NoError(t, err)
	dst, err := a.Allocate(8)
	require.NoError(t, err)

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, a.CopyHostToDevice(src, payload))
	require.NoError(t, a.CopyDeviceToDevice(dst, src, 8))

	got := make([]byte, 8)
	require.NoError(t, a.CopyDeviceToHost(dst, got))
	assert.Equal(t, payload, got)
}

func TestArenaCopySizeChecks(t *testing.T) {
	a := NewArena()

	h, err := a.Allocate(4)
	require.NoError(t, err)

	assert.ErrorIs(t, a.CopyHostToDevice(h, make([]byte, 8)), ErrSizeMismatch)
	assert.ErrorIs(t, a.CopyDeviceToHost(h, make([]byte, 8)), ErrSizeMismatch)

	big, err := a.Allocate(16)
	require.NoError(t, err)
	assert.ErrorIs(t, a.CopyDeviceToDevice(big, h, 16), ErrSizeMismatch)
}

func TestArenaCopyAfterFree(t *testing.T) {
	a := NewArena()

	h, err := a.Allocate(4)
	require.NoError(t, err)
	require.NoError(t, a.Free(h))

	assert.ErrorIs(t, a.CopyHostToDevice(h, []byte{1}), ErrHandleReleased)
	assert.ErrorIs(t, a.CopyDeviceToHost(h, make([]byte, 1)), ErrHandleReleased)
}
