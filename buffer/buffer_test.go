package buffer

import (
	"errors"
	"testing"

	"github.com/devbuf-ml/devbuf/devmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAllocatesDeviceMemory(t *testing.T) {
	rec := devmem.NewRecorder(devmem.NewArena())

	b, err := New[float64](rec, 4)
	require.NoError(t, err)

	assert.Equal(t, 4, b.Len())
	assert.Equal(t, Float64, b.DType())
	assert.Equal(t, 8, b.ElementSize())
	assert.Equal(t, 32, b.ByteSize())
	assert.Equal(t, 32, b.Handle().ByteSize())
	assert.False(t, b.Populated())

	require.NoError(t, b.Free())

	c := rec.Counts()
	assert.Equal(t, uint64(1), c.Allocates)
	assert.Equal(t, uint64(1), c.Frees)
}

func TestNewZeroLength(t *testing.T) {
	b, err := New[int32](devmem.NewArena(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Len())

	bs, err := b.Bytes()
	require.NoError(t, err)
	assert.Empty(t, bs)

	require.NoError(t, b.Upload())
	require.NoError(t, b.Free())
}

func TestNewNegativeLength(t *testing.T) {
	_, err := New[float32](devmem.NewArena(), -3)
	assert.ErrorIs(t, err, ErrNegativeLength)
}

func TestNewAllocationFailure(t *testing.T) {
	svc := devmem.NewArenaWithLimit(16)

	_, err := New[float64](svc, 100)
	assert.ErrorIs(t, err, devmem.ErrOutOfMemory)
	assert.Equal(t, uint64(0), svc.Stats().InUseBytes)
}

func TestFromSliceScenario(t *testing.T) {
	b, err := FromSlice(devmem.NewArena(), []float64{1.0, 2.0, 3.0, 4.0})
	require.NoError(t, err)
	assert.True(t, b.Populated())

	require.NoError(t, b.Put(2, 9.5))

	v, err := b.Get(2)
	require.NoError(t, err)
	assert.Equal(t, 9.5, v)

	v, err = b.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestFromSliceUploadsToDevice(t *testing.T) {
	rec := devmem.NewRecorder(devmem.NewArena())

	b, err := FromSlice(rec, []int32{7, 8, 9})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.Counts().HostToDevice)

	// The device copy holds the content: wipe the mirror, download, check.
	require.NoError(t, b.SetAll([]int32{0, 0, 0}))
	require.NoError(t, b.Download())

	got, err := b.Elements()
	require.NoError(t, err)
	assert.Equal(t, []int32{7, 8, 9}, got)
}

func TestFromSliceRollsBackOnUploadFailure(t *testing.T) {
	rec := devmem.NewRecorder(&uploadFailer{Arena: devmem.NewArena()})

	_, err := FromSlice(rec, []float32{1, 2, 3})
	require.Error(t, err)

	c := rec.Counts()
	assert.Equal(t, uint64(1), c.Allocates)
	assert.Equal(t, uint64(1), c.Frees, "failed construction must release its allocation")
}

func TestGetPutBounds(t *testing.T) {
	b, err := New[float64](devmem.NewArena(), 3)
	require.NoError(t, err)

	_, err = b.Get(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = b.Get(3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.ErrorIs(t, b.Put(3, 1.0), ErrIndexOutOfRange)
}

func TestWidenedAccessors(t *testing.T) {
	b, err := FromSlice(devmem.NewArena(), []float64{1.5, -2.9, 200.0})
	require.NoError(t, err)

	f32, err := b.Float32At(0)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f32)

	// Float to integer truncates toward zero, both signs.
	i, err := b.Int32At(0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), i)
	i, err = b.Int32At(1)
	require.NoError(t, err)
	assert.Equal(t, int32(-2), i)

	require.NoError(t, b.PutInt32(2, 7))
	v, err := b.Get(2)
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	require.NoError(t, b.PutFloat32(2, 0.5))
	f64, err := b.Float64At(2)
	require.NoError(t, err)
	assert.Equal(t, 0.5, f64)
}

func TestSetAll(t *testing.T) {
	b, err := New[int64](devmem.NewArena(), 3)
	require.NoError(t, err)

	require.NoError(t, b.SetAll([]int64{10, 20, 30}))
	assert.True(t, b.Populated())

	got, err := b.Elements()
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, got)

	err = b.SetAll([]int64{1, 2})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	// Failed SetAll leaves the content unchanged.
	got, err = b.Elements()
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, got)
}

func TestDupIndependence(t *testing.T) {
	rec := devmem.NewRecorder(devmem.NewArena())

	b, err := FromSlice(rec, []float64{1, 2, 3})
	require.NoError(t, err)

	d, err := b.Dup()
	require.NoError(t, err)
	assert.Equal(t, b.Len(), d.Len())
	assert.Equal(t, uint64(1), rec.Counts().DeviceToDevice)

	require.NoError(t, d.Put(1, 99))

	v, err := b.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 2.0, v, "mutating the duplicate must not change the original")

	dv, err := d.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 99.0, dv)
}

func TestDupFlushesPendingWrites(t *testing.T) {
	b, err := FromSlice(devmem.NewArena(), []int32{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, b.Put(0, 42))

	d, err := b.Dup()
	require.NoError(t, err)

	// The duplicate's device copy must carry the pending host write.
	require.NoError(t, d.Download())
	got, err := d.Elements()
	require.NoError(t, err)
	assert.Equal(t, []int32{42, 2, 3}, got)
}

func TestBytes(t *testing.T) {
	b, err := FromSlice(devmem.NewArena(), []uint8{1, 2, 3, 4})
	require.NoError(t, err)

	bs, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, bs)

	// Bytes returns a copy, not a view.
	bs[0] = 99
	v, err := b.Get(0)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), v)
}

func TestBytesLength(t *testing.T) {
	b, err := FromSlice(devmem.NewArena(), []float64{1.0, -2.5})
	require.NoError(t, err)

	bs, err := b.Bytes()
	require.NoError(t, err)
	assert.Len(t, bs, 16)
}

func TestFreeLifecycle(t *testing.T) {
	svc := devmem.NewArena()

	b, err := FromSlice(svc, []float64{1, 2, 3})
	require.NoError(t, err)

	require.NoError(t, b.Free())
	assert.True(t, b.Freed())
	assert.ErrorIs(t, b.Free(), ErrDoubleFree)

	s := svc.Stats()
	assert.Equal(t, s.Allocs, s.Frees)
	assert.Equal(t, uint64(0), s.InUseBytes)
}

func TestEveryOperationFailsAfterFree(t *testing.T) {
	b, err := FromSlice(devmem.NewArena(), []float64{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, b.Free())

	_, err = b.Get(0)
	assert.ErrorIs(t, err, ErrUseAfterFree)
	assert.ErrorIs(t, b.Put(0, 1), ErrUseAfterFree)
	_, err = b.Float64At(0)
	assert.ErrorIs(t, err, ErrUseAfterFree)
	assert.ErrorIs(t, b.PutFloat32(0, 1), ErrUseAfterFree)
	assert.ErrorIs(t, b.SetAll([]float64{1, 2, 3}), ErrUseAfterFree)
	_, err = b.Elements()
	assert.ErrorIs(t, err, ErrUseAfterFree)
	_, err = b.Bytes()
	assert.ErrorIs(t, err, ErrUseAfterFree)
	assert.ErrorIs(t, b.Upload(), ErrUseAfterFree)
	assert.ErrorIs(t, b.Download(), ErrUseAfterFree)
	_, err = b.Dup()
	assert.ErrorIs(t, err, ErrUseAfterFree)
	assert.ErrorIs(t, b.AssignIndexed([]int{0}, []float64{1}, true, 1), ErrUseAfterFree)
	_, err = b.ReadRange(0, 1, 1)
	assert.ErrorIs(t, err, ErrUseAfterFree)
	_, err = b.ReadRangeClamped(0, 1, 1)
	assert.ErrorIs(t, err, ErrUseAfterFree)
	assert.ErrorIs(t, b.Fill(0, 0), ErrUseAfterFree)
}

func TestLeakFreeLifecycleAcrossTypes(t *testing.T) {
	svc := devmem.NewArena()

	for _, length := range []int{0, 1, 5, 128} {
		b32, err := New[float32](svc, length)
		require.NoError(t, err)
		require.NoError(t, b32.Free())

		b64, err := New[float64](svc, length)
		require.NoError(t, err)
		require.NoError(t, b64.Free())

		bi, err := New[int32](svc, length)
		require.NoError(t, err)
		require.NoError(t, bi.Free())
	}

	s := svc.Stats()
	assert.Equal(t, s.Allocs, s.Frees)
	assert.Equal(t, uint64(0), s.InUseBytes)
}

// uploadFailer rejects every host-to-device copy.
type uploadFailer struct {
	*devmem.Arena
}

var errUploadRefused = errors.New("upload refused")

func (u *uploadFailer) CopyHostToDevice(devmem.Handle, []byte) error {
	return errUploadRefused
}
