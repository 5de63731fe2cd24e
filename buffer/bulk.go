package buffer

import "fmt"

// Bulk transfer protocol: strided and contiguous multi-element reads and
// writes on top of the buffer core. All preconditions are checked before
// the first element is written, so a failed call never partially mutates
// the buffer.

// AssignIndexed writes values into the buffer starting at indices[0],
// advancing by inc elements per write. An increment of 1 is a dense
// write; larger increments leave gaps untouched.
//
// Only contiguous runs are supported: callers must pre-group scattered
// indices into runs, and contiguous=false fails with ErrUnsupportedLayout.
func (b *Buffer[T]) AssignIndexed(indices []int, values []T, contiguous bool, inc int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.assignLocked(indices, values, contiguous, inc)
}

// AssignIndexed is the mixed-type form of Buffer.AssignIndexed: values of
// any supported element type are converted to the buffer's native type
// through the element codec before being written.
func AssignIndexed[T, S Element](b *Buffer[T], indices []int, values []S, contiguous bool, inc int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.assignLocked(indices, ConvertSlice[S, T](values), contiguous, inc)
}

// ReadRange reads length elements starting at offset, each inc elements
// apart in the underlying storage. A range that does not fit entirely in
// the buffer fails with ErrCapacityExceeded; see ReadRangeClamped for the
// clamping variant.
func (b *Buffer[T]) ReadRange(offset, inc, length int) ([]T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkRangeArgs(offset, inc, length); err != nil {
		return nil, err
	}
	if length == 0 {
		return []T{}, nil
	}
	if last := offset + (length-1)*inc; last >= b.length {
		return nil, fmt.Errorf("%w: range ends at %d, length %d", ErrCapacityExceeded, last, b.length)
	}
	return b.gather(offset, inc, length), nil
}

// ReadRangeClamped is the clamping variant of ReadRange: a range that
// extends past the end of the buffer is shortened to the elements that
// actually fit, so the result holds min(length, available) elements.
func (b *Buffer[T]) ReadRangeClamped(offset, inc, length int) ([]T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkRangeArgs(offset, inc, length); err != nil {
		return nil, err
	}
	if available := b.rangeCapacity(offset, inc); length > available {
		length = available
	}
	if length == 0 {
		return []T{}, nil
	}
	return b.gather(offset, inc, length), nil
}

// Fill overwrites every element from start to the end of the buffer
// with v. start may equal the buffer length, in which case nothing is
// written.
func (b *Buffer[T]) Fill(v T, start int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.live(); err != nil {
		return err
	}
	if start < 0 || start > b.length {
		return fmt.Errorf("%w: start %d, length %d", ErrIndexOutOfRange, start, b.length)
	}
	for i := start; i < b.length; i++ {
		b.host[i] = v
	}
	b.state = statePopulated
	b.dirty = true
	return nil
}

// Fill is the mixed-type form of Buffer.Fill: v is converted to the
// buffer's native element type through the element codec.
func Fill[T, S Element](b *Buffer[T], v S, start int) error {
	return b.Fill(Convert[S, T](v), start)
}

// assignLocked implements the contiguous bulk write. Caller holds b.mu.
func (b *Buffer[T]) assignLocked(indices []int, values []T, contiguous bool, inc int) error {
	if err := b.live(); err != nil {
		return err
	}
	if len(indices) != len(values) {
		return fmt.Errorf("%w: %d indices, %d values", ErrLengthMismatch, len(indices), len(values))
	}
	if len(indices) > b.length {
		return fmt.Errorf("%w: %d elements into a buffer of length %d", ErrCapacityExceeded, len(indices), b.length)
	}
	if !contiguous {
		return ErrUnsupportedLayout
	}
	if len(values) == 0 {
		return nil
	}
	if inc < 1 {
		return fmt.Errorf("%w: increment %d", ErrIndexOutOfRange, inc)
	}

	offset := indices[0]
	if offset < 0 || offset >= b.length {
		return fmt.Errorf("%w: offset %d, length %d", ErrIndexOutOfRange, offset, b.length)
	}
	if last := offset + (len(values)-1)*inc; last >= b.length {
		return fmt.Errorf("%w: write ends at %d, length %d", ErrIndexOutOfRange, last, b.length)
	}

	for i, v := range values {
		b.host[offset+i*inc] = v
	}
	b.state = statePopulated
	b.dirty = true
	return nil
}

// checkRangeArgs validates the shared ReadRange argument contract.
// Caller holds b.mu.
func (b *Buffer[T]) checkRangeArgs(offset, inc, length int) error {
	if err := b.live(); err != nil {
		return err
	}
	if length < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeLength, length)
	}
	if inc < 1 {
		return fmt.Errorf("%w: increment %d", ErrIndexOutOfRange, inc)
	}
	if offset < 0 {
		return fmt.Errorf("%w: offset %d", ErrIndexOutOfRange, offset)
	}
	return nil
}

// rangeCapacity returns how many strided elements fit starting at
// offset. Caller holds b.mu.
func (b *Buffer[T]) rangeCapacity(offset, inc int) int {
	if offset >= b.length {
		return 0
	}
	return (b.length - offset + inc - 1) / inc
}

// gather copies the strided range out of the host mirror. Caller holds
// b.mu and has validated the range.
func (b *Buffer[T]) gather(offset, inc, length int) []T {
	out := make([]T, length)
	for i := range out {
		out[i] = b.host[offset+i*inc]
	}
	return out
}
