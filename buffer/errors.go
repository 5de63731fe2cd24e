package buffer

import "errors"

// Common errors. All of them indicate caller bugs; none are transient and
// none are retried. A failed operation never leaves the buffer partially
// mutated.
var (
	ErrUseAfterFree      = errors.New("buffer has been freed")
	ErrDoubleFree        = errors.New("buffer already freed")
	ErrLengthMismatch    = errors.New("length mismatch")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrUnsupportedLayout = errors.New("non-contiguous assignment is not supported")
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrNegativeLength    = errors.New("negative length")
)
