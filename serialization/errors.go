package serialization

import "errors"

// Common errors.
var (
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrDataTypeMismatch   = errors.New("data type mismatch")
	ErrInvalidCount       = errors.New("invalid element count")
)
