package serialization

import "github.com/devbuf-ml/devbuf/buffer"

// Format constants.
const (
	MagicBytes    = "DBUF"
	FormatVersion = 1
)

// Flags for the buffer wire format.
const (
	// FlagPopulated marks an image exported from a buffer that has been
	// written at least once. When clear, the element count must be zero.
	FlagPopulated uint32 = 1 << 0
)

// header is the fixed-size portion following the magic bytes.
type header struct {
	Version uint32
	DType   uint32
	Flags   uint32
	Count   int32
}

// Data type codes on the wire. These are part of the format and must not
// be renumbered.
const (
	codeFloat32 uint32 = 1
	codeFloat64 uint32 = 2
	codeInt32   uint32 = 3
	codeInt64   uint32 = 4
	codeUint8   uint32 = 5
)

// dtypeCode converts a buffer.DataType to its wire code.
func dtypeCode(dt buffer.DataType) (uint32, bool) {
	switch dt {
	case buffer.Float32:
		return codeFloat32, true
	case buffer.Float64:
		return codeFloat64, true
	case buffer.Int32:
		return codeInt32, true
	case buffer.Int64:
		return codeInt64, true
	case buffer.Uint8:
		return codeUint8, true
	default:
		return 0, false
	}
}

// codeName returns a human-readable name for a wire code.
func codeName(code uint32) string {
	switch code {
	case codeFloat32:
		return "float32"
	case codeFloat64:
		return "float64"
	case codeInt32:
		return "int32"
	case codeInt64:
		return "int64"
	case codeUint8:
		return "uint8"
	default:
		return "unknown"
	}
}
