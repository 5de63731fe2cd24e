package serialization

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/devbuf-ml/devbuf/buffer"
)

// Read deserializes a buffer image from r into b. The target's declared
// length must equal the encoded element count (buffer.ErrLengthMismatch
// otherwise), and its element type must match the encoded type. Reading
// an image of a never-populated buffer leaves b unpopulated.
func Read[T buffer.Element](r io.Reader, b *buffer.Buffer[T]) error {
	if b.Freed() {
		return buffer.ErrUseAfterFree
	}

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	if string(magic[:]) != MagicBytes {
		return fmt.Errorf("%w: %q", ErrInvalidMagic, magic[:])
	}

	var hdr header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if hdr.Version != FormatVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, hdr.Version)
	}

	want, ok := dtypeCode(b.DType())
	if !ok {
		return fmt.Errorf("%w: %s", ErrDataTypeMismatch, b.DType())
	}
	if hdr.DType != want {
		return fmt.Errorf("%w: encoded %s, buffer holds %s", ErrDataTypeMismatch, codeName(hdr.DType), b.DType())
	}
	if hdr.Count < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCount, hdr.Count)
	}

	if hdr.Flags&FlagPopulated == 0 {
		if hdr.Count != 0 {
			return fmt.Errorf("%w: unpopulated image carries %d elements", ErrInvalidCount, hdr.Count)
		}
		return nil
	}

	elems := make([]T, hdr.Count)
	if err := binary.Read(r, binary.LittleEndian, elems); err != nil {
		return fmt.Errorf("read %d elements: %w", hdr.Count, err)
	}
	return b.SetAll(elems)
}
