package serialization

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/devbuf-ml/devbuf/buffer"
)

// Write serializes b's logical content to w. A buffer that was never
// populated is encoded with a zero count and the populated flag clear;
// a populated buffer always encodes its full fixed length.
func Write[T buffer.Element](w io.Writer, b *buffer.Buffer[T]) error {
	if b.Freed() {
		return buffer.ErrUseAfterFree
	}

	code, ok := dtypeCode(b.DType())
	if !ok {
		return fmt.Errorf("%w: %s", ErrDataTypeMismatch, b.DType())
	}

	hdr := header{Version: FormatVersion, DType: code}

	var elems []T
	if b.Populated() {
		var err error
		if elems, err = b.Elements(); err != nil {
			return err
		}
		hdr.Flags |= FlagPopulated
		hdr.Count = int32(len(elems)) //nolint:gosec // G115: buffer lengths fit in int32 on the wire
	}

	if _, err := w.Write([]byte(MagicBytes)); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if len(elems) == 0 {
		return nil
	}
	if err := binary.Write(w, binary.LittleEndian, elems); err != nil {
		return fmt.Errorf("write %d elements: %w", len(elems), err)
	}
	return nil
}
