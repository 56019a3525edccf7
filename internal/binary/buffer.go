package binary

import (
	"bytes"

	"github.com/simonhull/atomtree/internal/types"
)

// Buffer is an immutable byte sequence.
//
// The zero value is an empty buffer.
type Buffer struct {
	b []byte
}

// NewBuffer returns a Buffer holding a copy of b.
func NewBuffer(b []byte) Buffer {
	return Buffer{b: bytes.Clone(b)}
}

// Len returns the number of bytes in the buffer.
func (b Buffer) Len() int {
	return len(b.b)
}

// Bytes returns a copy of the buffer contents.
func (b Buffer) Bytes() []byte {
	return bytes.Clone(b.b)
}

// Slice returns the sub-range [start, end). Ranges outside the buffer are
// an error, never clamped.
func (b Buffer) Slice(start, end int) (Buffer, error) {
	if start < 0 || start > len(b.b) {
		return Buffer{}, &types.OutOfBoundsError{
			Path: "buffer", What: "slicing", Offset: int64(start), Size: int64(len(b.b)),
		}
	}
	if end < start || end > len(b.b) {
		return Buffer{}, &types.OutOfBoundsError{
			Path: "buffer", What: "slicing", Offset: int64(start), Length: int64(end - start), Size: int64(len(b.b)),
		}
	}
	return Buffer{b: b.b[start:end:end]}, nil
}

// Reader returns a sequential reader over the buffer.
func (b Buffer) Reader(path string) *Reader {
	return NewReader(b.b, path)
}
