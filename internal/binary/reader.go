// Package binary provides the byte buffer, builder and bounds-checked
// readers every other package decodes and encodes boxes with.
package binary

import (
	"fmt"
	"io"

	"github.com/simonhull/atomtree/internal/types"
)

// SafeReader wraps io.ReaderAt with bounds checking and helpful error messages.
type SafeReader struct {
	r    io.ReaderAt
	path string
	size int64
}

// NewSafeReader creates a new SafeReader.
func NewSafeReader(r io.ReaderAt, size int64, path string) *SafeReader {
	return &SafeReader{
		r:    r,
		size: size,
		path: path,
	}
}

// Path returns the file path associated with this reader.
func (sr *SafeReader) Path() string {
	return sr.path
}

// Size returns the readable length.
func (sr *SafeReader) Size() int64 {
	return sr.size
}

// ReadAt fills b from off. Reads that would cross the end are rejected
// before touching the underlying reader.
func (sr *SafeReader) ReadAt(b []byte, off int64, what string) error {
	if off < 0 || off > sr.size || int64(len(b)) > sr.size-off {
		return &types.OutOfBoundsError{
			Path: sr.path, What: what, Offset: off, Length: int64(len(b)), Size: sr.size,
		}
	}
	if len(b) == 0 {
		return nil
	}

	n, err := sr.r.ReadAt(b, off)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%s: failed to read %s at offset %d: %w", sr.path, what, off, err)
	}

	if n < len(b) {
		return fmt.Errorf("%s: short read for %s at offset %d: got %d bytes, expected %d",
			sr.path, what, off, n, len(b))
	}

	return nil
}

// Reader provides sequential reading over an in-memory payload with
// automatic offset tracking.
type Reader struct {
	b      []byte
	path   string
	offset int
}

// NewReader creates a Reader over b. The path is only used in errors.
func NewReader(b []byte, path string) *Reader {
	return &Reader{b: b, path: path}
}

func (r *Reader) take(n int, what string) ([]byte, error) {
	if n < 0 || n > len(r.b)-r.offset {
		return nil, &types.OutOfBoundsError{
			Path: r.path, What: what, Offset: int64(r.offset), Length: int64(n), Size: int64(len(r.b)),
		}
	}
	out := r.b[r.offset : r.offset+n]
	r.offset += n
	return out, nil
}

// ReadValue reads a big-endian value and advances the offset.
func ReadValue[T Unsigned](r *Reader, what string) (T, error) {
	return readEndian[T](r, what, BigEndian)
}

// ReadValueLE reads a little-endian value and advances the offset.
func ReadValueLE[T Unsigned](r *Reader, what string) (T, error) {
	return readEndian[T](r, what, LittleEndian)
}

func readEndian[T Unsigned](r *Reader, what string, e Endianness) (T, error) {
	b, err := r.take(sizeOf[T](), what)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](b, e), nil
}

// ReadBytes reads n bytes into a fresh slice and advances the offset.
func (r *Reader) ReadBytes(n int, what string) ([]byte, error) {
	b, err := r.take(n, what)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// ReadString reads a string of the given length and advances the offset.
func (r *Reader) ReadString(length int, what string) (string, error) {
	b, err := r.take(length, what)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Rest returns a copy of everything not yet read and moves to the end.
func (r *Reader) Rest() []byte {
	b, _ := r.take(r.Remaining(), "rest")
	return append([]byte(nil), b...)
}

// Skip advances the offset by n bytes.
func (r *Reader) Skip(n int, what string) error {
	_, err := r.take(n, what)
	return err
}

// Offset returns the current offset.
func (r *Reader) Offset() int {
	return r.offset
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.b) - r.offset
}

// ChainReader allows chaining multiple reads with deferred error checking.
// This avoids repetitive "if err != nil" checks.
type ChainReader struct {
	*Reader
	err error
}

// NewChainReader creates a new ChainReader.
func NewChainReader(r *Reader) *ChainReader {
	return &ChainReader{Reader: r}
}

// ReadChained reads a big-endian value with deferred error checking.
// If a previous read failed, returns zero value without attempting read.
func ReadChained[T Unsigned](cr *ChainReader, what string) T {
	if cr.err != nil {
		var zero T
		return zero
	}

	val, err := ReadValue[T](cr.Reader, what)
	if err != nil {
		cr.err = err
	}
	return val
}

// Bytes reads n bytes, accumulating any error.
func (cr *ChainReader) Bytes(n int, what string) []byte {
	if cr.err != nil {
		return nil
	}
	val, err := cr.Reader.ReadBytes(n, what)
	cr.err = err
	return val
}

// String reads a string, accumulating any error.
func (cr *ChainReader) String(length int, what string) string {
	if cr.err != nil {
		return ""
	}
	val, err := cr.Reader.ReadString(length, what)
	cr.err = err
	return val
}

// Skip advances past n bytes, accumulating any error.
func (cr *ChainReader) Skip(n int, what string) {
	if cr.err != nil {
		return
	}
	cr.err = cr.Reader.Skip(n, what)
}

// Rest returns the unread bytes, or nil after an error.
func (cr *ChainReader) Rest() []byte {
	if cr.err != nil {
		return nil
	}
	return cr.Reader.Rest()
}

// Error returns the accumulated error, if any.
func (cr *ChainReader) Error() error {
	return cr.err
}
