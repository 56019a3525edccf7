package binary

import "io"

// Builder accumulates an encoded payload. Writes cannot fail.
type Builder struct {
	b []byte
}

// NewBuilder returns a Builder with room for size bytes.
func NewBuilder(size int) *Builder {
	return &Builder{b: make([]byte, 0, size)}
}

// Write appends a value of type T in big-endian byte order.
func Write[T Unsigned](b *Builder, val T) {
	b.b = encode(b.b, val, BigEndian)
}

// WriteLE appends a value of type T in little-endian byte order.
func WriteLE[T Unsigned](b *Builder, val T) {
	b.b = encode(b.b, val, LittleEndian)
}

// WriteUint24 appends the low 24 bits of v, big-endian.
func (b *Builder) WriteUint24(v uint32) {
	b.b = append(b.b, byte(v>>16), byte(v>>8), byte(v))
}

// WriteBytes appends raw bytes.
func (b *Builder) WriteBytes(p []byte) {
	b.b = append(b.b, p...)
}

// WriteString appends s without a terminator.
func (b *Builder) WriteString(s string) {
	b.b = append(b.b, s...)
}

// WriteZeros appends n zero bytes.
func (b *Builder) WriteZeros(n int) {
	b.b = append(b.b, make([]byte, n)...)
}

// Len returns the number of bytes written so far.
func (b *Builder) Len() int {
	return len(b.b)
}

// Bytes returns the accumulated bytes. The slice aliases the builder.
func (b *Builder) Bytes() []byte {
	return b.b
}

// SafeWriter wraps io.Writer with position tracking.
type SafeWriter struct {
	w      io.Writer
	offset int64
}

// NewSafeWriter creates a new SafeWriter.
func NewSafeWriter(w io.Writer) *SafeWriter {
	return &SafeWriter{w: w}
}

// Offset returns the current position (number of bytes written).
func (sw *SafeWriter) Offset() int64 {
	return sw.offset
}

// WriteBytes writes raw bytes to the underlying writer.
func (sw *SafeWriter) WriteBytes(b []byte) error {
	n, err := sw.w.Write(b)
	sw.offset += int64(n)
	return err
}
