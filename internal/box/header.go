package box

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/simonhull/atomtree/internal/binary"
	"github.com/simonhull/atomtree/internal/types"
)

// BlockReader is the read side of the random-access file.
type BlockReader interface {
	Name() string
	ReadAt(ctx context.Context, off int64, n int) ([]byte, error)
}

// Header is the framing in front of every box payload.
type Header struct {
	Type Type

	// Declared is the 32-bit size field as last read or written: the
	// total size, 1 for the 64-bit form, or 0 for "to end of scope".
	Declared uint32

	// Size is the total size including the header. For a zero-size box it
	// is resolved against the enclosing scope.
	Size uint64

	Large bool // 64-bit size form
	ToEnd bool // declared size 0

	UserType uuid.UUID // only for TypeUUID
	Offset   int64
}

// NewHeader returns a header for a new box carrying dataSize payload
// bytes, choosing the 32-bit form when the total fits.
func NewHeader(t Type, dataSize uint64) Header {
	return Header{Type: t}.resized(dataSize)
}

// Len returns the header length in bytes.
func (h Header) Len() int {
	n := 8
	if h.Large {
		n += 8
	}
	if h.Type == TypeUUID {
		n += 16
	}
	return n
}

// DataOffset returns the file offset of the payload.
func (h Header) DataOffset() int64 { return h.Offset + int64(h.Len()) }

// DataSize returns the payload length.
func (h Header) DataSize() int64 { return int64(h.Size) - int64(h.Len()) }

// End returns the offset one past the last byte of the box.
func (h Header) End() int64 { return h.Offset + int64(h.Size) }

// resized returns the header for a payload of dataSize bytes. The 64-bit
// form is kept once chosen and adopted when the total no longer fits.
func (h Header) resized(dataSize uint64) Header {
	total := uint64(h.Len()) + dataSize
	if !h.Large && !h.ToEnd && total > math.MaxUint32 {
		h.Large = true
		total += 8
	}
	h.Size = total
	switch {
	case h.ToEnd:
		h.Declared = 0
	case h.Large:
		h.Declared = 1
	default:
		h.Declared = uint32(total)
	}
	return h
}

// Append renders the header.
func (h Header) Append(b *binary.Builder) {
	binary.Write(b, h.Declared)
	b.WriteBytes(h.Type[:])
	if h.Large {
		binary.Write(b, h.Size)
	}
	if h.Type == TypeUUID {
		b.WriteBytes(h.UserType[:])
	}
}

// Bytes renders the header into a fresh slice.
func (h Header) Bytes() []byte {
	b := binary.NewBuilder(h.Len())
	h.Append(b)
	return b.Bytes()
}

// ReadHeader parses the header at off. scopeEnd is the end of the
// enclosing box (or the file); a box may not extend past it, and a
// zero-size box extends exactly to it.
func ReadHeader(ctx context.Context, r BlockReader, off, scopeEnd int64) (Header, error) {
	malformed := func(format string, args ...any) error {
		return &types.MalformedBoxError{Path: r.Name(), Offset: off, Reason: fmt.Sprintf(format, args...)}
	}

	if scopeEnd-off < 8 {
		return Header{}, malformed("%d bytes left, need 8 for a header", scopeEnd-off)
	}
	b, err := r.ReadAt(ctx, off, 8)
	if err != nil {
		return Header{}, err
	}

	h := Header{Offset: off}
	h.Declared, _ = binary.GetBE[uint32](b, 0)
	copy(h.Type[:], b[4:8])

	switch h.Declared {
	case 0:
		h.ToEnd = true
		h.Size = uint64(scopeEnd - off)
	case 1:
		h.Large = true
		if scopeEnd-off < 16 {
			return Header{}, malformed("%s: no room for 64-bit size", h.Type)
		}
		ext, err := r.ReadAt(ctx, off+8, 8)
		if err != nil {
			return Header{}, err
		}
		h.Size, _ = binary.GetBE[uint64](ext, 0)
	default:
		h.Size = uint64(h.Declared)
	}

	if h.Type == TypeUUID {
		if scopeEnd-off < int64(h.Len()) {
			return Header{}, malformed("%s: no room for extended type", h.Type)
		}
		ext, err := r.ReadAt(ctx, off+int64(h.Len())-16, 16)
		if err != nil {
			return Header{}, err
		}
		copy(h.UserType[:], ext)
	}

	if h.Size < uint64(h.Len()) {
		return Header{}, malformed("%s: size %d smaller than its %d-byte header", h.Type, h.Size, h.Len())
	}
	if h.Size > uint64(scopeEnd-off) {
		return Header{}, malformed("%s: size %d overruns the %d bytes left in scope", h.Type, h.Size, scopeEnd-off)
	}
	return h, nil
}

// FullHeader is the version and flags that follow the header of a full box.
type FullHeader struct {
	Version uint8
	Flags   uint32
}

func readFullHeader(r *binary.Reader) (FullHeader, error) {
	v, err := binary.ReadValue[uint32](r, "version and flags")
	if err != nil {
		return FullHeader{}, err
	}
	return FullHeader{Version: uint8(v >> 24), Flags: v & 0x00FFFFFF}, nil
}

func (fh FullHeader) append(b *binary.Builder) {
	binary.Write(b, fh.Version)
	b.WriteUint24(fh.Flags)
}
