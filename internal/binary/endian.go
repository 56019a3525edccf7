package binary

import (
	"encoding/binary"

	"github.com/simonhull/atomtree/internal/types"
)

// Endianness represents byte order for multi-byte values.
type Endianness int

const (
	// BigEndian uses big-endian byte order.
	// Used by: every ISO-BMFF header and most payload fields.
	BigEndian Endianness = iota

	// LittleEndian uses little-endian byte order.
	// Used by: the WAVEFORMATEX structure in QuickTime wave atoms.
	LittleEndian
)

// Unsigned is the set of fixed-width values the codec reads and writes.
type Unsigned interface {
	uint8 | uint16 | uint32 | uint64
}

func sizeOf[T Unsigned]() int {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return 1
	case uint16:
		return 2
	case uint32:
		return 4
	default:
		return 8
	}
}

func order(e Endianness) interface {
	binary.ByteOrder
	binary.AppendByteOrder
} {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// decode converts the leading sizeOf[T]() bytes of b. The caller
// guarantees the length.
func decode[T Unsigned](b []byte, e Endianness) T {
	bo := order(e)
	var zero T
	switch any(zero).(type) {
	case uint8:
		return T(b[0])
	case uint16:
		return T(bo.Uint16(b))
	case uint32:
		return T(bo.Uint32(b))
	default:
		return T(bo.Uint64(b))
	}
}

func encode[T Unsigned](dst []byte, v T, e Endianness) []byte {
	bo := order(e)
	var zero T
	switch any(zero).(type) {
	case uint8:
		return append(dst, byte(v))
	case uint16:
		return bo.AppendUint16(dst, uint16(v))
	case uint32:
		return bo.AppendUint32(dst, uint32(v))
	default:
		return bo.AppendUint64(dst, uint64(v))
	}
}

// Get reads a value of type T at off with the given byte order.
//
// Example:
//
//	size, err := binary.Get[uint32](hdr, 0, binary.BigEndian)
func Get[T Unsigned](b []byte, off int, e Endianness) (T, error) {
	var zero T
	n := sizeOf[T]()
	if off < 0 || off > len(b) || len(b)-off < n {
		return zero, &types.OutOfBoundsError{
			Path: "buffer", What: "decoding value", Offset: int64(off), Length: int64(n), Size: int64(len(b)),
		}
	}
	return decode[T](b[off:], e), nil
}

// GetBE reads a big-endian value of type T at off.
func GetBE[T Unsigned](b []byte, off int) (T, error) {
	return Get[T](b, off, BigEndian)
}
