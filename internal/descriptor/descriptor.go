// Package descriptor parses and serializes ISO/IEC 14496-1 descriptor
// trees, the payload of esds and iods boxes.
//
// A descriptor is framed as a one-byte tag followed by a size of one to
// four bytes, each carrying seven bits with the high bit set on every
// byte but the last. Encoders disagree about padding (ffmpeg always
// writes four bytes), so the parsed width is kept and reused on encode
// whenever the body still fits.
package descriptor

import (
	"fmt"

	"github.com/yapingcat/gomedia/go-codec"
)

// Tag identifies a descriptor class.
type Tag uint8

// Tags with a structured body. Every other tag decodes to Raw.
const (
	TagObject              Tag = 0x01
	TagInitialObject       Tag = 0x02
	TagES                  Tag = 0x03
	TagDecoderConfig       Tag = 0x04
	TagDecoderSpecificInfo Tag = 0x05
	TagSLConfig            Tag = 0x06
	TagESIDInc             Tag = 0x0E
	TagESIDRef             Tag = 0x0F
	TagMP4IOD              Tag = 0x10
	TagMP4OD               Tag = 0x11
)

var tagNames = map[Tag]string{
	TagObject:              "ObjectDescriptor",
	TagInitialObject:       "InitialObjectDescriptor",
	TagES:                  "ESDescriptor",
	TagDecoderConfig:       "DecoderConfigDescriptor",
	TagDecoderSpecificInfo: "DecoderSpecificInfo",
	TagSLConfig:            "SLConfigDescriptor",
	TagESIDInc:             "ES_ID_Inc",
	TagESIDRef:             "ES_ID_Ref",
	TagMP4IOD:              "MP4_IOD",
	TagMP4OD:               "MP4_OD",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(0x%02x)", uint8(t))
}

// MaxSize is the largest body a four-byte size field can express.
const MaxSize = 1<<28 - 1

// readSize decodes the variable-length size starting at b[0]. It returns
// the size and the number of bytes the field occupied.
func readSize(b []byte) (size, width int, err error) {
	avail := min(len(b), 4)
	if avail == 0 {
		return 0, 0, fmt.Errorf("missing size field")
	}
	bs := codec.NewBitStream(b[:avail])
	for width < avail {
		more := bs.GetBit()
		size = size<<7 | int(bs.Uint32(7))
		width++
		if more == 0 {
			return size, width, nil
		}
	}
	if width == 4 {
		return 0, 0, fmt.Errorf("size field longer than 4 bytes")
	}
	return 0, 0, fmt.Errorf("size field truncated after %d bytes", width)
}

// sizeWidth returns the minimal number of size bytes for n.
func sizeWidth(n int) int {
	switch {
	case n < 1<<7:
		return 1
	case n < 1<<14:
		return 2
	case n < 1<<21:
		return 3
	default:
		return 4
	}
}

// appendSize writes n into exactly width bytes.
func appendSize(dst []byte, n, width int) []byte {
	bsw := codec.NewBitStreamWriter(width)
	for i := width - 1; i >= 0; i-- {
		more := uint8(0)
		if i > 0 {
			more = 1
		}
		bsw.PutUint8(more, 1)
		bsw.PutUint8(uint8(n>>(7*i))&0x7f, 7)
	}
	return append(dst, bsw.Bits()[:width]...)
}
