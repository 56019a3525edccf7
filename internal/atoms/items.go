package atoms

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/simonhull/atomtree/internal/binary"
	"github.com/simonhull/atomtree/internal/box"
	"golang.org/x/text/encoding/unicode"
)

// ItemTypes are the iTunes metadata items decoded under ilst. The ©
// stands for the 0xA9 byte.
var ItemTypes = []box.Type{
	box.TypeOf("©nam"), // title
	box.TypeOf("©ART"), // artist
	box.TypeOf("©alb"), // album
	box.TypeOf("©day"), // year
	box.TypeOf("©gen"), // genre
	box.TypeOf("©cmt"), // comment
	box.TypeOf("©wrt"), // composer
	box.TypeOf("©too"), // encoder
	box.TypeOf("aART"), // album artist
	box.TypeOf("trkn"),
	box.TypeOf("disk"),
	box.TypeOf("covr"),
	box.TypeOf("cpil"),
	box.TypeOf("tmpo"),
	box.TypeOf("desc"),
	Freeform,
}

// Freeform is the "----" item, named by its mean and name children.
var Freeform = box.TypeOf("----")

func registerItems(r *box.Registry) {
	for _, t := range ItemTypes {
		r.Register(t, Ilst, box.Static(box.Container()))
		r.Register(Data, t, newData)
	}
	r.Register(Mean, Freeform, box.Static(box.FullData(func() box.Payload { return &ItemString{} })))
	r.Register(Name, Freeform, box.Static(box.FullData(func() box.Payload { return &ItemString{} })))
}

// Well-known types of a data atom value.
const (
	DataTypeImplicit = 0
	DataTypeUTF8     = 1
	DataTypeUTF16    = 2
	DataTypeJPEG     = 13
	DataTypePNG      = 14
	DataTypeSigned   = 21
	DataTypeUnsigned = 22
	DataTypeBMP      = 27
)

// newData selects the value encoding from the type indicator in the first
// four payload bytes. Unknown indicators stay opaque.
func newData(ctx context.Context, p *box.Candidate) (box.Variant, error) {
	peek, err := p.Peek(ctx, 4)
	if err != nil {
		return box.Variant{}, err
	}
	if len(peek) < 4 || peek[0] != 0 {
		return box.Opaque(), nil
	}
	switch uint32(peek[1])<<16 | uint32(peek[2])<<8 | uint32(peek[3]) {
	case DataTypeUTF8, DataTypeUTF16:
		return box.Data(func() box.Payload { return &TextData{} }), nil
	case DataTypeSigned, DataTypeUnsigned:
		return box.Data(func() box.Payload { return &IntData{} }), nil
	case DataTypeJPEG, DataTypePNG, DataTypeBMP, DataTypeImplicit:
		return box.Data(func() box.Payload { return &BinaryData{} }), nil
	}
	return box.Opaque(), nil
}

// DataHeader is the type indicator and locale leading every data atom.
type DataHeader struct {
	Type   uint32 // high byte reserved, zero
	Locale uint32
}

func (h *DataHeader) decode(r *binary.Reader) error {
	cr := binary.NewChainReader(r)
	h.Type = binary.ReadChained[uint32](cr, "reading data type")
	h.Locale = binary.ReadChained[uint32](cr, "reading locale")
	return cr.Error()
}

func (h *DataHeader) encode(b *binary.Builder) {
	binary.Write(b, h.Type)
	binary.Write(b, h.Locale)
}

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// TextData is a UTF-8 or UTF-16 string value.
type TextData struct {
	DataHeader
	Value string
}

func (p *TextData) Decode(r *binary.Reader, _ box.FullHeader) error {
	if err := p.decode(r); err != nil {
		return err
	}
	raw := r.Rest()
	if p.Type != DataTypeUTF16 {
		p.Value = string(raw)
		return nil
	}
	s, err := utf16be.NewDecoder().Bytes(raw)
	if err != nil {
		return fmt.Errorf("decoding UTF-16 value: %w", err)
	}
	p.Value = string(s)
	return nil
}

func (p *TextData) Encode(b *binary.Builder, _ box.FullHeader) error {
	p.encode(b)
	if p.Type != DataTypeUTF16 {
		b.WriteString(p.Value)
		return nil
	}
	if !utf8.ValidString(p.Value) {
		return fmt.Errorf("value is not valid UTF-8")
	}
	raw, err := utf16be.NewEncoder().String(p.Value)
	if err != nil {
		return fmt.Errorf("encoding UTF-16 value: %w", err)
	}
	b.WriteString(raw)
	return nil
}

func (p *TextData) String() string { return fmt.Sprintf("%q", p.Value) }

// IntData is a big-endian signed or unsigned integer of 1, 2, 3, 4 or 8
// bytes. The width is kept so the value re-encodes as it was stored.
type IntData struct {
	DataHeader
	Width int
	Bits  uint64
}

func (p *IntData) Decode(r *binary.Reader, _ box.FullHeader) error {
	if err := p.decode(r); err != nil {
		return err
	}
	raw := r.Rest()
	switch len(raw) {
	case 1, 2, 3, 4, 8:
	default:
		return fmt.Errorf("integer of %d bytes", len(raw))
	}
	p.Width, p.Bits = len(raw), 0
	for _, c := range raw {
		p.Bits = p.Bits<<8 | uint64(c)
	}
	return nil
}

func (p *IntData) Encode(b *binary.Builder, _ box.FullHeader) error {
	switch p.Width {
	case 1, 2, 3, 4, 8:
	default:
		return fmt.Errorf("integer width %d", p.Width)
	}
	p.encode(b)
	for i := p.Width - 1; i >= 0; i-- {
		binary.Write(b, uint8(p.Bits>>(8*i)))
	}
	return nil
}

// Int returns the value, sign-extended for signed data.
func (p *IntData) Int() int64 {
	if p.Type != DataTypeSigned || p.Width == 8 {
		return int64(p.Bits)
	}
	shift := 64 - 8*p.Width
	return int64(p.Bits<<shift) >> shift
}

func (p *IntData) String() string { return fmt.Sprintf("%d", p.Int()) }

// BinaryData is an image or implicitly typed value, kept as bytes.
type BinaryData struct {
	DataHeader
	Value []byte
}

func (p *BinaryData) Decode(r *binary.Reader, _ box.FullHeader) error {
	if err := p.decode(r); err != nil {
		return err
	}
	p.Value = r.Rest()
	return nil
}

func (p *BinaryData) Encode(b *binary.Builder, _ box.FullHeader) error {
	p.encode(b)
	b.WriteBytes(p.Value)
	return nil
}

// MIMEType names the image format, or "" for non-image data.
func (p *BinaryData) MIMEType() string {
	switch p.Type {
	case DataTypeJPEG:
		return "image/jpeg"
	case DataTypePNG:
		return "image/png"
	case DataTypeBMP:
		return "image/bmp"
	}
	return ""
}

func (p *BinaryData) String() string {
	if m := p.MIMEType(); m != "" {
		return fmt.Sprintf("%s %d bytes", m, len(p.Value))
	}
	return fmt.Sprintf("%d bytes", len(p.Value))
}

// ItemString is the payload of the mean and name atoms of a freeform item.
type ItemString struct {
	Value string
}

func (p *ItemString) Decode(r *binary.Reader, _ box.FullHeader) error {
	p.Value = string(r.Rest())
	return nil
}

func (p *ItemString) Encode(b *binary.Builder, _ box.FullHeader) error {
	b.WriteString(p.Value)
	return nil
}

func (p *ItemString) String() string { return fmt.Sprintf("%q", p.Value) }
