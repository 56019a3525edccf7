package atoms

import (
	"fmt"
	"strings"
	"time"

	"github.com/simonhull/atomtree/internal/binary"
	"github.com/simonhull/atomtree/internal/box"
	"github.com/yapingcat/gomedia/go-codec"
)

// FileType is the ftyp box.
type FileType struct {
	MajorBrand       box.Type
	MinorVersion     uint32
	CompatibleBrands []box.Type
}

func (p *FileType) Decode(r *binary.Reader, _ box.FullHeader) error {
	major, err := r.ReadBytes(4, "reading major brand")
	if err != nil {
		return err
	}
	p.MajorBrand = fourCC(major)
	if p.MinorVersion, err = binary.ReadValue[uint32](r, "reading minor version"); err != nil {
		return err
	}
	if r.Remaining()%4 != 0 {
		return fmt.Errorf("compatible brands: %d bytes is not a multiple of 4", r.Remaining())
	}
	p.CompatibleBrands = nil
	for r.Remaining() > 0 {
		b, _ := r.ReadBytes(4, "reading compatible brand")
		p.CompatibleBrands = append(p.CompatibleBrands, fourCC(b))
	}
	return nil
}

func (p *FileType) Encode(b *binary.Builder, _ box.FullHeader) error {
	b.WriteBytes(p.MajorBrand[:])
	binary.Write(b, p.MinorVersion)
	for _, c := range p.CompatibleBrands {
		b.WriteBytes(c[:])
	}
	return nil
}

func (p *FileType) String() string {
	brands := make([]string, len(p.CompatibleBrands))
	for i, c := range p.CompatibleBrands {
		brands[i] = c.String()
	}
	return fmt.Sprintf("major=%s minor=%d compatible=[%s]", p.MajorBrand, p.MinorVersion, strings.Join(brands, " "))
}

// mediaTimes are the leading fields shared by mvhd and mdhd. Version 1
// widens the times and the duration to 64 bits.
type mediaTimes struct {
	CreationTime     uint64
	ModificationTime uint64
	Timescale        uint32
	Duration         uint64
}

func (m *mediaTimes) decode(r *binary.Reader, h box.FullHeader) error {
	cr := binary.NewChainReader(r)
	switch h.Version {
	case 0:
		m.CreationTime = uint64(binary.ReadChained[uint32](cr, "reading creation time"))
		m.ModificationTime = uint64(binary.ReadChained[uint32](cr, "reading modification time"))
		m.Timescale = binary.ReadChained[uint32](cr, "reading timescale")
		m.Duration = uint64(binary.ReadChained[uint32](cr, "reading duration"))
	case 1:
		m.CreationTime = binary.ReadChained[uint64](cr, "reading creation time")
		m.ModificationTime = binary.ReadChained[uint64](cr, "reading modification time")
		m.Timescale = binary.ReadChained[uint32](cr, "reading timescale")
		m.Duration = binary.ReadChained[uint64](cr, "reading duration")
	default:
		return fmt.Errorf("unsupported version %d", h.Version)
	}
	return cr.Error()
}

func (m *mediaTimes) encode(b *binary.Builder, h box.FullHeader) error {
	switch h.Version {
	case 0:
		if max(m.CreationTime, m.ModificationTime, m.Duration) > 0xFFFFFFFF {
			return fmt.Errorf("times need version 1")
		}
		binary.Write(b, uint32(m.CreationTime))
		binary.Write(b, uint32(m.ModificationTime))
		binary.Write(b, m.Timescale)
		binary.Write(b, uint32(m.Duration))
	case 1:
		binary.Write(b, m.CreationTime)
		binary.Write(b, m.ModificationTime)
		binary.Write(b, m.Timescale)
		binary.Write(b, m.Duration)
	default:
		return fmt.Errorf("unsupported version %d", h.Version)
	}
	return nil
}

// Length converts the duration to wall time. It is zero when the
// timescale is unset.
func (m *mediaTimes) Length() time.Duration {
	if m.Timescale == 0 {
		return 0
	}
	sec := m.Duration / uint64(m.Timescale)
	rem := m.Duration % uint64(m.Timescale)
	return time.Duration(sec)*time.Second + time.Duration(rem*uint64(time.Second)/uint64(m.Timescale))
}

// MovieHeader is the mvhd box.
type MovieHeader struct {
	mediaTimes
	Rate        uint32 // 16.16
	Volume      uint16 // 8.8
	Reserved    [10]byte
	Matrix      [9]uint32
	PreDefined  [24]byte
	NextTrackID uint32
}

func (p *MovieHeader) Decode(r *binary.Reader, h box.FullHeader) error {
	if err := p.decode(r, h); err != nil {
		return err
	}
	cr := binary.NewChainReader(r)
	p.Rate = binary.ReadChained[uint32](cr, "reading rate")
	p.Volume = binary.ReadChained[uint16](cr, "reading volume")
	copy(p.Reserved[:], cr.Bytes(len(p.Reserved), "reading reserved"))
	for i := range p.Matrix {
		p.Matrix[i] = binary.ReadChained[uint32](cr, "reading matrix")
	}
	copy(p.PreDefined[:], cr.Bytes(len(p.PreDefined), "reading pre-defined"))
	p.NextTrackID = binary.ReadChained[uint32](cr, "reading next track ID")
	return cr.Error()
}

func (p *MovieHeader) Encode(b *binary.Builder, h box.FullHeader) error {
	if err := p.encode(b, h); err != nil {
		return err
	}
	binary.Write(b, p.Rate)
	binary.Write(b, p.Volume)
	b.WriteBytes(p.Reserved[:])
	for _, m := range p.Matrix {
		binary.Write(b, m)
	}
	b.WriteBytes(p.PreDefined[:])
	binary.Write(b, p.NextTrackID)
	return nil
}

func (p *MovieHeader) String() string {
	return fmt.Sprintf("timescale=%d duration=%d (%s)", p.Timescale, p.Duration, p.Length())
}

// MediaHeader is the mdhd box.
type MediaHeader struct {
	mediaTimes
	Pad        uint8 // 1 bit
	Language   string
	PreDefined uint16
}

func (p *MediaHeader) Decode(r *binary.Reader, h box.FullHeader) error {
	if err := p.decode(r, h); err != nil {
		return err
	}
	lang, err := r.ReadBytes(2, "reading language")
	if err != nil {
		return err
	}
	bs := codec.NewBitStream(lang)
	p.Pad = bs.GetBit()
	code := make([]byte, 3)
	for i := range code {
		code[i] = bs.Uint8(5) + 0x60
	}
	p.Language = string(code)
	p.PreDefined, err = binary.ReadValue[uint16](r, "reading pre-defined")
	return err
}

func (p *MediaHeader) Encode(b *binary.Builder, h box.FullHeader) error {
	if len(p.Language) != 3 {
		return fmt.Errorf("language %q is not three letters", p.Language)
	}
	if err := p.encode(b, h); err != nil {
		return err
	}
	bsw := codec.NewBitStreamWriter(2)
	bsw.PutUint8(p.Pad&1, 1)
	for i := range 3 {
		c := p.Language[i]
		if c < 0x60 || c > 0x7F {
			return fmt.Errorf("language %q: %q is outside the packed range", p.Language, c)
		}
		bsw.PutUint8(c-0x60, 5)
	}
	b.WriteBytes(bsw.Bits()[:2])
	binary.Write(b, p.PreDefined)
	return nil
}

func (p *MediaHeader) String() string {
	return fmt.Sprintf("timescale=%d duration=%d language=%s", p.Timescale, p.Duration, p.Language)
}

// Handler is the hdlr box. QuickTime files also place one in minf to
// name the data handler; it carries "dhlr" as its component type and
// does not describe the media.
type Handler struct {
	ComponentType box.Type // pre_defined in ISO files
	Type          box.Type
	Reserved      [12]byte
	Name          []byte // as stored: NUL-terminated or a Pascal string
}

var dataHandler = box.TypeOf("dhlr")

// fourCC copies a type code out of b, leaving the zero type after a
// failed chained read.
func fourCC(b []byte) (t box.Type) {
	copy(t[:], b)
	return t
}

func (p *Handler) Decode(r *binary.Reader, _ box.FullHeader) error {
	cr := binary.NewChainReader(r)
	p.ComponentType = fourCC(cr.Bytes(4, "reading component type"))
	p.Type = fourCC(cr.Bytes(4, "reading handler type"))
	copy(p.Reserved[:], cr.Bytes(len(p.Reserved), "reading reserved"))
	if err := cr.Error(); err != nil {
		return err
	}
	p.Name = r.Rest()
	return nil
}

func (p *Handler) Encode(b *binary.Builder, _ box.FullHeader) error {
	b.WriteBytes(p.ComponentType[:])
	b.WriteBytes(p.Type[:])
	b.WriteBytes(p.Reserved[:])
	b.WriteBytes(p.Name)
	return nil
}

// HandlerType reports the media handler, or the zero type for QuickTime
// data handlers.
func (p *Handler) HandlerType() box.Type {
	if p.ComponentType == dataHandler {
		return box.Type{}
	}
	return p.Type
}

// NameString returns the handler name without its terminator or length
// prefix.
func (p *Handler) NameString() string {
	n := p.Name
	if len(n) > 0 && int(n[0]) == len(n)-1 && p.ComponentType != (box.Type{}) {
		return string(n[1:])
	}
	return strings.TrimRight(string(n), "\x00")
}

func (p *Handler) String() string {
	return fmt.Sprintf("handler=%s name=%q", p.Type, p.NameString())
}
