package descriptor

import (
	"fmt"

	"github.com/simonhull/atomtree/internal/binary"
	"github.com/yapingcat/gomedia/go-codec"
)

// Body is the decoded content of one descriptor, excluding any nested
// descriptors that follow it.
type Body interface {
	Decode(r *binary.Reader) error
	Encode(b *binary.Builder) error
}

type factoryEntry struct {
	new   func() Body
	nests bool
}

// factory maps tags to body constructors. nests marks classes whose
// fixed fields are followed by child descriptors.
var factory = map[Tag]factoryEntry{
	TagES:                  {func() Body { return &ESDescriptor{} }, true},
	TagDecoderConfig:       {func() Body { return &DecoderConfig{} }, true},
	TagDecoderSpecificInfo: {func() Body { return &DecoderSpecificInfo{} }, false},
	TagSLConfig:            {func() Body { return &SLConfig{} }, false},
}

func newBody(tag Tag) (Body, bool) {
	if e, ok := factory[tag]; ok {
		return e.new(), e.nests
	}
	return &Raw{}, false
}

// ESDescriptor is the elementary stream descriptor (tag 0x03).
type ESDescriptor struct {
	ID uint16

	// Optional fields are present when their flag is set.
	StreamDependence bool
	URLFlag          bool
	OCRStream        bool
	Priority         uint8 // 5 bits

	DependsOnID uint16
	URL         string
	OCRID       uint16
}

func (d *ESDescriptor) Decode(r *binary.Reader) error {
	id, err := binary.ReadValue[uint16](r, "reading ES_ID")
	if err != nil {
		return err
	}
	flags, err := r.ReadBytes(1, "reading ES flags")
	if err != nil {
		return err
	}
	d.ID = id

	bs := codec.NewBitStream(flags)
	d.StreamDependence = bs.GetBit() == 1
	d.URLFlag = bs.GetBit() == 1
	d.OCRStream = bs.GetBit() == 1
	d.Priority = bs.Uint8(5)

	if d.StreamDependence {
		if d.DependsOnID, err = binary.ReadValue[uint16](r, "reading dependsOn_ES_ID"); err != nil {
			return err
		}
	}
	if d.URLFlag {
		n, err := binary.ReadValue[uint8](r, "reading URL length")
		if err != nil {
			return err
		}
		if d.URL, err = r.ReadString(int(n), "reading URL"); err != nil {
			return err
		}
	}
	if d.OCRStream {
		if d.OCRID, err = binary.ReadValue[uint16](r, "reading OCR_ES_ID"); err != nil {
			return err
		}
	}
	return nil
}

func (d *ESDescriptor) Encode(b *binary.Builder) error {
	if d.Priority > 31 {
		return fmt.Errorf("stream priority %d exceeds 5 bits", d.Priority)
	}
	if len(d.URL) > 255 {
		return fmt.Errorf("URL of %d bytes exceeds 255", len(d.URL))
	}
	binary.Write(b, d.ID)

	bsw := codec.NewBitStreamWriter(1)
	bsw.PutUint8(bit(d.StreamDependence), 1)
	bsw.PutUint8(bit(d.URLFlag), 1)
	bsw.PutUint8(bit(d.OCRStream), 1)
	bsw.PutUint8(d.Priority, 5)
	b.WriteBytes(bsw.Bits()[:1])

	if d.StreamDependence {
		binary.Write(b, d.DependsOnID)
	}
	if d.URLFlag {
		binary.Write(b, uint8(len(d.URL)))
		b.WriteString(d.URL)
	}
	if d.OCRStream {
		binary.Write(b, d.OCRID)
	}
	return nil
}

// Object type indications for audio decoder configs.
const (
	ObjectTypeMPEG4Audio     uint8 = 0x40
	ObjectTypeMPEG2AACMain   uint8 = 0x66
	ObjectTypeMPEG2AACLC     uint8 = 0x67
	ObjectTypeMPEG2AACSSR    uint8 = 0x68
	ObjectTypeMPEG2Audio     uint8 = 0x69
	ObjectTypeMPEG1Audio     uint8 = 0x6B
	ObjectTypeStreamAudio    uint8 = 0x05
	decoderConfigFixedLength       = 13
)

// DecoderConfig is the decoder configuration descriptor (tag 0x04).
type DecoderConfig struct {
	ObjectType uint8
	StreamType uint8 // 6 bits
	UpStream   bool
	Reserved   uint8 // 1 bit, normally set
	BufferSize uint32 // 24 bits
	MaxBitrate uint32
	AvgBitrate uint32
}

func (d *DecoderConfig) Decode(r *binary.Reader) error {
	raw, err := r.ReadBytes(decoderConfigFixedLength, "reading decoder config")
	if err != nil {
		return err
	}
	bs := codec.NewBitStream(raw)
	d.ObjectType = bs.Uint8(8)
	d.StreamType = bs.Uint8(6)
	d.UpStream = bs.GetBit() == 1
	d.Reserved = bs.GetBit()
	d.BufferSize = bs.Uint32(24)
	d.MaxBitrate = bs.Uint32(32)
	d.AvgBitrate = bs.Uint32(32)
	return nil
}

func (d *DecoderConfig) Encode(b *binary.Builder) error {
	if d.StreamType > 63 {
		return fmt.Errorf("stream type %d exceeds 6 bits", d.StreamType)
	}
	if d.BufferSize > 1<<24-1 {
		return fmt.Errorf("buffer size %d exceeds 24 bits", d.BufferSize)
	}
	bsw := codec.NewBitStreamWriter(decoderConfigFixedLength)
	bsw.PutUint8(d.ObjectType, 8)
	bsw.PutUint8(d.StreamType, 6)
	bsw.PutUint8(bit(d.UpStream), 1)
	bsw.PutUint8(d.Reserved&1, 1)
	bsw.PutUint32(d.BufferSize, 24)
	bsw.PutUint32(d.MaxBitrate, 32)
	bsw.PutUint32(d.AvgBitrate, 32)
	b.WriteBytes(bsw.Bits()[:decoderConfigFixedLength])
	return nil
}

// DecoderSpecificInfo carries codec setup bytes (tag 0x05), for AAC the
// AudioSpecificConfig.
type DecoderSpecificInfo struct {
	Data []byte
}

func (d *DecoderSpecificInfo) Decode(r *binary.Reader) error {
	d.Data = r.Rest()
	return nil
}

func (d *DecoderSpecificInfo) Encode(b *binary.Builder) error {
	b.WriteBytes(d.Data)
	return nil
}

// SLConfig is the sync layer configuration descriptor (tag 0x06). MP4
// files use predefined value 2; custom layouts are kept as raw bytes.
type SLConfig struct {
	Predefined uint8
	Custom     []byte
}

func (d *SLConfig) Decode(r *binary.Reader) error {
	v, err := binary.ReadValue[uint8](r, "reading SL predefined")
	if err != nil {
		return err
	}
	d.Predefined = v
	if r.Remaining() > 0 {
		d.Custom = r.Rest()
	}
	return nil
}

func (d *SLConfig) Encode(b *binary.Builder) error {
	binary.Write(b, d.Predefined)
	b.WriteBytes(d.Custom)
	return nil
}

// Raw holds the body of a descriptor with no structured decoder.
type Raw struct {
	Data []byte
}

func (d *Raw) Decode(r *binary.Reader) error {
	d.Data = r.Rest()
	return nil
}

func (d *Raw) Encode(b *binary.Builder) error {
	b.WriteBytes(d.Data)
	return nil
}

func bit(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}
