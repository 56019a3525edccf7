package atoms

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/simonhull/atomtree/internal/binary"
	"github.com/simonhull/atomtree/internal/box"
	"github.com/simonhull/atomtree/internal/descriptor"
)

// AudioSampleEntryTypes are the sample entry codes decoded in sound
// tracks.
var AudioSampleEntryTypes = []box.Type{
	box.TypeOf("mp4a"),
	box.TypeOf("alac"),
	box.TypeOf("ac-3"),
	box.TypeOf("ec-3"),
	box.TypeOf("Opus"),
	box.TypeOf("fLaC"),
	box.TypeOf("enca"),
	box.TypeOf(".mp3"),
	msType(FormatMSADPCM),
	msType(FormatIMAADPCM),
	msType(FormatMP3),
}

// codecNames maps sample entry codes to human-readable names.
var codecNames = map[string]string{
	// AAC Family
	"mp4a": "AAC",
	"enca": "AAC (encrypted)",
	"mhm1": "xHE-AAC",
	"mhm2": "xHE-AAC v2",

	// Dolby Family
	"ac-3": "AC-3",
	"ec-3": "E-AC-3",
	"ac-4": "AC-4",

	// Lossless
	"alac": "Apple Lossless",
	"fLaC": "FLAC",

	// Other
	"Opus": "Opus",
	"mp3 ": "MP3",
	".mp3": "MP3",

	// Windows formats through the Audio Compression Manager
	"ms\x00\x02": "MS ADPCM",
	"ms\x00\x11": "IMA ADPCM",
	"ms\x00\x55": "MP3",
}

// CodecName converts a sample entry code to a human-readable name.
func CodecName(t box.Type) string {
	if name, ok := codecNames[string(t[:])]; ok {
		return name
	}
	return t.String()
}

// newAudioSampleEntry decodes the entry only inside a sound track. The
// same codes mean something else, or nothing, in other handlers.
func newAudioSampleEntry(_ context.Context, p *box.Candidate) (box.Variant, error) {
	if h, ok := p.Handler(); !ok || h != HandlerSound {
		return box.Opaque(), nil
	}
	return box.ContainerWith(func() box.Payload { return &AudioSampleEntry{} }), nil
}

// AudioSampleEntry holds the fixed fields of a sound sample description.
// QuickTime version 1 and 2 entries append the V1 or V2 fields; the
// codec configuration boxes (esds, alac, dOps, ...) follow as children.
type AudioSampleEntry struct {
	Reserved      [6]byte
	DataRefIndex  uint16
	Version       uint16
	Revision      uint16
	Vendor        uint32
	Channels      uint16
	SampleSize    uint16
	CompressionID uint16
	PacketSize    uint16
	SampleRate    uint32 // 16.16

	V1 *SoundV1
	V2 *SoundV2
}

// SoundV1 are the QuickTime version 1 additions.
type SoundV1 struct {
	SamplesPerPacket uint32
	BytesPerPacket   uint32
	BytesPerFrame    uint32
	BytesPerSample   uint32
}

// SoundV2 are the QuickTime version 2 additions.
type SoundV2 struct {
	StructSize      uint32
	SampleRate      uint64 // IEEE 754 double bits
	Channels        uint32
	Always7F        uint32
	BitsPerChannel  uint32
	FormatFlags     uint32
	BytesPerPacket  uint32
	FramesPerPacket uint32
}

func (p *AudioSampleEntry) Decode(r *binary.Reader, _ box.FullHeader) error {
	cr := binary.NewChainReader(r)
	copy(p.Reserved[:], cr.Bytes(len(p.Reserved), "reading reserved"))
	p.DataRefIndex = binary.ReadChained[uint16](cr, "reading data reference index")
	p.Version = binary.ReadChained[uint16](cr, "reading sound version")
	p.Revision = binary.ReadChained[uint16](cr, "reading revision")
	p.Vendor = binary.ReadChained[uint32](cr, "reading vendor")
	p.Channels = binary.ReadChained[uint16](cr, "reading channel count")
	p.SampleSize = binary.ReadChained[uint16](cr, "reading sample size")
	p.CompressionID = binary.ReadChained[uint16](cr, "reading compression ID")
	p.PacketSize = binary.ReadChained[uint16](cr, "reading packet size")
	p.SampleRate = binary.ReadChained[uint32](cr, "reading sample rate")

	switch p.Version {
	case 0:
	case 1:
		p.V1 = &SoundV1{
			SamplesPerPacket: binary.ReadChained[uint32](cr, "reading samples per packet"),
			BytesPerPacket:   binary.ReadChained[uint32](cr, "reading bytes per packet"),
			BytesPerFrame:    binary.ReadChained[uint32](cr, "reading bytes per frame"),
			BytesPerSample:   binary.ReadChained[uint32](cr, "reading bytes per sample"),
		}
	case 2:
		p.V2 = &SoundV2{
			StructSize:      binary.ReadChained[uint32](cr, "reading struct size"),
			SampleRate:      binary.ReadChained[uint64](cr, "reading sample rate"),
			Channels:        binary.ReadChained[uint32](cr, "reading channel count"),
			Always7F:        binary.ReadChained[uint32](cr, "reading reserved"),
			BitsPerChannel:  binary.ReadChained[uint32](cr, "reading bits per channel"),
			FormatFlags:     binary.ReadChained[uint32](cr, "reading format flags"),
			BytesPerPacket:  binary.ReadChained[uint32](cr, "reading bytes per packet"),
			FramesPerPacket: binary.ReadChained[uint32](cr, "reading frames per packet"),
		}
	default:
		if cr.Error() == nil {
			return fmt.Errorf("unsupported sound sample entry version %d", p.Version)
		}
	}
	return cr.Error()
}

func (p *AudioSampleEntry) Encode(b *binary.Builder, _ box.FullHeader) error {
	if (p.Version == 1) != (p.V1 != nil) || (p.Version == 2) != (p.V2 != nil) {
		return fmt.Errorf("sound version %d does not match the extension fields", p.Version)
	}
	b.WriteBytes(p.Reserved[:])
	binary.Write(b, p.DataRefIndex)
	binary.Write(b, p.Version)
	binary.Write(b, p.Revision)
	binary.Write(b, p.Vendor)
	binary.Write(b, p.Channels)
	binary.Write(b, p.SampleSize)
	binary.Write(b, p.CompressionID)
	binary.Write(b, p.PacketSize)
	binary.Write(b, p.SampleRate)

	if v := p.V1; v != nil {
		for _, f := range []uint32{v.SamplesPerPacket, v.BytesPerPacket, v.BytesPerFrame, v.BytesPerSample} {
			binary.Write(b, f)
		}
	}
	if v := p.V2; v != nil {
		binary.Write(b, v.StructSize)
		binary.Write(b, v.SampleRate)
		for _, f := range []uint32{v.Channels, v.Always7F, v.BitsPerChannel, v.FormatFlags, v.BytesPerPacket, v.FramesPerPacket} {
			binary.Write(b, f)
		}
	}
	return nil
}

// Rate returns the sample rate in Hz.
func (p *AudioSampleEntry) Rate() int {
	if p.V2 != nil {
		return int(math.Float64frombits(p.V2.SampleRate))
	}
	return int(p.SampleRate >> 16)
}

// ChannelCount returns the number of channels.
func (p *AudioSampleEntry) ChannelCount() int {
	if p.V2 != nil {
		return int(p.V2.Channels)
	}
	return int(p.Channels)
}

// BitDepth returns the bits per sample.
func (p *AudioSampleEntry) BitDepth() int {
	if p.V2 != nil {
		return int(p.V2.BitsPerChannel)
	}
	return int(p.SampleSize)
}

func (p *AudioSampleEntry) String() string {
	return fmt.Sprintf("channels=%d bits=%d rate=%d", p.ChannelCount(), p.BitDepth(), p.Rate())
}

// ESDS is the elementary stream descriptor box: a 14496-1 descriptor
// tree.
type ESDS struct {
	Descriptors *descriptor.Tree
}

func (p *ESDS) Decode(r *binary.Reader, _ box.FullHeader) error {
	t, err := descriptor.Parse(r.Rest())
	if err != nil {
		return err
	}
	p.Descriptors = t
	return nil
}

func (p *ESDS) Encode(b *binary.Builder, _ box.FullHeader) error {
	if p.Descriptors == nil {
		return nil
	}
	out, err := p.Descriptors.Encode()
	if err != nil {
		return err
	}
	b.WriteBytes(out)
	return nil
}

// DecoderConfig returns the decoder configuration, if any.
func (p *ESDS) DecoderConfig() (*descriptor.DecoderConfig, bool) {
	if p.Descriptors == nil {
		return nil, false
	}
	id, ok := p.Descriptors.Find(descriptor.TagDecoderConfig)
	if !ok {
		return nil, false
	}
	dc, ok := p.Descriptors.Body(id).(*descriptor.DecoderConfig)
	return dc, ok
}

var errNoAudioConfig = errors.New("no decoder specific info")

// AudioConfig parses the AudioSpecificConfig of an MPEG-4 audio stream.
func (p *ESDS) AudioConfig() (descriptor.AudioConfig, error) {
	if p.Descriptors == nil {
		return descriptor.AudioConfig{}, errNoAudioConfig
	}
	id, ok := p.Descriptors.Find(descriptor.TagDecoderSpecificInfo)
	if !ok {
		return descriptor.AudioConfig{}, errNoAudioConfig
	}
	dsi, ok := p.Descriptors.Body(id).(*descriptor.DecoderSpecificInfo)
	if !ok {
		return descriptor.AudioConfig{}, errNoAudioConfig
	}
	return descriptor.ParseAudioConfig(dsi.Data)
}

func (p *ESDS) String() string {
	dc, ok := p.DecoderConfig()
	if !ok {
		if p.Descriptors == nil {
			return "descriptors=0"
		}
		return fmt.Sprintf("descriptors=%d", p.Descriptors.Len())
	}
	s := fmt.Sprintf("object=0x%02x avg=%d max=%d", dc.ObjectType, dc.AvgBitrate, dc.MaxBitrate)
	if ac, err := p.AudioConfig(); err == nil && ac.Profile() != "" {
		s += " profile=" + ac.Profile()
	}
	return s
}
