package atoms

import (
	"errors"
	"fmt"

	"github.com/simonhull/atomtree/internal/binary"
	"github.com/simonhull/atomtree/internal/box"
)

// Codec IDs of the Windows audio formats QuickTime carries through the
// Audio Compression Manager. The sample entry type is "ms" followed by
// the big-endian format tag.
const (
	FormatMSADPCM  uint16 = 0x0002
	FormatIMAADPCM uint16 = 0x0011
	FormatMP3      uint16 = 0x0055
)

// WaveFormatTypes are the "ms.." codes whose wave children hold a
// WAVEFORMATEX structure.
var WaveFormatTypes = []box.Type{
	msType(FormatMSADPCM),
	msType(FormatIMAADPCM),
	msType(FormatMP3),
}

func msType(tag uint16) box.Type {
	return box.Type{'m', 's', byte(tag >> 8), byte(tag)}
}

// WaveFormat is a Windows WAVEFORMATEX structure stored inside a
// QuickTime wave atom. Unlike every other payload here it is
// little-endian.
type WaveFormat struct {
	FormatTag      uint16
	Channels       uint16
	SamplesPerSec  uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16

	// Sized is false for the 16-byte WAVEFORMAT form without cbSize.
	Sized bool
	// Extension holds the cbSize bytes that follow the base fields.
	Extension binary.Buffer
	// Padding is whatever the atom holds past the extension.
	Padding binary.Buffer
}

func (p *WaveFormat) Decode(r *binary.Reader, _ box.FullHeader) error {
	var err error
	read16 := func(dst *uint16, what string) {
		if err == nil {
			*dst, err = binary.ReadValueLE[uint16](r, what)
		}
	}
	read32 := func(dst *uint32, what string) {
		if err == nil {
			*dst, err = binary.ReadValueLE[uint32](r, what)
		}
	}
	read16(&p.FormatTag, "reading format tag")
	read16(&p.Channels, "reading channel count")
	read32(&p.SamplesPerSec, "reading sample rate")
	read32(&p.AvgBytesPerSec, "reading byte rate")
	read16(&p.BlockAlign, "reading block align")
	read16(&p.BitsPerSample, "reading bits per sample")
	if err != nil || r.Remaining() == 0 {
		return err
	}

	p.Sized = true
	var cb uint16
	read16(&cb, "reading extension size")
	if err != nil {
		return err
	}
	rest := binary.NewBuffer(r.Rest())
	if p.Extension, err = rest.Slice(0, int(cb)); err != nil {
		return fmt.Errorf("extension size %d: %w", cb, err)
	}
	p.Padding, err = rest.Slice(int(cb), rest.Len())
	return err
}

func (p *WaveFormat) Encode(b *binary.Builder, _ box.FullHeader) error {
	binary.WriteLE(b, p.FormatTag)
	binary.WriteLE(b, p.Channels)
	binary.WriteLE(b, p.SamplesPerSec)
	binary.WriteLE(b, p.AvgBytesPerSec)
	binary.WriteLE(b, p.BlockAlign)
	binary.WriteLE(b, p.BitsPerSample)
	if !p.Sized {
		if p.Extension.Len() > 0 || p.Padding.Len() > 0 {
			return errors.New("extension bytes without an extension size")
		}
		return nil
	}
	if p.Extension.Len() > 0xFFFF {
		return fmt.Errorf("extension of %d bytes does not fit its size field", p.Extension.Len())
	}
	binary.WriteLE(b, uint16(p.Extension.Len()))
	b.WriteBytes(p.Extension.Bytes())
	b.WriteBytes(p.Padding.Bytes())
	return nil
}

// Bitrate returns the average bitrate in bits per second.
func (p *WaveFormat) Bitrate() int {
	return int(p.AvgBytesPerSec) * 8
}

// MP3Format is the MPEGLAYER3WAVEFORMAT extension of an MP3 WaveFormat.
type MP3Format struct {
	ID             uint16
	Flags          uint32
	BlockSize      uint16
	FramesPerBlock uint16
	CodecDelay     uint16
}

var errNotMP3 = errors.New("not an MPEG layer 3 wave format")

// MP3 decodes the MPEG layer 3 extension.
func (p *WaveFormat) MP3() (MP3Format, error) {
	if p.FormatTag != FormatMP3 {
		return MP3Format{}, errNotMP3
	}
	var m MP3Format
	var err error
	r := p.Extension.Reader("mpeglayer3waveformat")
	if m.ID, err = binary.ReadValueLE[uint16](r, "reading ID"); err != nil {
		return m, err
	}
	if m.Flags, err = binary.ReadValueLE[uint32](r, "reading flags"); err != nil {
		return m, err
	}
	if m.BlockSize, err = binary.ReadValueLE[uint16](r, "reading block size"); err != nil {
		return m, err
	}
	if m.FramesPerBlock, err = binary.ReadValueLE[uint16](r, "reading frames per block"); err != nil {
		return m, err
	}
	m.CodecDelay, err = binary.ReadValueLE[uint16](r, "reading codec delay")
	return m, err
}

func (p *WaveFormat) String() string {
	return fmt.Sprintf("tag=0x%04x channels=%d rate=%d bitrate=%d", p.FormatTag, p.Channels, p.SamplesPerSec, p.Bitrate())
}
