package atomtree

import (
	"github.com/simonhull/atomtree/internal/atoms"
	"github.com/simonhull/atomtree/internal/box"
	"github.com/simonhull/atomtree/internal/types"
)

// AudioInfo is an alias to types.AudioInfo.
// Re-exporting from internal/types to maintain public API.
type AudioInfo = types.AudioInfo

// Audio describes the first sound track: codec, profile, channels, sample
// size, sample rate, duration and bitrate. It reports false when the file
// has no sound track with a decoded sample entry.
//
// The bitrate comes from the elementary stream descriptor when it states
// one, and is otherwise estimated from the media data size and duration.
func (d *Document) Audio() (AudioInfo, bool) {
	for _, trak := range d.tree.FindAll(atoms.Trak) {
		if info, ok := d.trackAudio(trak); ok {
			return info, true
		}
	}
	return AudioInfo{}, false
}

func (d *Document) trackAudio(trak box.NodeID) (AudioInfo, bool) {
	stsd, ok := d.tree.Find(trak, atoms.Mdia, atoms.Minf, atoms.Stbl, atoms.Stsd)
	if !ok {
		return AudioInfo{}, false
	}

	for _, entry := range d.tree.Children(stsd) {
		se, ok := d.tree.Payload(entry).(*atoms.AudioSampleEntry)
		if !ok {
			continue
		}
		codec := d.tree.Type(entry)
		info := AudioInfo{
			Codec:            codec.String(),
			CodecDescription: atoms.CodecName(codec),
			SampleRate:       se.Rate(),
			BitDepth:         se.BitDepth(),
			Channels:         se.ChannelCount(),
			Duration:         d.duration(),
		}
		if mdhd, ok := d.tree.Find(trak, atoms.Mdia, atoms.Mdhd); ok {
			if h, ok := d.tree.Payload(mdhd).(*atoms.MediaHeader); ok && h.Length() > 0 {
				info.Duration = h.Length()
			}
		}

		if esds, ok := d.tree.Find(entry, atoms.Esds); ok {
			if p, ok := d.tree.Payload(esds).(*atoms.ESDS); ok {
				if dc, ok := p.DecoderConfig(); ok {
					info.Bitrate = int(dc.AvgBitrate)
				}
				if ac, err := p.AudioConfig(); err == nil {
					info.CodecProfile = ac.Profile()
					if info.SampleRate == 0 {
						info.SampleRate = ac.SampleRate
					}
					if info.Channels == 0 {
						info.Channels = int(ac.ChannelConfig)
					}
				}
			}
		}

		if info.Bitrate == 0 {
			if wf, ok := d.waveFormat(entry); ok {
				info.Bitrate = wf.Bitrate()
			}
		}

		// Estimate bitrate if we have duration and media size
		if info.Bitrate == 0 && info.Duration > 0 {
			if durationSec := info.Duration.Seconds(); durationSec > 0 {
				info.Bitrate = int(float64(d.mediaSize()) * 8 / durationSec)
			}
		}
		return info, true
	}
	return AudioInfo{}, false
}

// waveFormat returns the WAVEFORMATEX a QuickTime entry keeps in its
// wave atom.
func (d *Document) waveFormat(entry box.NodeID) (*atoms.WaveFormat, bool) {
	wave, ok := d.tree.Find(entry, box.TypeOf("wave"))
	if !ok {
		return nil, false
	}
	for _, c := range d.tree.Children(wave) {
		if wf, ok := d.tree.Payload(c).(*atoms.WaveFormat); ok {
			return wf, true
		}
	}
	return nil, false
}

// mediaSize sums the payloads of the top-level mdat boxes, falling back
// to the file length when there are none.
func (d *Document) mediaSize() int64 {
	var n int64
	for _, id := range d.tree.Children(box.RootID) {
		if d.tree.Type(id) == atoms.Mdat {
			n += d.tree.Header(id).DataSize()
		}
	}
	if n == 0 {
		return d.file.Length()
	}
	return n
}
