package types

import (
	"fmt"
	"strings"
	"time"
)

// AudioInfo represents technical audio properties read from an audio
// track's sample description, elementary stream descriptor and movie
// header.
type AudioInfo struct {
	Codec            string // sample entry four-character code, e.g. "mp4a"
	CodecDescription string // human-readable codec name, e.g. "AAC"
	CodecProfile     string // e.g. "AAC-LC", from the decoder specific info
	Duration         time.Duration
	SampleRate       int
	BitDepth         int
	Channels         int
	Bitrate          int
}

// String returns a human-readable representation of the audio info.
// Example output: "AAC 44.1kHz 16-bit stereo 128kbps".
func (a AudioInfo) String() string {
	sampleRate := ""
	if a.SampleRate > 0 {
		sampleRate = fmt.Sprintf("%.1fkHz", float64(a.SampleRate)/1000)
	}

	bitDepth := ""
	if a.BitDepth > 0 {
		bitDepth = fmt.Sprintf("%d-bit", a.BitDepth)
	}

	quality := ""
	if a.Bitrate > 0 {
		quality = fmt.Sprintf("%dkbps", a.Bitrate/1000)
	}

	return join([]string{a.ShortCodecName(), sampleRate, bitDepth, channelDescription(a.Channels), quality}, " ")
}

// channelDescription returns a human-readable channel description.
func channelDescription(channels int) string {
	switch channels {
	case 0:
		return ""
	case 1:
		return "mono"
	case 2:
		return "stereo"
	case 4:
		return "quad"
	case 6:
		return "5.1"
	case 8:
		return "7.1"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}

// join concatenates strings with a separator, skipping empty strings.
func join(parts []string, sep string) string {
	kept := parts[:0:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, sep)
}

// ShortCodecName returns a short, human-readable codec name.
func (a AudioInfo) ShortCodecName() string {
	if a.CodecDescription != "" {
		return a.CodecDescription
	}
	return a.Codec
}

// FullCodecName returns the full codec name with profile.
func (a AudioInfo) FullCodecName() string {
	codec := a.ShortCodecName()
	if a.CodecProfile != "" && a.CodecProfile != codec {
		return fmt.Sprintf("%s (%s)", codec, a.CodecProfile)
	}
	return codec
}
