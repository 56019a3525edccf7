package descriptor

import (
	"fmt"

	"github.com/yapingcat/gomedia/go-codec"
)

// aacProfiles maps AAC Audio Object Types to profile names.
var aacProfiles = map[uint8]string{
	1:  "AAC Main",
	2:  "AAC-LC",
	3:  "AAC-SSR",
	4:  "AAC-LTP",
	5:  "HE-AAC",
	6:  "AAC Scalable",
	29: "HE-AAC v2",
	42: "xHE-AAC",
}

var samplingFrequencies = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// AudioConfig is the leading part of an AudioSpecificConfig.
type AudioConfig struct {
	ObjectType    uint8
	SampleRate    int
	ChannelConfig uint8
}

// Profile returns the AAC profile name, or "" for unknown object types.
func (c AudioConfig) Profile() string {
	return aacProfiles[c.ObjectType]
}

// ParseAudioConfig reads the object type, sampling frequency and channel
// configuration from an AudioSpecificConfig.
func ParseAudioConfig(b []byte) (AudioConfig, error) {
	var c AudioConfig

	// Escape forms extend the minimum 16 bits; validate before each read
	// so the bit reader never runs off the end.
	bits := 5 + 4 + 4
	if len(b)*8 < bits {
		return c, fmt.Errorf("audio specific config: %d bytes is too short", len(b))
	}
	bs := codec.NewBitStream(b)
	c.ObjectType = bs.Uint8(5)
	if c.ObjectType == 31 {
		bits += 6
		if len(b)*8 < bits {
			return c, fmt.Errorf("audio specific config: truncated object type escape")
		}
		c.ObjectType = 32 + bs.Uint8(6)
	}

	idx := bs.Uint8(4)
	if idx == 15 {
		bits += 24
		if len(b)*8 < bits {
			return c, fmt.Errorf("audio specific config: truncated explicit frequency")
		}
		c.SampleRate = int(bs.Uint32(24))
	} else if int(idx) < len(samplingFrequencies) {
		c.SampleRate = samplingFrequencies[idx]
	} else {
		return c, fmt.Errorf("audio specific config: reserved frequency index %d", idx)
	}

	c.ChannelConfig = bs.Uint8(4)
	return c, nil
}
