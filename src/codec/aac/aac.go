package aac

import (
	"errors"

	"github.com/sirupsen/logrus"

	"livepush/src/utils"
	"livepush/src/video"
)

const (
	OBJECT_TYPE_AAC_MAIN = 1
	OBJECT_TYPE_AAC_LC   = 2
	OBJECT_TYPE_AAC_SSR  = 3

	// 44100 Hz
	DEFAULT_SAMPLE_RATE_INDEX = 4
	DEFAULT_CHANNELS          = 1

	CONFIG_LEN = 2

	maxObjectType      = 30
	maxSampleRateIndex = 12
)

var (
	ErrEmptySample = errors.New("empty aac sample")
	ErrOversized   = errors.New("aac frame exceeds audio allocation size")
)

// Config holds the fixed stream parameters written into the
// AudioSpecificConfig.
type Config struct {
	// ObjectType is used when the first sample does not carry a usable one.
	ObjectType      uint8
	SampleRateIndex uint8
	Channels        uint8
}

func DefaultConfig() Config {
	return Config{
		ObjectType:      OBJECT_TYPE_AAC_LC,
		SampleRateIndex: DEFAULT_SAMPLE_RATE_INDEX,
		Channels:        DEFAULT_CHANNELS,
	}
}

// ConfigState records whether the AudioSpecificConfig went out this session
// and what it held.
type ConfigState struct {
	Sent            bool
	ObjectType      uint8
	SampleRateIndex uint8
	Channels        uint8
}

func (s *ConfigState) Reset() {
	*s = ConfigState{}
}

// Packetizer wraps AAC encoder output into FLV audio tags. It is not safe for
// concurrent use.
type Packetizer struct {
	alloc  *utils.Allocator
	conf   Config
	header byte
	state  ConfigState
}

func NewPacketizer(alloc *utils.Allocator, conf Config) *Packetizer {
	if conf.ObjectType == 0 || conf.ObjectType > maxObjectType {
		conf.ObjectType = OBJECT_TYPE_AAC_LC
	}
	if conf.SampleRateIndex > maxSampleRateIndex {
		conf.SampleRateIndex = DEFAULT_SAMPLE_RATE_INDEX
	}
	if conf.Channels == 0 || conf.Channels > 7 {
		conf.Channels = DEFAULT_CHANNELS
	}
	soundType := video.SOUND_TYPE_MONO
	if conf.Channels > 1 {
		soundType = video.SOUND_TYPE_STEREO
	}
	return &Packetizer{
		alloc: alloc,
		conf:  conf,
		// FLV readers ignore rate and size for AAC, 44k 16bit is mandated.
		header: video.AudioHeaderByte(video.SOUND_RATE_44K, video.SOUND_SIZE_16BIT, soundType),
	}
}

// Config returns the normalized stream parameters.
func (p *Packetizer) Config() Config {
	return p.conf
}

func (p *Packetizer) State() *ConfigState {
	return &p.state
}

func (p *Packetizer) Reset() {
	p.state.Reset()
}

// Packetize turns one encoder output into a tag. The first sample of a
// session is consumed to produce the AudioSpecificConfig; every later one is
// carried as raw AAC.
func (p *Packetizer) Packetize(data []byte, size int, ptsUs int64) (*video.Tag, error) {
	if size < 0 || size > len(data) {
		size = len(data)
	}
	if size == 0 {
		return nil, ErrEmptySample
	}
	dts := ptsUs / 1000

	if !p.state.Sent {
		objType := data[0] >> 3
		if objType == 0 || objType > maxObjectType {
			objType = p.conf.ObjectType
		}
		tag, err := video.NewAudioTag(p.alloc, p.header, video.AAC_PKT_TYPE_SEQHDR, dts)
		if err != nil {
			return nil, err
		}
		var asc [CONFIG_LEN]byte
		MarshalConfig(asc[:], objType, p.conf.SampleRateIndex, p.conf.Channels)
		tag.Payload.Write(asc[:])

		p.state = ConfigState{
			Sent:            true,
			ObjectType:      objType,
			SampleRateIndex: p.conf.SampleRateIndex,
			Channels:        p.conf.Channels,
		}
		logrus.Infof("aac specific config sent, object type=%d, rate index=%d, channels=%d",
			objType, p.conf.SampleRateIndex, p.conf.Channels)
		return tag, nil
	}

	if video.AUDIO_TAG_HEADER_LEN+size > p.alloc.IndividualAllocationSize() {
		logrus.Warningf("drop oversized aac frame %dB", size)
		return nil, ErrOversized
	}
	tag, err := video.NewAudioTag(p.alloc, p.header, video.AAC_PKT_TYPE_RAW, dts)
	if err != nil {
		return nil, err
	}
	tag.Payload.Write(data[:size])
	return tag, nil
}

// MarshalConfig writes a 2 byte AudioSpecificConfig with a zeroed
// GASpecificConfig.
func MarshalConfig(b []byte, objType, sampleRateIndex, channels uint8) {
	b[0] = (objType&0x1f)<<3 | (sampleRateIndex&0x0f)>>1
	b[1] = (sampleRateIndex&0x01)<<7 | (channels&0x0f)<<3
}

var sampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// SampleRate returns the frequency of a sampling frequency index, or 0.
func SampleRate(index uint8) int {
	if int(index) >= len(sampleRates) {
		return 0
	}
	return sampleRates[index]
}

// SampleRateIndex is the inverse of SampleRate.
func SampleRateIndex(rate int) (uint8, bool) {
	for i, r := range sampleRates {
		if r == rate {
			return uint8(i), true
		}
	}
	return 0, false
}
