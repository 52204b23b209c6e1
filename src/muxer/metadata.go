package muxer

import (
	"livepush/src/codec/aac"
	"livepush/src/utils"
	"livepush/src/video"
)

const (
	METADATA_NAME = "onMetaData"
	ENCODER_NAME  = "livepush"
)

// Metadata is the stream description sent as onMetaData.
type Metadata struct {
	Width           int
	Height          int
	FrameRate       float64
	AudioSampleRate int
	AudioChannels   int
}

// EncodeMetadata builds the AMF0 script body "onMetaData" + object. Zero
// video fields are left out.
func EncodeMetadata(md Metadata) ([]byte, error) {
	obj := utils.AMFObj{
		"videocodecid":    float64(video.CODEC_ID_AVC),
		"audiocodecid":    float64(video.SOUND_FMT_AAC),
		"audiosamplerate": float64(md.AudioSampleRate),
		"audiosamplesize": float64(16),
		"audiochannels":   float64(md.AudioChannels),
		"stereo":          md.AudioChannels > 1,
		"encoder":         ENCODER_NAME,
	}
	if md.Width > 0 && md.Height > 0 {
		obj["width"] = float64(md.Width)
		obj["height"] = float64(md.Height)
	}
	if md.FrameRate > 0 {
		obj["framerate"] = md.FrameRate
	}
	return utils.GetAMFHandler().EncodeBatch(utils.AMF0, METADATA_NAME, obj)
}

// DecodeMetadata is the inverse of EncodeMetadata, used by receivers.
func DecodeMetadata(body []byte) (Metadata, error) {
	vals, err := utils.GetAMFHandler().DecodeBatch(body, utils.AMF0)
	if err != nil {
		return Metadata{}, err
	}
	var md Metadata
	for _, v := range vals {
		obj, ok := utils.ToAMFObj(v)
		if !ok {
			continue
		}
		md.Width = int(number(obj["width"]))
		md.Height = int(number(obj["height"]))
		md.FrameRate = number(obj["framerate"])
		md.AudioSampleRate = int(number(obj["audiosamplerate"]))
		md.AudioChannels = int(number(obj["audiochannels"]))
	}
	return md, nil
}

func number(v interface{}) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return 0
}

func audioMetadata(conf aac.Config) Metadata {
	return Metadata{
		AudioSampleRate: aac.SampleRate(conf.SampleRateIndex),
		AudioChannels:   int(conf.Channels),
	}
}
