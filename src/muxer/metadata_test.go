package muxer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livepush/src/codec/aac"
	"livepush/src/utils"
)

func TestMetadataRoundTrip(t *testing.T) {
	body, err := EncodeMetadata(Metadata{
		Width:           640,
		Height:          360,
		FrameRate:       25,
		AudioSampleRate: 48000,
		AudioChannels:   2,
	})
	require.NoError(t, err)

	vals, err := utils.GetAMFHandler().DecodeBatch(body, utils.AMF0)
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.Equal(t, METADATA_NAME, vals[0])
	obj, ok := utils.ToAMFObj(vals[1])
	require.True(t, ok)
	assert.Equal(t, ENCODER_NAME, obj.GetString("encoder"))
	assert.Equal(t, true, obj["stereo"])
	assert.EqualValues(t, 7, obj["videocodecid"])

	md, err := DecodeMetadata(body)
	require.NoError(t, err)
	assert.Equal(t, 640, md.Width)
	assert.Equal(t, 360, md.Height)
	assert.EqualValues(t, 25, md.FrameRate)
	assert.Equal(t, 48000, md.AudioSampleRate)
	assert.Equal(t, 2, md.AudioChannels)
}

func TestMetadataOmitsUnknownVideo(t *testing.T) {
	body, err := EncodeMetadata(audioMetadata(aac.DefaultConfig()))
	require.NoError(t, err)

	vals, err := utils.GetAMFHandler().DecodeBatch(body, utils.AMF0)
	require.NoError(t, err)
	obj, ok := utils.ToAMFObj(vals[1])
	require.True(t, ok)
	_, hasWidth := obj["width"]
	assert.False(t, hasWidth)
	_, hasRate := obj["framerate"]
	assert.False(t, hasRate)
	assert.EqualValues(t, 44100, obj["audiosamplerate"])
}
