package avc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()
	pairs := []struct {
		sps []byte
		pps []byte
	}{
		{testSPS, testPPS},
		{[]byte{0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9}, []byte{0x68, 0xeb, 0xe3, 0xcb, 0x22, 0xc0}},
		{[]byte{0x27, 0x4d, 0x40, 0x33}, []byte{0x28}},
	}
	for _, pair := range pairs {
		rec, err := NewRecord(pair.sps, pair.pps)
		require.NoError(t, err)
		bs := rec.Marshal()
		assert.Len(t, bs, rec.Len())

		var got DecoderConfigurationRecord
		require.NoError(t, got.Unmarshal(bs))
		assert.Equal(t, pair.sps[1], got.Profile)
		assert.Equal(t, pair.sps[3], got.Level)
		assert.Equal(t, byte(0), got.Compatibility)
		assert.Equal(t, pair.sps, got.SPS)
		assert.Equal(t, pair.pps, got.PPS)
	}
}

func TestNewRecordRejectsShortInput(t *testing.T) {
	t.Parallel()
	_, err := NewRecord([]byte{0x67, 0x42}, testPPS)
	assert.Error(t, err)
	_, err = NewRecord(testSPS, nil)
	assert.Error(t, err)
}

func TestRecordUnmarshalErrors(t *testing.T) {
	t.Parallel()
	var rec DecoderConfigurationRecord
	assert.Error(t, rec.Unmarshal([]byte{0x01, 0x42}))
	assert.Error(t, rec.Unmarshal([]byte{0x02, 0x42, 0x00, 0x1f, 0x03, 0x01}))
	assert.Error(t, rec.Unmarshal([]byte{0x01, 0x42, 0x00, 0x1f, 0x03, 0x01, 0x00, 0x09, 0x67}))
	assert.Error(t, rec.Unmarshal([]byte{0x01, 0x42, 0x00, 0x1f, 0x03, 0x01, 0x00, 0x01, 0x67}))
}
