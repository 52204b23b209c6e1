package avc

import (
	"bytes"
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(b []byte) ([]Nalu, error) {
	r := NewAnnexBReader(b, len(b))
	var out []Nalu
	for {
		n, ok := r.Next()
		if !ok {
			return out, r.Err()
		}
		out = append(out, n)
	}
}

func TestAnnexBReconstructs(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		data []byte
		n    int
	}{
		{"single 4 byte", []byte{0, 0, 0, 1, 0x65, 0x88, 0x84}, 1},
		{"single 3 byte", []byte{0, 0, 1, 0x41, 0x9a}, 1},
		{"mixed", []byte{0, 0, 0, 1, 0x67, 0x42, 0, 0, 1, 0x68, 0xce, 0, 0, 0, 1, 0x65, 0xb8}, 3},
		{"zero inside nalu", []byte{0, 0, 1, 0x65, 0x00, 0x00, 0x02, 0x10}, 1},
		{"trailing zero", []byte{0, 0, 1, 0x09, 0xf0, 0, 0, 0, 1, 0x65, 0x00}, 2},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			nalus, err := readAll(c.data)
			require.NoError(t, err)
			require.Len(t, nalus, c.n)

			var rebuilt bytes.Buffer
			pos := 0
			for _, n := range nalus {
				assert.GreaterOrEqual(t, n.StartCodeLen, 3)
				assert.Equal(t, pos+n.StartCodeLen, n.Offset)
				rebuilt.Write(c.data[pos:n.Offset])
				rebuilt.Write(n.Data)
				pos = n.Offset + len(n.Data)
			}
			assert.Equal(t, c.data, rebuilt.Bytes())
		})
	}
}

func TestAnnexBTypes(t *testing.T) {
	t.Parallel()
	nalus, err := readAll([]byte{0, 0, 0, 1, 0x09, 0xf0, 0, 0, 0, 1, 0x67, 0x42, 0, 0, 0, 1, 0x68, 0, 0, 0, 1, 0x65, 0x01})
	require.NoError(t, err)
	require.Len(t, nalus, 4)
	assert.Equal(t, h264.NALUTypeAccessUnitDelimiter, nalus[0].Type())
	assert.Equal(t, h264.NALUTypeSPS, nalus[1].Type())
	assert.Equal(t, h264.NALUTypePPS, nalus[2].Type())
	assert.Equal(t, h264.NALUTypeIDR, nalus[3].Type())
}

func TestAnnexBDeclaredSize(t *testing.T) {
	t.Parallel()
	data := []byte{0, 0, 1, 0x41, 0x01, 0x02, 0xff, 0xff}
	r := NewAnnexBReader(data, 6)
	n, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, []byte{0x41, 0x01, 0x02}, n.Data)
	_, ok = r.Next()
	assert.False(t, ok)
	assert.NoError(t, r.Err())
}

func TestAnnexBSkipsEmptyNalu(t *testing.T) {
	t.Parallel()
	nalus, err := readAll([]byte{0, 0, 1, 0, 0, 1, 0x41, 0x01})
	require.NoError(t, err)
	require.Len(t, nalus, 1)
	assert.Equal(t, []byte{0x41, 0x01}, nalus[0].Data)
}

func TestAnnexBMalformed(t *testing.T) {
	t.Parallel()
	for _, data := range [][]byte{
		{0x65, 0x88, 0x84},
		{0, 1, 0x65},
		{0, 0},
	} {
		r := NewAnnexBReader(data, len(data))
		_, ok := r.Next()
		assert.False(t, ok)
		assert.ErrorIs(t, r.Err(), ErrAnnexBNotMatch)
		_, ok = r.Next()
		assert.False(t, ok, "reader must not restart")
	}
}

func TestAnnexBEmpty(t *testing.T) {
	t.Parallel()
	nalus, err := readAll(nil)
	assert.NoError(t, err)
	assert.Empty(t, nalus)
}
