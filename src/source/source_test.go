package source

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livepush/src/muxer"
)

var _ Sink = (*muxer.Muxer)(nil)

var (
	testSPS = []byte{
		0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
		0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
		0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9,
		0x20,
	}
	testPPS = []byte{0x68, 0xce, 0x3c, 0x80}
	testIDR = []byte{0x65, 0x88, 0x84, 0x21}
	testP   = []byte{0x41, 0x9a, 0x02}
)

type sample struct {
	data  []byte
	ptsUs int64
}

type recorder struct {
	mu    sync.Mutex
	video []sample
	audio []sample
}

func (r *recorder) SendVideo(data []byte, size int, ptsUs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.video = append(r.video, sample{append([]byte(nil), data[:size]...), ptsUs})
	return nil
}

func (r *recorder) SendAudio(data []byte, size int, ptsUs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio = append(r.audio, sample{append([]byte(nil), data[:size]...), ptsUs})
	return nil
}

func annexB(nalus ...[]byte) []byte {
	var b []byte
	for _, n := range nalus {
		b = append(b, 0, 0, 0, 1)
		b = append(b, n...)
	}
	return b
}

// adtsFrame builds an AAC-LC frame without CRC.
func adtsFrame(sampleRateIndex, channels uint8, au []byte) []byte {
	n := 7 + len(au)
	return append([]byte{
		0xff, 0xf1,
		0x40 | sampleRateIndex<<2 | channels>>2,
		(channels&0x03)<<6 | byte(n>>11)&0x03,
		byte(n >> 3),
		byte(n&0x07)<<5 | 0x1f,
		0xfc,
	}, au...)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestSplitAccessUnits(t *testing.T) {
	t.Parallel()
	units, err := SplitAccessUnits(annexB(testSPS, testPPS, testIDR, testP, testP))
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, annexB(testSPS, testPPS, testIDR), units[0])
	assert.Equal(t, annexB(testP), units[1])
	assert.Equal(t, annexB(testP), units[2])
}

func TestSplitAccessUnitsThreeByteStartCodes(t *testing.T) {
	t.Parallel()
	buf := append([]byte{0, 0, 1}, testIDR...)
	buf = append(buf, 0, 0, 1)
	buf = append(buf, testP...)
	units, err := SplitAccessUnits(buf)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, annexB(testIDR), units[0])
}

func TestSplitAccessUnitsMultiSlice(t *testing.T) {
	t.Parallel()
	// second slice of the IDR picture starts at macroblock 1
	idrTail := []byte{0x65, 0x40, 0x84, 0x21}
	aud := []byte{0x09, 0xf0}
	units, err := SplitAccessUnits(annexB(testSPS, testPPS, testIDR, idrTail, testP, aud, testP))
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, annexB(testSPS, testPPS, testIDR, idrTail), units[0])
	assert.Equal(t, annexB(testP), units[1])
	assert.Equal(t, annexB(aud, testP), units[2])
}

func TestSplitAccessUnitsTrailingParams(t *testing.T) {
	t.Parallel()
	units, err := SplitAccessUnits(annexB(testIDR, testSPS, testPPS))
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, annexB(testIDR), units[0])
}

func TestOpenNoMedia(t *testing.T) {
	t.Parallel()
	_, err := Open(Options{})
	assert.ErrorIs(t, err, ErrNoMedia)

	_, err = Open(Options{VideoPath: filepath.Join(t.TempDir(), "missing.h264")})
	assert.Error(t, err)
}

func TestRunFeedsSink(t *testing.T) {
	t.Parallel()
	vpath := writeFile(t, "in.h264", annexB(testSPS, testPPS, testIDR, testP, testP))
	var aacBuf []byte
	for i := 0; i < 3; i++ {
		aacBuf = append(aacBuf, adtsFrame(4, 1, []byte{0x21, 0x10, byte(i)})...)
	}
	apath := writeFile(t, "in.aac", aacBuf)

	src, err := Open(Options{VideoPath: vpath, AudioPath: apath, FPS: 25})
	require.NoError(t, err)
	assert.Equal(t, 3, src.AccessUnits())
	assert.Equal(t, 3, src.AudioFrames())
	conf := src.AudioConfig()
	assert.EqualValues(t, 2, conf.ObjectType)
	assert.EqualValues(t, 4, conf.SampleRateIndex)
	assert.EqualValues(t, 1, conf.Channels)

	rec := &recorder{}
	require.NoError(t, src.Run(context.Background(), rec))

	require.Len(t, rec.video, 3)
	assert.Equal(t, int64(0), rec.video[0].ptsUs)
	assert.Equal(t, int64(40000), rec.video[1].ptsUs)
	assert.Equal(t, int64(80000), rec.video[2].ptsUs)

	require.Len(t, rec.audio, 4)
	assert.Equal(t, []byte{0x12, 0x08}, rec.audio[0].data, "AudioSpecificConfig first")
	assert.Equal(t, []byte{0x21, 0x10, 0x00}, rec.audio[1].data)
	assert.Equal(t, int64(0), rec.audio[1].ptsUs)
	assert.Equal(t, int64(1024*1000000/44100), rec.audio[2].ptsUs)
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()
	vpath := writeFile(t, "in.h264", annexB(testSPS, testPPS, testIDR, testP))
	src, err := Open(Options{VideoPath: vpath, Realtime: true, FPS: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, src.Run(ctx, &recorder{}), context.Canceled)
}
