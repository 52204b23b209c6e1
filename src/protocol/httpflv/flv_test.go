package httpflv

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livepush/src/muxer"
	"livepush/src/video"
)

const (
	waitFor  = 3 * time.Second
	waitTick = 5 * time.Millisecond
)

var _ muxer.Connection = &FileConnection{}
var _ muxer.MetadataWriter = &FileConnection{}

type flvTag struct {
	tagType   byte
	timestamp uint32
	data      []byte
}

func readFLVHeader(t *testing.T, r io.Reader) {
	t.Helper()
	hdr := make([]byte, len(FLV_HEADER))
	_, err := io.ReadFull(r, hdr)
	require.NoError(t, err)
	require.Equal(t, FLV_HEADER, hdr)
}

func readFLVTag(r io.Reader) (flvTag, error) {
	hdr := make([]byte, HEADER_LEN)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return flvTag{}, err
	}
	size := binary.BigEndian.Uint32(hdr[:4]) & 0xffffff
	ts := uint32(hdr[4])<<16 | uint32(hdr[5])<<8 | uint32(hdr[6]) | uint32(hdr[7])<<24
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return flvTag{}, err
	}
	prev := make([]byte, PREV_TAG_SIZE_LEN)
	if _, err := io.ReadFull(r, prev); err != nil {
		return flvTag{}, err
	}
	if binary.BigEndian.Uint32(prev) != size+HEADER_LEN {
		return flvTag{}, io.ErrUnexpectedEOF
	}
	return flvTag{tagType: hdr[0], timestamp: ts, data: data}, nil
}

func TestTagWriterLayout(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	tw := newTagWriter(&buf)
	require.NoError(t, tw.writeTag(video.TAG_TYPE_VIDEO, []byte{1, 2, 3}, 0x01020304))
	assert.Equal(t, []byte{
		0x09, 0x00, 0x00, 0x03,
		0x02, 0x03, 0x04, 0x01,
		0x00, 0x00, 0x00,
		0x01, 0x02, 0x03,
		0x00, 0x00, 0x00, 0x0e,
	}, buf.Bytes())

	tag, err := readFLVTag(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, 0x01020304, tag.timestamp)
}

func TestTagTypeOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, video.TAG_TYPE_VIDEO, tagTypeOf(video.DATA_TYPE_VIDEO))
	assert.Equal(t, video.TAG_TYPE_AUDIO, tagTypeOf(video.DATA_TYPE_AUDIO))
	assert.Equal(t, video.TAG_TYPE_SCRIPT, tagTypeOf(video.DATA_TYPE_META))
}

func TestFilePath(t *testing.T) {
	t.Parallel()
	p, err := FilePath("file:///tmp/rec/live.flv")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/rec/live.flv", p)
	p, err = FilePath("out/live.flv")
	require.NoError(t, err)
	assert.Equal(t, "out/live.flv", p)
}

func TestFileConnectionNotOpen(t *testing.T) {
	t.Parallel()
	fc := NewFileConnection()
	assert.ErrorIs(t, fc.Publish("x"), ErrFileNotOpen)
	assert.ErrorIs(t, fc.SendVideo([]byte{0x17}, 0), ErrFileNotOpen)
	assert.NoError(t, fc.Close())
}

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

func annexB(nalus ...[]byte) []byte {
	var b []byte
	for _, n := range nalus {
		b = append(b, 0, 0, 0, 1)
		b = append(b, n...)
	}
	return b
}

func TestMuxerRecordsFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "rec", "live.flv")
	fc := NewFileConnection()

	connected := make(chan struct{})
	disconnected := make(chan struct{})
	opts := muxer.DefaultOptions()
	opts.StreamName = "live"
	m := muxer.NewMuxer(fc, muxer.ObserverFuncs{
		ConnectSuccess: func() { close(connected) },
		Disconnect:     func() { close(disconnected) },
	}, opts)
	require.NoError(t, m.Start("file://"+path))
	select {
	case <-connected:
	case <-time.After(waitFor):
		t.Fatal("file not opened")
	}
	assert.Equal(t, path, fc.Path())

	key := annexB(testSPS, testPPS, testIDR)
	require.NoError(t, m.SendVideo(key, len(key), 0))
	asc := []byte{0x12, 0x08}
	require.NoError(t, m.SendAudio(asc, len(asc), 0))
	inter := annexB(testP)
	require.NoError(t, m.SendVideo(inter, len(inter), 40000))

	require.Eventually(t, func() bool {
		st := m.Stats()
		return st.SentVideo == 3 && st.SentAudio == 1 && st.SentMeta == 1
	}, waitFor, waitTick)
	require.NoError(t, m.Stop())
	select {
	case <-disconnected:
	case <-time.After(waitFor):
		t.Fatal("file not closed")
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	readFLVHeader(t, f)

	var tags []flvTag
	for {
		tag, err := readFLVTag(f)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		tags = append(tags, tag)
	}
	require.Len(t, tags, 5)

	assert.Equal(t, video.TAG_TYPE_SCRIPT, tags[0].tagType)
	md, err := muxer.DecodeMetadata(tags[0].data)
	require.NoError(t, err)
	assert.Equal(t, 1920, md.Width)
	assert.Equal(t, 1080, md.Height)

	assert.Equal(t, video.TAG_TYPE_VIDEO, tags[1].tagType)
	assert.Equal(t, []byte{0x17, 0x00}, tags[1].data[:2])
	assert.Equal(t, video.TAG_TYPE_VIDEO, tags[2].tagType)
	assert.Equal(t, []byte{0x17, 0x01}, tags[2].data[:2])
	assert.Equal(t, video.TAG_TYPE_AUDIO, tags[3].tagType)
	assert.Equal(t, []byte{0xae, 0x00, 0x12, 0x08}, tags[3].data)
	assert.Equal(t, video.TAG_TYPE_VIDEO, tags[4].tagType)
	assert.Equal(t, []byte{0x27, 0x01}, tags[4].data[:2])
	assert.EqualValues(t, 40, tags[4].timestamp)
}
