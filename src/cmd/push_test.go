package cmd

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livepush/src/config"
	"livepush/src/protocol/httpflv"
	"livepush/src/protocol/rtmp"
	"livepush/src/video"
)

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

// tagTypes walks an FLV file and returns the type of every tag.
func tagTypes(t *testing.T, buf []byte) []byte {
	t.Helper()
	require.True(t, bytes.HasPrefix(buf, httpflv.FLV_HEADER))
	buf = buf[len(httpflv.FLV_HEADER):]
	var types []byte
	for len(buf) > 0 {
		require.GreaterOrEqual(t, len(buf), httpflv.HEADER_LEN)
		size := int(binary.BigEndian.Uint32(buf[:4]) & 0xffffff)
		types = append(types, buf[0])
		buf = buf[httpflv.HEADER_LEN+size+httpflv.PREV_TAG_SIZE_LEN:]
	}
	return types
}

func TestNewConnection(t *testing.T) {
	conf = config.FromViper(config.New())

	conn, stream := newConnection("rtmp://127.0.0.1/live/cam")
	assert.IsType(t, &rtmp.Client{}, conn)
	assert.Empty(t, stream)

	conn, stream = newConnection("file:///tmp/rec/cam.flv")
	assert.IsType(t, &httpflv.FileConnection{}, conn)
	assert.Equal(t, "cam", stream)

	_, stream = newConnection("cam.flv")
	assert.Equal(t, "cam", stream)
}

func TestPushToFile(t *testing.T) {
	conf = config.FromViper(config.New())
	dir := t.TempDir()
	vpath := filepath.Join(dir, "in.h264")
	require.NoError(t, os.WriteFile(vpath, annexB(testSPS, testPPS, testIDR, testP, testP), 0o644))
	out := filepath.Join(dir, "out.flv")

	err := runPush(context.Background(), out, &pushOptions{video: vpath, fps: 25})
	require.NoError(t, err)

	buf, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		video.TAG_TYPE_SCRIPT,
		video.TAG_TYPE_VIDEO,
		video.TAG_TYPE_VIDEO,
		video.TAG_TYPE_VIDEO,
		video.TAG_TYPE_VIDEO,
	}, tagTypes(t, buf))
}

func TestPushNoMedia(t *testing.T) {
	conf = config.FromViper(config.New())
	err := runPush(context.Background(), filepath.Join(t.TempDir(), "out.flv"), &pushOptions{})
	assert.Error(t, err)
}
