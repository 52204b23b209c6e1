package httpflv

import (
	"encoding/binary"
	"fmt"
	"io"

	"livepush/src/video"
)

const (
	HEADER_LEN        = 11
	PREV_TAG_SIZE_LEN = 4
	MAX_DATA_LEN      = 0xffffff
)

// FLV_HEADER announces audio and video, followed by PreviousTagSize0.
var FLV_HEADER = []byte{0x46, 0x4c, 0x56, 0x01, 0x05, 0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x00}

func tagTypeOf(dt video.DataType) byte {
	switch dt {
	case video.DATA_TYPE_AUDIO:
		return video.TAG_TYPE_AUDIO
	case video.DATA_TYPE_META:
		return video.TAG_TYPE_SCRIPT
	}
	return video.TAG_TYPE_VIDEO
}

// tagWriter lays out FLV tags: 11 byte header, body, previous tag size.
type tagWriter struct {
	w   io.Writer
	buf [HEADER_LEN]byte
}

func newTagWriter(w io.Writer) *tagWriter {
	return &tagWriter{w: w}
}

func (tw *tagWriter) writeHeader() error {
	_, err := tw.w.Write(FLV_HEADER)
	return err
}

func (tw *tagWriter) writeTag(tagType byte, data []byte, timestamp uint32) error {
	dataLen := len(data)
	if dataLen > MAX_DATA_LEN {
		return fmt.Errorf("flv tag too long[%d]", dataLen)
	}
	hbts := tw.buf[:]
	timestampBase := timestamp & 0xffffff
	timestampExt := timestamp >> 24 & 0xff

	binary.BigEndian.PutUint32(hbts[:4], uint32(tagType)<<24|uint32(dataLen))
	binary.BigEndian.PutUint32(hbts[4:8], timestampBase<<8|timestampExt)
	// stream id, always 0
	hbts[8], hbts[9], hbts[10] = 0, 0, 0

	if _, err := tw.w.Write(hbts); err != nil {
		return err
	}
	if _, err := tw.w.Write(data); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(hbts[:4], uint32(dataLen+HEADER_LEN))
	_, err := tw.w.Write(hbts[:PREV_TAG_SIZE_LEN])
	return err
}
