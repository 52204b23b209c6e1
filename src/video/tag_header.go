package video

import "fmt"

var (
	_ VideoPacketHeader = &TagHeader{}
	_ AudioPacketHeader = &TagHeader{}
)

// TagHeader is the codec header found at the start of a video or audio tag
// body.
type TagHeader struct {
	soundFmt        uint8
	soundRate       uint8
	soundSize       uint8
	soundType       uint8
	aacPktType      uint8
	avcPktType      uint8
	frameType       uint8
	codecID         uint8
	compositionTime int32
}

func (t *TagHeader) ParsePacketHeader(data []byte, dtype DataType) error {
	switch dtype {
	case DATA_TYPE_VIDEO:
		return t.parseVideoTag(data)
	case DATA_TYPE_AUDIO:
		return t.parseAudioTag(data)
	}
	return fmt.Errorf("no codec header for %s packet", dtype)
}

func (t *TagHeader) parseVideoTag(data []byte) error {
	if len(data) < VIDEO_TAG_HEADER_LEN {
		return fmt.Errorf("invalid video packet len[%d]", len(data))
	}
	flags := data[0]
	t.frameType = flags >> 4
	t.codecID = flags & 0xf

	switch t.frameType {
	case FRAME_TYPE_INTER, FRAME_TYPE_KEY:
		t.avcPktType = data[1]
		cts := uint32(data[2])<<16 | uint32(data[3])<<8 | uint32(data[4])
		// sign extend the 24 bit value
		t.compositionTime = int32(cts<<8) >> 8
	}
	return nil
}

func (t *TagHeader) parseAudioTag(data []byte) error {
	if len(data) < 1 {
		return fmt.Errorf("invalid audio packet len")
	}
	flags := data[0]
	t.soundFmt = flags >> 4
	t.soundRate = (flags >> 2) & 3
	t.soundSize = (flags >> 1) & 1
	t.soundType = flags & 1
	switch t.soundFmt {
	case SOUND_FMT_AAC:
		if len(data) < AUDIO_TAG_HEADER_LEN {
			return fmt.Errorf("invalid aac packet len[%d]", len(data))
		}
		t.aacPktType = data[1]
	}
	return nil
}

func (t *TagHeader) IsKeyFrame() bool {
	return t.frameType == FRAME_TYPE_KEY
}

func (t *TagHeader) IsSeq() bool {
	return t.IsKeyFrame() && t.avcPktType == AVC_PKT_TYPE_SEQHDR
}

func (t *TagHeader) CodecID() uint8 {
	return t.codecID
}

func (t *TagHeader) CompositionTime() int32 {
	return t.compositionTime
}

func (t *TagHeader) SoundFmt() uint8 {
	return t.soundFmt
}

func (t *TagHeader) SoundRate() uint8 {
	return t.soundRate
}

func (t *TagHeader) SoundType() uint8 {
	return t.soundType
}

func (t *TagHeader) AACPacketType() uint8 {
	return t.aacPktType
}

// IsAACSeq reports whether the audio tag carries an AudioSpecificConfig.
func (t *TagHeader) IsAACSeq() bool {
	return t.soundFmt == SOUND_FMT_AAC && t.aacPktType == AAC_PKT_TYPE_SEQHDR
}
