package video

type DataType byte

const (
	DATA_TYPE_VIDEO DataType = iota
	DATA_TYPE_AUDIO
	DATA_TYPE_META
)

func (t DataType) String() string {
	switch t {
	case DATA_TYPE_VIDEO:
		return "video"
	case DATA_TYPE_AUDIO:
		return "audio"
	case DATA_TYPE_META:
		return "meta"
	}
	return "unknown"
}

// FLV tag type ids, identical to the RTMP message type ids.
const (
	TAG_TYPE_AUDIO  byte = 8
	TAG_TYPE_VIDEO  byte = 9
	TAG_TYPE_SCRIPT byte = 18
)

const (
	FRAME_TYPE_KEY   uint8 = 1
	FRAME_TYPE_INTER uint8 = 2

	CODEC_ID_AVC uint8 = 7

	AVC_PKT_TYPE_SEQHDR uint8 = 0
	AVC_PKT_TYPE_NALU   uint8 = 1
	AVC_PKT_TYPE_EOS    uint8 = 2
)

const (
	SOUND_FMT_AAC uint8 = 10

	SOUND_RATE_5K  uint8 = 0
	SOUND_RATE_11K uint8 = 1
	SOUND_RATE_22K uint8 = 2
	SOUND_RATE_44K uint8 = 3

	SOUND_SIZE_8BIT  uint8 = 0
	SOUND_SIZE_16BIT uint8 = 1

	SOUND_TYPE_MONO   uint8 = 0
	SOUND_TYPE_STEREO uint8 = 1

	AAC_PKT_TYPE_SEQHDR uint8 = 0
	AAC_PKT_TYPE_RAW    uint8 = 1
)

const (
	VIDEO_TAG_HEADER_LEN = 5
	AUDIO_TAG_HEADER_LEN = 2
)
