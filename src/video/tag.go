package video

import (
	"livepush/src/utils"
)

// Tag is one framed, timestamped unit of muxed media. The tag exclusively
// owns Payload until Release.
type Tag struct {
	Kind       DataType
	FrameType  uint8
	PacketType uint8
	// Timestamp is the decode timestamp in milliseconds.
	Timestamp int64
	Payload   *utils.Allocation
}

func (t *Tag) IsVideo() bool {
	return t.Kind == DATA_TYPE_VIDEO
}

func (t *Tag) IsAudio() bool {
	return t.Kind == DATA_TYPE_AUDIO
}

func (t *Tag) IsMeta() bool {
	return t.Kind == DATA_TYPE_META
}

func (t *Tag) IsKeyFrame() bool {
	return t.IsVideo() && t.FrameType == FRAME_TYPE_KEY
}

// IsSequenceHeader reports whether the tag carries decoder configuration,
// an AVC configuration record or an AudioSpecificConfig.
func (t *Tag) IsSequenceHeader() bool {
	switch t.Kind {
	case DATA_TYPE_VIDEO:
		return t.PacketType == AVC_PKT_TYPE_SEQHDR
	case DATA_TYPE_AUDIO:
		return t.PacketType == AAC_PKT_TYPE_SEQHDR
	}
	return false
}

func (t *Tag) Bytes() []byte {
	if t.Payload == nil {
		return nil
	}
	return t.Payload.Bytes()
}

func (t *Tag) Len() int {
	if t.Payload == nil {
		return 0
	}
	return t.Payload.Size()
}

// Release returns the payload to its allocator. Calling it more than once is
// harmless.
func (t *Tag) Release() {
	if t.Payload != nil {
		t.Payload.Release()
		t.Payload = nil
	}
}

// Packet exposes the tag as a Packet sharing the payload bytes. The packet is
// only valid until the tag is released.
func (t *Tag) Packet() *Packet {
	return &Packet{
		DataType:  t.Kind,
		Data:      t.Bytes(),
		Timestamp: uint32(t.Timestamp),
	}
}

// NewVideoTag allocates a video tag and writes its 5 byte header. The caller
// appends the body to Payload.
func NewVideoTag(al *utils.Allocator, frameType, pktType uint8, cts int32, dts int64) (*Tag, error) {
	a, err := al.Allocate()
	if err != nil {
		return nil, err
	}
	WriteVideoHeader(a, frameType, pktType, cts)
	return &Tag{
		Kind:       DATA_TYPE_VIDEO,
		FrameType:  frameType,
		PacketType: pktType,
		Timestamp:  dts,
		Payload:    a,
	}, nil
}

func WriteVideoHeader(a *utils.Allocation, frameType, pktType uint8, cts int32) {
	a.Put(frameType<<4 | CODEC_ID_AVC)
	a.Put(pktType)
	c := uint32(cts)
	a.Put(byte(c >> 16))
	a.Put(byte(c >> 8))
	a.Put(byte(c))
}

// AudioHeaderByte packs the first byte of an AAC audio tag.
func AudioHeaderByte(rate, size, soundType uint8) byte {
	return SOUND_FMT_AAC<<4 | (rate&3)<<2 | (size&1)<<1 | soundType&1
}

// NewAudioTag allocates an audio tag and writes its 2 byte header.
func NewAudioTag(al *utils.Allocator, header byte, pktType uint8, dts int64) (*Tag, error) {
	a, err := al.Allocate()
	if err != nil {
		return nil, err
	}
	a.Put(header)
	a.Put(pktType)
	return &Tag{
		Kind:       DATA_TYPE_AUDIO,
		PacketType: pktType,
		Timestamp:  dts,
		Payload:    a,
	}, nil
}

// NewMetaTag copies an encoded script data body into a fresh allocation.
func NewMetaTag(al *utils.Allocator, body []byte, dts int64) (*Tag, error) {
	if len(body) > al.IndividualAllocationSize() {
		return nil, utils.ErrAllocationOverflow
	}
	a, err := al.Allocate()
	if err != nil {
		return nil, err
	}
	a.Write(body)
	return &Tag{
		Kind:      DATA_TYPE_META,
		Timestamp: dts,
		Payload:   a,
	}, nil
}
