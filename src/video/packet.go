package video

// PacketHeader is the parsed codec header of a packet, either a
// VideoPacketHeader or an AudioPacketHeader.
type PacketHeader interface{}

type VideoPacketHeader interface {
	PacketHeader
	IsKeyFrame() bool
	IsSeq() bool
	CompositionTime() int32
}

type AudioPacketHeader interface {
	PacketHeader
	SoundFmt() uint8
	AACPacketType() uint8
}

type Packet struct {
	DataType
	StreamId  uint32
	Data      []byte
	Timestamp uint32
	Header    PacketHeader
}
