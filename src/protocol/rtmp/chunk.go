package rtmp

// chunk is the header state of one chunk stream plus the message being
// reassembled on it. Outgoing messages use it as a plain header.
type chunk struct {
	format byte
	basicHeader
	messageHeader
	data []byte

	finished bool
	index    int
	remain   uint32
}

type basicHeader struct {
	csid   uint32
	curFmt byte
}

type messageHeader struct {
	timestamp uint32
	timeIncr  uint32
	length    uint32
	typeId    byte
	streamId  uint32
	hasExtTs  bool
}

// csidFor maps a message type to its conventional chunk stream.
func csidFor(typeId byte) uint32 {
	switch typeId {
	case TYPE_ID_SET_CHUNK_SIZE, TYPE_ID_ABORT_MSG, TYPE_ID_ACK, TYPE_ID_USER_CTRL_MSG,
		TYPE_ID_WINDOW_ACK_SIZE, TYPE_ID_SET_PEER_BANDWIDTH:
		return CSID_PRO_CTRL
	case TYPE_ID_CMD_MSG_AMF0, TYPE_ID_CMD_MSG_AMF3:
		return CSID_CMD
	case TYPE_ID_AUDIO_MSG:
		return CSID_AUDIO
	}
	return CSID_VIDEO
}

func newChunk(typeId byte, csid, streamId uint32, data []byte) *chunk {
	if csid == CSID_AUTO {
		csid = csidFor(typeId)
	}
	return &chunk{
		basicHeader: basicHeader{csid: csid},
		messageHeader: messageHeader{
			length:   uint32(len(data)),
			typeId:   typeId,
			streamId: streamId,
		},
		data: data,
	}
}

// begin applies the timestamp field of a message's first chunk and
// allocates its payload.
func (ch *chunk) begin(ts uint32) {
	switch ch.curFmt {
	case 0:
		ch.timestamp = ts
		ch.timeIncr = 0
	case 1, 2:
		ch.timeIncr = ts
		ch.timestamp += ts
	default:
		ch.timestamp += ch.timeIncr
	}
	ch.finished = false
	ch.index = 0
	ch.remain = ch.length
	ch.data = make([]byte, ch.length)
}

// next is where the payload of the next chunk lands.
func (ch *chunk) next(chunkSize uint32) []byte {
	n := ch.remain
	if n > chunkSize {
		n = chunkSize
	}
	return ch.data[ch.index : ch.index+int(n)]
}

func (ch *chunk) advance(n int) {
	ch.index += n
	ch.remain -= uint32(n)
	ch.finished = ch.remain == 0
}

// take returns the finished message and leaves the header state for the
// next one.
func (ch *chunk) take() *chunk {
	msg := *ch
	ch.data = nil
	ch.finished = false
	return &msg
}

// numChunks is how many chunks a message of length bytes takes.
func numChunks(length, chunkSize uint32) int {
	if length == 0 {
		return 1
	}
	return int((length + chunkSize - 1) / chunkSize)
}
