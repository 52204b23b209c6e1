package rtmp

import (
	"io"

	"github.com/sirupsen/logrus"

	"livepush/src/video"
)

type streamReader interface {
	video.Reader
	Close()
}

var _ streamReader = &connReader{}

// connReader pulls media messages off a publishing connection, answering
// protocol control on the way. It returns io.EOF once the peer unpublishes.
type connReader struct {
	conn *connection
}

func newConnReader(conn *connection) *connReader {
	return &connReader{conn: conn}
}

func (r *connReader) Close() {
	r.conn.Close()
}

// dataTypeOf maps a media message type, ok is false for anything else.
func dataTypeOf(typeId byte) (video.DataType, bool) {
	switch typeId {
	case TYPE_ID_VIDEO_MSG:
		return video.DATA_TYPE_VIDEO, true
	case TYPE_ID_AUDIO_MSG:
		return video.DATA_TYPE_AUDIO, true
	case TYPE_ID_DATA_MSG_AMF0:
		return video.DATA_TYPE_META, true
	}
	return 0, false
}

func (r *connReader) Read(p *video.Packet) error {
	for {
		msg, err := r.conn.readMsg()
		if err != nil {
			return err
		}
		if err = r.conn.ack(); err != nil {
			return err
		}
		if dt, ok := dataTypeOf(msg.typeId); ok {
			p.DataType = dt
			p.StreamId = msg.streamId
			p.Data = msg.data
			p.Timestamp = msg.timestamp
			p.Header = nil
			return nil
		}

		switch msg.typeId {
		case TYPE_ID_CMD_MSG_AMF0, TYPE_ID_CMD_MSG_AMF3:
			name, _, _, err := decodeCmdMsg(msg)
			if err != nil {
				logrus.Debug("decode command failed, err: ", err)
				continue
			}
			switch name {
			case CMD_FC_UNPUBLISH, CMD_DELETE_STREAM, CMD_CLOSE_STREAM:
				return io.EOF
			}
		default:
			r.conn.handleCtrlMsg(msg)
		}
	}
}
