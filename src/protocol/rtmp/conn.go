package rtmp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"livepush/src/utils"
)

// connection is one RTMP chunk stream over a net.Conn. Reads happen on a
// single goroutine; writes are serialized.
type connection struct {
	netConn         net.Conn
	rw              *utils.ReadWriter
	chunkSize       uint32
	remoteChunkSize uint32
	windowAckSize   uint32
	windowReceived  uint32
	chunkMap        map[uint32]*chunk
	handshaker      *handshake
	writeTimeout    time.Duration
	wmu             sync.Mutex
	hbuf            [16]byte
	closeOnce       sync.Once

	// server side session state
	server        *Server
	transactionId int
	connInfo      utils.AMFObj
	publishInfo   publishInfo
	publisher     atomic.Pointer[Publisher]
	done          bool
}

type publishInfo struct {
	name        string
	publishType string
}

func newConn(c net.Conn) *connection {
	return &connection{
		netConn:         c,
		rw:              utils.NewReadWriter(c),
		chunkSize:       DEFAULT_CHUNK_SIZE,
		remoteChunkSize: DEFAULT_CHUNK_SIZE,
		windowAckSize:   DEFAULT_WINDOW_ACK_SIZE,
		handshaker:      &handshake{},
		chunkMap:        make(map[uint32]*chunk),
	}
}

func (c *connection) Close() {
	c.closeOnce.Do(func() {
		if pub := c.publisher.Load(); c.server != nil && pub != nil {
			c.server.removePublisher(pub)
		}
		c.netConn.Close()
	})
}

// readMsg reads chunks until a whole message is reassembled on one of the
// chunk streams.
func (c *connection) readMsg() (*chunk, error) {
	for {
		b, err := c.rw.ReadByte()
		if err != nil {
			return nil, err
		}
		csid := uint32(b & 0x3f)
		switch csid {
		case 0:
			v, err := c.rw.ReadUint32BE(1)
			if err != nil {
				return nil, err
			}
			csid = v + 64
		case 1:
			v, err := c.rw.ReadUint32LE(2)
			if err != nil {
				return nil, err
			}
			csid = v + 64
		}

		ch, ok := c.chunkMap[csid]
		if !ok {
			ch = &chunk{basicHeader: basicHeader{csid: csid}}
			c.chunkMap[csid] = ch
		}
		ch.curFmt = b >> 6

		if err = c.readChunk(ch); err != nil {
			return nil, err
		}
		if ch.finished {
			return ch.take(), nil
		}
	}
}

func (c *connection) readChunk(ch *chunk) (err error) {
	if ch.remain > 0 && ch.curFmt != 3 {
		return fmt.Errorf("csid %d: new header in the middle of a message", ch.csid)
	}
	if ch.curFmt == 3 && ch.length == 0 && ch.typeId == 0 {
		return fmt.Errorf("csid %d: fmt 3 chunk without previous header", ch.csid)
	}

	var ts uint32
	if ch.curFmt < 3 {
		ch.format = ch.curFmt
		if ts, err = c.rw.ReadUint32BE(3); err != nil {
			return
		}
		if ch.curFmt < 2 {
			var lenAndTypeId uint32
			if lenAndTypeId, err = c.rw.ReadUint32BE(4); err != nil {
				return
			}
			ch.length = lenAndTypeId >> 8
			ch.typeId = byte(lenAndTypeId & 0xff)
		}
		if ch.curFmt < 1 {
			if ch.streamId, err = c.rw.ReadUint32LE(4); err != nil {
				return
			}
		}
		ch.hasExtTs = ts == MAX_TIMESTAMP
	}
	if ch.hasExtTs {
		// fmt 3 chunks repeat the extended timestamp of their header
		if ts, err = c.rw.ReadUint32BE(4); err != nil {
			return
		}
	}
	if ch.remain == 0 {
		ch.begin(ts)
	}

	buf := ch.next(c.remoteChunkSize)
	if _, err = io.ReadFull(c.rw, buf); err != nil {
		return
	}
	ch.advance(len(buf))
	c.windowReceived += uint32(len(buf))
	return
}

func (c *connection) handleCtrlMsg(msg *chunk) {
	switch msg.typeId {
	case TYPE_ID_SET_CHUNK_SIZE:
		if len(msg.data) >= 4 {
			size := binary.BigEndian.Uint32(msg.data) & 0x7fffffff
			if size > 0 && size <= MAX_CHUNK_SIZE {
				c.remoteChunkSize = size
			}
		}
	case TYPE_ID_WINDOW_ACK_SIZE:
		if len(msg.data) >= 4 {
			c.windowAckSize = binary.BigEndian.Uint32(msg.data)
		}
	case TYPE_ID_USER_CTRL_MSG:
		if len(msg.data) >= 6 && binary.BigEndian.Uint16(msg.data) == USER_CTRL_PING_REQUEST {
			resp := make([]byte, 6)
			binary.BigEndian.PutUint16(resp, USER_CTRL_PING_RESPONSE)
			copy(resp[2:], msg.data[2:6])
			c.writeChunk(newChunk(TYPE_ID_USER_CTRL_MSG, CSID_AUTO, 0, resp))
		}
	}
}

// handleCmdMsg dispatches a command received before publishing starts.
func (c *connection) handleCmdMsg(msg *chunk) error {
	name, tx, args, err := decodeCmdMsg(msg)
	if err != nil {
		return err
	}
	handler, ok := cmdHandlers[name]
	if !ok {
		logrus.Debugf("unhandled rtmp command[%s]", name)
		return nil
	}
	c.transactionId = int(tx)
	return handler(c, msg, args)
}

// ack acknowledges received bytes once the peer's window is reached.
func (c *connection) ack() error {
	if c.windowAckSize == 0 || c.windowReceived < c.windowAckSize {
		return nil
	}
	bs := make([]byte, 4)
	binary.BigEndian.PutUint32(bs, c.windowReceived)
	c.windowReceived = 0
	return c.writeChunk(newChunk(TYPE_ID_ACK, CSID_AUTO, 0, bs))
}

// decodeCmdMsg splits an AMF command message into its name, transaction id
// and remaining arguments.
func decodeCmdMsg(msg *chunk) (name string, tx float64, args []interface{}, err error) {
	data := msg.data
	if msg.typeId == TYPE_ID_CMD_MSG_AMF3 && len(data) > 0 {
		data = data[1:]
	}
	var vals []interface{}
	if vals, err = utils.GetAMFHandler().DecodeBatch(data, utils.AMF0); err != nil {
		return
	}
	if len(vals) == 0 {
		err = errors.New("empty command message")
		return
	}
	var ok bool
	if name, ok = vals[0].(string); !ok {
		err = fmt.Errorf("invalid command name %v", vals[0])
		return
	}
	if len(vals) > 1 {
		tx, _ = vals[1].(float64)
	}
	if len(vals) > 2 {
		args = vals[2:]
	}
	return
}

func (c *connection) writeAmfMsg(typeId byte, csid, streamId uint32, args ...interface{}) (err error) {
	var bs []byte
	var amfVer utils.AMFVersion
	switch typeId {
	case TYPE_ID_CMD_MSG_AMF3, TYPE_ID_DATA_MSG_AMF3, TYPE_ID_SHARED_OBJ_MSG_AMF3:
		amfVer = utils.AMF3
	default:
		amfVer = utils.AMF0
	}
	bs, err = utils.GetAMFHandler().EncodeBatch(amfVer, args...)
	if err != nil {
		return
	}
	return c.writeChunk(newChunk(typeId, csid, streamId, bs))
}

// setChunkSize announces and applies a new outgoing chunk size.
func (c *connection) setChunkSize(size uint32) error {
	bs := make([]byte, 4)
	binary.BigEndian.PutUint32(bs, size)
	return c.writeChunk(newChunk(TYPE_ID_SET_CHUNK_SIZE, CSID_AUTO, 0, bs))
}

// writeChunk splits a message into chunks of the outgoing chunk size and
// flushes it.
func (c *connection) writeChunk(ch *chunk) (err error) {
	if ch.length > MAX_MESSAGE_LEN {
		return fmt.Errorf("message too long[%d]", ch.length)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.writeTimeout > 0 {
		if err = c.netConn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return
		}
	}

	chunkSize := c.chunkSize
	n := numChunks(ch.length, chunkSize)
	for i := 0; i < n; i++ {
		if i > 0 {
			ch.format = 3
		}
		if err = c.writeChunkHeader(ch); err != nil {
			return
		}
		start := uint32(i) * chunkSize
		end := start + chunkSize
		if end > ch.length {
			end = ch.length
		}
		if _, err = c.rw.Write(ch.data[start:end]); err != nil {
			return
		}
	}
	if err = c.rw.Flush(); err != nil {
		return
	}

	// applies to the messages after this one
	if ch.typeId == TYPE_ID_SET_CHUNK_SIZE && len(ch.data) >= 4 {
		c.chunkSize = binary.BigEndian.Uint32(ch.data)
	}
	return nil
}

func (c *connection) writeChunkHeader(ch *chunk) (err error) {
	h := c.hbuf[:0]
	fmtH := ch.format << 6
	switch {
	case ch.csid < 64:
		h = append(h, fmtH|byte(ch.csid))
	case ch.csid-64 < 0x100:
		h = append(h, fmtH, byte(ch.csid-64))
	default:
		tmpCsid := ch.csid - 64
		h = append(h, fmtH|1, byte(tmpCsid), byte(tmpCsid>>8))
	}

	hasExtTs := ch.timestamp >= MAX_TIMESTAMP
	if ch.format < 3 {
		ts := ch.timestamp
		if hasExtTs {
			ts = MAX_TIMESTAMP
		}
		h = append(h, byte(ts>>16), byte(ts>>8), byte(ts))
	}
	if ch.format < 2 {
		h = append(h, byte(ch.length>>16), byte(ch.length>>8), byte(ch.length), ch.typeId)
	}
	if ch.format < 1 {
		h = binary.LittleEndian.AppendUint32(h, ch.streamId)
	}
	if hasExtTs {
		h = binary.BigEndian.AppendUint32(h, ch.timestamp)
	}
	_, err = c.rw.Write(h)
	return
}

func (c *connection) getPublisherName() string {
	app, _ := c.connInfo["app"].(string)
	if app == "" {
		return c.publishInfo.name
	}
	return app + "/" + c.publishInfo.name
}
