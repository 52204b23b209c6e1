package rtmp

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"

	"livepush/src/utils"
)

// server side handlers, args start after the transaction id
var cmdHandlers = map[string]func(*connection, *chunk, []interface{}) error{
	CMD_CONNECT:       cmdConnectHandler,
	CMD_CREATE_STREAM: cmdCreateStreamHandler,
	CMD_PUBLISH:       cmdPublishHandler,
}

const (
	SERVER_CHUNK_SIZE = 1024
	FMS_VERSION       = "FMS/3,0,1,123"
	PUBLISH_STREAM_ID = 1
)

func cmdConnectHandler(conn *connection, ch *chunk, args []interface{}) (err error) {
	if len(args) > 0 {
		if obj, ok := utils.ToAMFObj(args[0]); ok {
			conn.connInfo = obj
		}
	}

	bs4 := make([]byte, 4)
	binary.BigEndian.PutUint32(bs4, DEFAULT_WINDOW_ACK_SIZE)
	if err = conn.writeChunk(newChunk(TYPE_ID_WINDOW_ACK_SIZE, CSID_AUTO, 0, bs4)); err != nil {
		return
	}

	bs5 := make([]byte, 5)
	binary.BigEndian.PutUint32(bs5[:4], DEFAULT_WINDOW_ACK_SIZE)
	bs5[4] = 2
	if err = conn.writeChunk(newChunk(TYPE_ID_SET_PEER_BANDWIDTH, CSID_AUTO, 0, bs5)); err != nil {
		return
	}

	if err = conn.setChunkSize(SERVER_CHUNK_SIZE); err != nil {
		return
	}

	resp := utils.AMFObj{
		"fmsVer":       FMS_VERSION,
		"capabilities": float64(31),
	}
	event := utils.AMFObj{
		"level":       "status",
		"code":        STATUS_CONNECT_SUCCESS,
		"description": "Connection succeeded.",
	}
	if enc, ok := conn.connInfo["objectEncoding"]; ok {
		event["objectEncoding"] = enc
	} else {
		event["objectEncoding"] = float64(0)
	}

	return conn.writeAmfMsg(TYPE_ID_CMD_MSG_AMF0, CSID_CMD, ch.streamId,
		CMD_RESULT, float64(conn.transactionId), resp, event)
}

func cmdCreateStreamHandler(conn *connection, ch *chunk, args []interface{}) error {
	return conn.writeAmfMsg(TYPE_ID_CMD_MSG_AMF0, CSID_CMD, ch.streamId,
		CMD_RESULT, float64(conn.transactionId), nil, float64(PUBLISH_STREAM_ID))
}

func cmdPublishHandler(conn *connection, ch *chunk, args []interface{}) (err error) {
	for k, v := range args {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch k {
		case 1:
			conn.publishInfo.name = s
		case 2:
			conn.publishInfo.publishType = s
		}
	}

	pubName := conn.getPublisherName()
	var pub *Publisher
	if conn.publishInfo.name != "" && conn.server != nil {
		pub = newPublisher(pubName, newConnReader(conn))
		if !conn.server.addPublisher(pub) {
			pub = nil
		}
	}
	if pub == nil {
		event := utils.AMFObj{
			"level":       "error",
			"code":        STATUS_PUBLISH_BAD,
			"description": fmt.Sprintf("%s is not available", pubName),
		}
		if err = conn.writeAmfMsg(TYPE_ID_CMD_MSG_AMF0, CSID_CMD, ch.streamId,
			CMD_ONSTATUS, float64(0), nil, event); err != nil {
			return
		}
		return fmt.Errorf("publish %s rejected", pubName)
	}

	// removed again by conn.Close if anything below fails
	conn.publisher.Store(pub)
	event := utils.AMFObj{
		"level":       "status",
		"code":        STATUS_PUBLISH_START,
		"description": "Start publishing",
	}
	if err = conn.writeAmfMsg(TYPE_ID_CMD_MSG_AMF0, CSID_CMD, ch.streamId,
		CMD_ONSTATUS, float64(0), nil, event); err != nil {
		return
	}
	logrus.Infof("publisher[%s] %s started, type %s", pub.ID(), pubName, conn.publishInfo.publishType)
	conn.done = true
	return
}
