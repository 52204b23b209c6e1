package rtmp

import "time"

const (
	TYPE_ID_SET_CHUNK_SIZE     byte = 1
	TYPE_ID_ABORT_MSG          byte = 2
	TYPE_ID_ACK                byte = 3
	TYPE_ID_USER_CTRL_MSG      byte = 4
	TYPE_ID_WINDOW_ACK_SIZE    byte = 5
	TYPE_ID_SET_PEER_BANDWIDTH byte = 6

	TYPE_ID_AUDIO_MSG byte = 8
	TYPE_ID_VIDEO_MSG byte = 9

	TYPE_ID_DATA_MSG_AMF3 byte = 15
	TYPE_ID_DATA_MSG_AMF0 byte = 18

	TYPE_ID_SHARED_OBJ_MSG_AMF3 byte = 16
	TYPE_ID_CMD_MSG_AMF3        byte = 17
	TYPE_ID_SHARED_OBJ_MSG_AMF0 byte = 19
	TYPE_ID_CMD_MSG_AMF0        byte = 20
)

const (
	CSID_AUTO        = 0
	CSID_PRO_CTRL    = 2
	CSID_CMD         = 3
	CSID_AUDIO       = 4
	CSID_VIDEO       = 6
	CSID_CTRL_STREAM = 8
)

const (
	CMD_CONNECT        = "connect"
	CMD_CALL           = "call"
	CMD_CLOSE          = "close"
	CMD_CREATE_STREAM  = "createStream"
	CMD_DELETE_STREAM  = "deleteStream"
	CMD_CLOSE_STREAM   = "closeStream"
	CMD_RELEASE_STREAM = "releaseStream"
	CMD_FC_PUBLISH     = "FCPublish"
	CMD_FC_UNPUBLISH   = "FCUnpublish"
	CMD_PUBLISH        = "publish"

	CMD_RESULT   = "_result"
	CMD_ERROR    = "_error"
	CMD_ONSTATUS = "onStatus"

	SET_DATA_FRAME = "@setDataFrame"
)

const (
	STATUS_CONNECT_SUCCESS = "NetConnection.Connect.Success"
	STATUS_PUBLISH_START   = "NetStream.Publish.Start"
	STATUS_PUBLISH_BAD     = "NetStream.Publish.BadName"
	STATUS_UNPUBLISH       = "NetStream.Unpublish.Success"
)

const (
	SCHEME                  = "rtmp"
	DEFAULT_PORT            = "1935"
	DEFAULT_CHUNK_SIZE      = 128
	DEFAULT_OUT_CHUNK_SIZE  = 4096
	MAX_CHUNK_SIZE          = 0xffffff
	DEFAULT_WINDOW_ACK_SIZE = 2500000
	MAX_TIMESTAMP           = 0xffffff
	MAX_MESSAGE_LEN         = 0xffffff

	DEFAULT_DIAL_TIMEOUT  = 5 * time.Second
	DEFAULT_WRITE_TIMEOUT = 10 * time.Second
	FLASH_VER             = "FMLE/3.0 (compatible; livepush)"
)

// user control event types
const (
	USER_CTRL_STREAM_BEGIN  uint16 = 0
	USER_CTRL_PING_REQUEST  uint16 = 6
	USER_CTRL_PING_RESPONSE uint16 = 7
)
