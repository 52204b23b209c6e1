package utils

type (
	AMFVersion byte
	// AMFObj is an AMF object or ECMA array, e.g. the command object of
	// connect or the onMetaData properties.
	AMFObj map[string]interface{}
)

const (
	AMF0 AMFVersion = iota
	AMF3
)

// MetaDataReform flags: ADD prepends "@setDataFrame" to an onMetaData body
// for publishing, DEL strips it for playback.
const (
	META_DATA_REFORM_FLAG_ADD byte = iota + 1
	META_DATA_REFORM_FLAG_DEL
)

// AMFHandler encodes RTMP command and data message bodies.
type AMFHandler interface {
	Encode(v interface{}, ver AMFVersion) ([]byte, error)
	EncodeBatch(ver AMFVersion, vals ...interface{}) ([]byte, error)
	Decode(data []byte, ver AMFVersion) (interface{}, error)
	DecodeBatch(data []byte, ver AMFVersion) ([]interface{}, error)
	MetaDataReform(data []byte, flag byte) ([]byte, error)
}

var GetAMFHandler func() AMFHandler
