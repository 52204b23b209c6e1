package utils

import (
	"bytes"
	"sync"

	amf "github.com/Barber0/goamf-1"
)

var (
	globalAMFHandler AMFHandler = newAmfHandlerImpl()
)

func init() {
	GetAMFHandler = func() AMFHandler {
		return globalAMFHandler
	}
}

// amfHandlerImpl is shared by every connection, so the scratch buffers are
// guarded.
type amfHandlerImpl struct {
	mu        sync.Mutex
	encodeBuf *bytes.Buffer
	decodeBuf *bytes.Buffer
}

func (h *amfHandlerImpl) MetaDataReform(bts []byte, flag byte) ([]byte, error) {
	amfFlag := amf.ADD
	if flag == META_DATA_REFORM_FLAG_DEL {
		amfFlag = amf.DEL
	}
	return amf.MetaDataReform(bts, byte(amfFlag))
}

func newAmfHandlerImpl() *amfHandlerImpl {
	return &amfHandlerImpl{
		encodeBuf: bytes.NewBuffer(nil),
		decodeBuf: bytes.NewBuffer(nil),
	}
}

func writeValue(buf *bytes.Buffer, ver AMFVersion, v interface{}) (err error) {
	if ver == AMF3 {
		_, err = amf.AMF3_WriteValue(buf, v)
	} else {
		_, err = amf.WriteValue(buf, v)
	}
	return
}

func readValue(buf *bytes.Buffer, ver AMFVersion) (interface{}, error) {
	if ver == AMF3 {
		return amf.AMF3_ReadValue(buf)
	}
	return amf.ReadValue(buf)
}

func (h *amfHandlerImpl) Encode(v interface{}, ver AMFVersion) ([]byte, error) {
	return h.EncodeBatch(ver, v)
}

// EncodeBatch writes vals back to back, as in a command message body.
func (h *amfHandlerImpl) EncodeBatch(ver AMFVersion, vals ...interface{}) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.encodeBuf.Reset()
	for _, v := range vals {
		if err := writeValue(h.encodeBuf, ver, toAMFValue(v)); err != nil {
			return nil, err
		}
	}
	return append([]byte(nil), h.encodeBuf.Bytes()...), nil
}

func (h *amfHandlerImpl) Decode(data []byte, ver AMFVersion) (interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.decodeBuf.Reset()
	h.decodeBuf.Write(data)
	return readValue(h.decodeBuf, ver)
}

// DecodeBatch reads values until data is exhausted.
func (h *amfHandlerImpl) DecodeBatch(data []byte, ver AMFVersion) ([]interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.decodeBuf.Reset()
	h.decodeBuf.Write(data)
	vals := []interface{}{}
	for h.decodeBuf.Len() > 0 {
		v, err := readValue(h.decodeBuf, ver)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// toAMFValue turns object-like values into amf.Object so the encoder
// writes them as AMF objects.
func toAMFValue(v interface{}) interface{} {
	switch o := v.(type) {
	case AMFObj:
		return amf.Object(o)
	case map[string]interface{}:
		return amf.Object(o)
	}
	return v
}

// ToAMFObj converts a decoded AMF object into an AMFObj.
func ToAMFObj(v interface{}) (AMFObj, bool) {
	switch o := v.(type) {
	case amf.Object:
		return AMFObj(o), true
	case map[string]interface{}:
		return AMFObj(o), true
	case AMFObj:
		return o, true
	}
	return nil, false
}

// GetString returns the string stored under key, or "".
func (o AMFObj) GetString(key string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return ""
}
