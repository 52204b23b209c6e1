package avc

import (
	"encoding/binary"
	"fmt"
)

const (
	RECORD_VERSION        = 1
	NALU_LENGTH_SIZE      = 4
	RECORD_FIXED_LEN      = 5
	minimumSPSLen         = 4
	lengthSizeMinusOne    = NALU_LENGTH_SIZE - 1
	spsProfileOffset      = 1
	spsCompatibilityValue = 0
	spsLevelOffset        = 3
)

// DecoderConfigurationRecord is the AVC configuration record carried in a
// video sequence header.
type DecoderConfigurationRecord struct {
	Profile       byte
	Compatibility byte
	Level         byte
	SPS           []byte
	PPS           []byte
}

// NewRecord builds a record holding one SPS and one PPS.
func NewRecord(sps, pps []byte) (*DecoderConfigurationRecord, error) {
	if len(sps) < minimumSPSLen {
		return nil, fmt.Errorf("sps too short[%d]", len(sps))
	}
	if len(pps) == 0 {
		return nil, fmt.Errorf("empty pps")
	}
	return &DecoderConfigurationRecord{
		Profile:       sps[spsProfileOffset],
		Compatibility: spsCompatibilityValue,
		Level:         sps[spsLevelOffset],
		SPS:           sps,
		PPS:           pps,
	}, nil
}

func (r *DecoderConfigurationRecord) Len() int {
	return RECORD_FIXED_LEN + 3 + len(r.SPS) + 3 + len(r.PPS)
}

// MarshalTo writes the record into b, which must hold Len bytes.
func (r *DecoderConfigurationRecord) MarshalTo(b []byte) int {
	b[0] = RECORD_VERSION
	b[1] = r.Profile
	b[2] = r.Compatibility
	b[3] = r.Level
	b[4] = lengthSizeMinusOne
	n := RECORD_FIXED_LEN
	b[n] = 0x01
	binary.BigEndian.PutUint16(b[n+1:], uint16(len(r.SPS)))
	n += 3
	n += copy(b[n:], r.SPS)
	b[n] = 0x01
	binary.BigEndian.PutUint16(b[n+1:], uint16(len(r.PPS)))
	n += 3
	n += copy(b[n:], r.PPS)
	return n
}

func (r *DecoderConfigurationRecord) Marshal() []byte {
	b := make([]byte, r.Len())
	r.MarshalTo(b)
	return b
}

// Unmarshal parses a record. Only the first SPS and PPS are kept.
func (r *DecoderConfigurationRecord) Unmarshal(b []byte) error {
	if len(b) < RECORD_FIXED_LEN+1 {
		return fmt.Errorf("record too short[%d]", len(b))
	}
	if b[0] != RECORD_VERSION {
		return fmt.Errorf("unsupported record version[%d]", b[0])
	}
	r.Profile = b[1]
	r.Compatibility = b[2]
	r.Level = b[3]

	n := RECORD_FIXED_LEN
	var err error
	if r.SPS, n, err = readParamSets(b, n); err != nil {
		return fmt.Errorf("read sps: %w", err)
	}
	if r.PPS, _, err = readParamSets(b, n); err != nil {
		return fmt.Errorf("read pps: %w", err)
	}
	return nil
}

func readParamSets(b []byte, n int) ([]byte, int, error) {
	if n >= len(b) {
		return nil, n, fmt.Errorf("missing count")
	}
	count := int(b[n] & 0x1f)
	n++
	var first []byte
	for i := 0; i < count; i++ {
		if n+2 > len(b) {
			return nil, n, fmt.Errorf("missing length")
		}
		l := int(binary.BigEndian.Uint16(b[n:]))
		n += 2
		if n+l > len(b) {
			return nil, n, fmt.Errorf("length %d out of range", l)
		}
		if i == 0 {
			first = b[n : n+l]
		}
		n += l
	}
	if first == nil {
		return nil, n, fmt.Errorf("no parameter set")
	}
	return first, n, nil
}
