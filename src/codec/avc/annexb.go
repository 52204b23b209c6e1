package avc

import (
	"errors"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/sirupsen/logrus"
)

var ErrAnnexBNotMatch = errors.New("annexb start code not match")

// Nalu is a view into the sample it was read from. Data is only valid while
// the sample is.
type Nalu struct {
	Data []byte
	// Offset of the first payload byte in the sample.
	Offset int
	// StartCodeLen counts the start code plus any zero bytes absorbed in it.
	StartCodeLen int
}

func (n Nalu) Type() h264.NALUType {
	if len(n.Data) == 0 {
		return 0
	}
	return h264.NALUType(n.Data[0] & 0x1f)
}

// startCodeLen returns how many bytes from pos make up a start code, zero
// runs included, or 0 when there is none at pos.
func startCodeLen(b []byte, pos int) int {
	for i := pos; i+2 < len(b); i++ {
		if b[i] != 0 || b[i+1] != 0 {
			break
		}
		if b[i+2] == 1 {
			return i + 3 - pos
		}
	}
	return 0
}

// AnnexBReader splits an Annex-B byte span into NALUs. It reads forward only
// and cannot be restarted.
type AnnexBReader struct {
	buf []byte
	pos int
	err error
}

// NewAnnexBReader reads the first size bytes of b.
func NewAnnexBReader(b []byte, size int) *AnnexBReader {
	if size < 0 || size > len(b) {
		size = len(b)
	}
	return &AnnexBReader{buf: b[:size]}
}

// Next returns the next non empty NALU. It returns false at the end of the
// span or when the span does not start with a start code, see Err.
func (r *AnnexBReader) Next() (Nalu, bool) {
	for r.err == nil && r.pos < len(r.buf) {
		nb := startCodeLen(r.buf, r.pos)
		if nb < 3 {
			r.err = ErrAnnexBNotMatch
			logrus.Warningf("annexb demux failed at %d of %dB", r.pos, len(r.buf))
			return Nalu{}, false
		}
		start := r.pos + nb
		end := start
		for end < len(r.buf) && startCodeLen(r.buf, end) == 0 {
			end++
		}
		r.pos = end
		if end == start {
			continue
		}
		return Nalu{
			Data:         r.buf[start:end],
			Offset:       start,
			StartCodeLen: nb,
		}, true
	}
	return Nalu{}, false
}

func (r *AnnexBReader) Err() error {
	return r.err
}
