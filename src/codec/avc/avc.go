package avc

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/sirupsen/logrus"

	"livepush/src/utils"
	"livepush/src/video"
)

var (
	ErrOversized        = errors.New("access unit exceeds video allocation size")
	ErrNoSequenceHeader = errors.New("sequence header not sent")
	ErrNoSlice          = errors.New("no coded slice in sample")
)

// SequenceState tracks the parameter sets of the current session.
type SequenceState struct {
	sps        []byte
	pps        []byte
	spsChanged bool
	ppsChanged bool
	sent       bool
}

func (s *SequenceState) SPS() []byte {
	return s.sps
}

func (s *SequenceState) PPS() []byte {
	return s.pps
}

func (s *SequenceState) Sent() bool {
	return s.sent
}

func (s *SequenceState) Reset() {
	*s = SequenceState{}
}

func (s *SequenceState) updateSPS(b []byte) {
	if bytes.Equal(s.sps, b) {
		return
	}
	s.sps = append(s.sps[:0:0], b...)
	s.spsChanged = true
}

func (s *SequenceState) updatePPS(b []byte) {
	if bytes.Equal(s.pps, b) {
		return
	}
	s.pps = append(s.pps[:0:0], b...)
	s.ppsChanged = true
}

func (s *SequenceState) needsHeader() bool {
	if s.sent && !s.spsChanged && !s.ppsChanged {
		return false
	}
	return len(s.sps) > 0 && len(s.pps) > 0
}

// Packetizer turns Annex-B access units into FLV video tags. It is not safe
// for concurrent use.
type Packetizer struct {
	alloc *utils.Allocator
	state SequenceState
	nalus []Nalu
}

func NewPacketizer(alloc *utils.Allocator) *Packetizer {
	return &Packetizer{
		alloc: alloc,
		nalus: make([]Nalu, 0, 8),
	}
}

func (p *Packetizer) State() *SequenceState {
	return &p.state
}

func (p *Packetizer) Reset() {
	p.state.Reset()
	p.nalus = p.nalus[:0]
}

// Packetize demuxes the first size bytes of data into at most two tags: a
// sequence header when the parameter sets are new or changed, then one frame
// tag holding every coded NALU of the sample. On error no tag is returned and
// nothing stays allocated.
func (p *Packetizer) Packetize(data []byte, size int, ptsUs int64) ([]*video.Tag, error) {
	pts := ptsUs / 1000
	dts := pts

	r := NewAnnexBReader(data, size)
	p.nalus = p.nalus[:0]
	frameType := video.FRAME_TYPE_INTER
	bodyLen := 0
	for {
		nalu, ok := r.Next()
		if !ok {
			break
		}
		switch nalu.Type() {
		case h264.NALUTypeAccessUnitDelimiter:
			continue
		case h264.NALUTypeSPS:
			p.state.updateSPS(nalu.Data)
			continue
		case h264.NALUTypePPS:
			p.state.updatePPS(nalu.Data)
			continue
		case h264.NALUTypeIDR:
			frameType = video.FRAME_TYPE_KEY
		}
		p.nalus = append(p.nalus, nalu)
		bodyLen += NALU_LENGTH_SIZE + len(nalu.Data)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if len(p.nalus) == 0 {
		return nil, ErrNoSlice
	}
	if video.VIDEO_TAG_HEADER_LEN+bodyLen > p.alloc.IndividualAllocationSize() {
		logrus.Warningf("drop oversized access unit %dB, pts=%d", bodyLen, pts)
		return nil, ErrOversized
	}

	var seq *video.Tag
	if p.state.needsHeader() {
		var err error
		if seq, err = p.sequenceHeader(dts, pts); err != nil {
			return nil, err
		}
	} else if !p.state.sent {
		return nil, ErrNoSequenceHeader
	}

	tag, err := video.NewVideoTag(p.alloc, frameType, video.AVC_PKT_TYPE_NALU, int32(pts-dts), dts)
	if err != nil {
		if seq != nil {
			seq.Release()
		}
		return nil, err
	}
	var lenBuf [NALU_LENGTH_SIZE]byte
	for _, n := range p.nalus {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(n.Data)))
		tag.Payload.Write(lenBuf[:])
		tag.Payload.Write(n.Data)
	}
	if seq == nil {
		return []*video.Tag{tag}, nil
	}

	p.state.spsChanged = false
	p.state.ppsChanged = false
	p.state.sent = true
	logrus.Infof("h264 sps/pps sent, sps=%dB, pps=%dB", len(p.state.sps), len(p.state.pps))
	return []*video.Tag{seq, tag}, nil
}

func (p *Packetizer) sequenceHeader(dts, pts int64) (*video.Tag, error) {
	rec, err := NewRecord(p.state.sps, p.state.pps)
	if err != nil {
		return nil, err
	}
	if video.VIDEO_TAG_HEADER_LEN+rec.Len() > p.alloc.IndividualAllocationSize() {
		return nil, ErrOversized
	}
	tag, err := video.NewVideoTag(p.alloc, video.FRAME_TYPE_KEY, video.AVC_PKT_TYPE_SEQHDR, int32(pts-dts), dts)
	if err != nil {
		return nil, err
	}
	tag.Payload.AppendOffset(rec.MarshalTo(tag.Payload.Array()[tag.Payload.Size():]))
	return tag, nil
}

// StreamInfo describes the stream carried by an SPS.
type StreamInfo struct {
	Width  int
	Height int
	FPS    float64
}

// ParseSPS reads the picture size and frame rate of an SPS.
func ParseSPS(sps []byte) (StreamInfo, error) {
	var s h264.SPS
	if err := s.Unmarshal(sps); err != nil {
		return StreamInfo{}, err
	}
	return StreamInfo{
		Width:  s.Width(),
		Height: s.Height(),
		FPS:    s.FPS(),
	}, nil
}
