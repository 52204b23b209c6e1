package rtmp

import "livepush/src/video"

const GOP_CACHE_CAP = 1

// PacketCache remembers what a consumer joining mid-stream needs: the last
// metadata, both sequence headers and the latest gop.
type PacketCache struct {
	meta     lastPacket
	videoSeq lastPacket
	audioSeq lastPacket
	gop      *GopCache
}

func NewPacketCache() *PacketCache {
	return &PacketCache{gop: NewGopCache(GOP_CACHE_CAP)}
}

type lastPacket struct {
	p *video.Packet
}

func (l *lastPacket) send(w video.Writer) error {
	if l.p == nil {
		return nil
	}
	return w.Write(l.p)
}

func isAACSeqHeader(h video.AudioPacketHeader) bool {
	return h.SoundFmt() == video.SOUND_FMT_AAC && h.AACPacketType() == video.AAC_PKT_TYPE_SEQHDR
}

// Write caches p. Media packets without a parsed header are ignored.
func (pc *PacketCache) Write(p *video.Packet) {
	switch p.DataType {
	case video.DATA_TYPE_META:
		pc.meta.p = p
	case video.DATA_TYPE_VIDEO:
		h, ok := p.Header.(video.VideoPacketHeader)
		if !ok {
			return
		}
		if h.IsSeq() {
			pc.videoSeq.p = p
			return
		}
		pc.gop.Write(p)
	case video.DATA_TYPE_AUDIO:
		h, ok := p.Header.(video.AudioPacketHeader)
		if !ok {
			return
		}
		if isAACSeqHeader(h) {
			pc.audioSeq.p = p
			return
		}
		pc.gop.Write(p)
	}
}

// Send replays metadata, sequence headers and the cached gop, in that order.
func (pc *PacketCache) Send(w video.Writer) error {
	for _, l := range []*lastPacket{&pc.meta, &pc.videoSeq, &pc.audioSeq} {
		if err := l.send(w); err != nil {
			return err
		}
	}
	return pc.gop.Send(w)
}
