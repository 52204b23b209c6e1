package rtmp

import (
	"fmt"

	"livepush/src/video"
)

const MAX_GOP_CAP = 1024

var ErrGopTooBig = fmt.Errorf("gop too big")

type gopArray struct {
	packets []*video.Packet
}

func newArray() *gopArray {
	arr := &gopArray{
		packets: make([]*video.Packet, 0, 64),
	}
	return arr
}

func (arr *gopArray) write(p *video.Packet) error {
	if len(arr.packets) >= MAX_GOP_CAP {
		return ErrGopTooBig
	}
	arr.packets = append(arr.packets, p)
	return nil
}

func (arr *gopArray) reset() {
	for i := range arr.packets {
		arr.packets[i] = nil
	}
	arr.packets = arr.packets[:0]
}

func (arr *gopArray) send(w video.Writer) (err error) {
	for _, pkt := range arr.packets {
		if err = w.Write(pkt); err != nil {
			return
		}
	}
	return
}

// GopCache keeps the most recent groups of pictures, each starting at a
// video keyframe, so a late consumer can start decoding at once.
type GopCache struct {
	gops     []*gopArray
	cur      int
	length   int
	capacity int
	started  bool
}

func NewGopCache(cap int) *GopCache {
	if cap < 1 {
		cap = 1
	}
	gc := &GopCache{
		capacity: cap,
		gops:     make([]*gopArray, cap),
		cur:      cap - 1,
	}
	return gc
}

// Write appends a media packet. Packets before the first keyframe are
// dropped, and so is a gop that outgrows MAX_GOP_CAP.
func (gc *GopCache) Write(p *video.Packet) {
	if isKeyFrame(p) {
		gc.startGop()
	}
	if !gc.started {
		return
	}
	if err := gc.gops[gc.cur].write(p); err != nil {
		gc.gops[gc.cur].reset()
		gc.started = false
	}
}

func (gc *GopCache) startGop() {
	gc.cur = (gc.cur + 1) % gc.capacity
	arr := gc.gops[gc.cur]
	if arr == nil {
		arr = newArray()
		gc.gops[gc.cur] = arr
	} else {
		arr.reset()
	}
	if gc.length < gc.capacity {
		gc.length++
	}
	gc.started = true
}

// Len is the number of cached gops.
func (gc *GopCache) Len() int {
	return gc.length
}

// Send writes the cached gops, oldest first.
func (gc *GopCache) Send(w video.Writer) (err error) {
	start := gc.cur - gc.length + 1
	for i := 0; i < gc.length; i++ {
		idx := start + i
		if idx < 0 {
			idx += gc.capacity
		}
		if err = gc.gops[idx].send(w); err != nil {
			return
		}
	}
	return
}

func isKeyFrame(p *video.Packet) bool {
	if p.DataType != video.DATA_TYPE_VIDEO {
		return false
	}
	h, ok := p.Header.(video.VideoPacketHeader)
	return ok && h.IsKeyFrame() && !h.IsSeq()
}
