package rtmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livepush/src/video"
)

type packetList struct {
	pkts []*video.Packet
}

func (l *packetList) Write(p *video.Packet) error {
	l.pkts = append(l.pkts, p)
	return nil
}

func parsed(t *testing.T, kind video.DataType, ts uint32, data ...byte) *video.Packet {
	t.Helper()
	p := &video.Packet{DataType: kind, Timestamp: ts, Data: data}
	var parser video.TagParser
	require.NoError(t, parser.Parse(p))
	return p
}

func keyPkt(t *testing.T, ts uint32) *video.Packet {
	return parsed(t, video.DATA_TYPE_VIDEO, ts, 0x17, 0x01, 0, 0, 0)
}

func interPkt(t *testing.T, ts uint32) *video.Packet {
	return parsed(t, video.DATA_TYPE_VIDEO, ts, 0x27, 0x01, 0, 0, 0)
}

func audioPkt(t *testing.T, ts uint32) *video.Packet {
	return parsed(t, video.DATA_TYPE_AUDIO, ts, 0xae, 0x01, 0x21)
}

func timestamps(pkts []*video.Packet) []uint32 {
	ts := make([]uint32, 0, len(pkts))
	for _, p := range pkts {
		ts = append(ts, p.Timestamp)
	}
	return ts
}

func TestGopCacheStartsAtKeyFrame(t *testing.T) {
	t.Parallel()
	gc := NewGopCache(1)
	gc.Write(interPkt(t, 1))
	gc.Write(audioPkt(t, 2))
	assert.Equal(t, 0, gc.Len())

	gc.Write(keyPkt(t, 3))
	gc.Write(audioPkt(t, 4))
	gc.Write(interPkt(t, 5))
	var out packetList
	require.NoError(t, gc.Send(&out))
	assert.Equal(t, []uint32{3, 4, 5}, timestamps(out.pkts))

	// the next keyframe replaces the gop
	gc.Write(keyPkt(t, 6))
	gc.Write(interPkt(t, 7))
	out = packetList{}
	require.NoError(t, gc.Send(&out))
	assert.Equal(t, []uint32{6, 7}, timestamps(out.pkts))
	assert.Equal(t, 1, gc.Len())
}

func TestGopCacheKeepsRecentGops(t *testing.T) {
	t.Parallel()
	gc := NewGopCache(2)
	for i := uint32(0); i < 3; i++ {
		gc.Write(keyPkt(t, i*10))
		gc.Write(interPkt(t, i*10+1))
	}
	var out packetList
	require.NoError(t, gc.Send(&out))
	assert.Equal(t, []uint32{10, 11, 20, 21}, timestamps(out.pkts))
}

func TestGopCacheTooBig(t *testing.T) {
	t.Parallel()
	gc := NewGopCache(1)
	gc.Write(keyPkt(t, 0))
	for i := 1; i <= MAX_GOP_CAP; i++ {
		gc.Write(interPkt(t, uint32(i)))
	}
	var out packetList
	require.NoError(t, gc.Send(&out))
	assert.Empty(t, out.pkts)

	gc.Write(interPkt(t, 5000))
	gc.Write(keyPkt(t, 5001))
	require.NoError(t, gc.Send(&out))
	assert.Equal(t, []uint32{5001}, timestamps(out.pkts))
}

func TestPacketCacheReplay(t *testing.T) {
	t.Parallel()
	pc := NewPacketCache()
	meta := &video.Packet{DataType: video.DATA_TYPE_META, Timestamp: 0, Data: []byte{0x02}}
	vseq := parsed(t, video.DATA_TYPE_VIDEO, 0, 0x17, 0x00, 0, 0, 0, 0x01)
	aseq := parsed(t, video.DATA_TYPE_AUDIO, 0, 0xae, 0x00, 0x12, 0x08)

	pc.Write(interPkt(t, 1))
	pc.Write(meta)
	pc.Write(vseq)
	pc.Write(aseq)
	pc.Write(keyPkt(t, 40))
	pc.Write(audioPkt(t, 41))
	// packets without a parsed header are not cached
	pc.Write(&video.Packet{DataType: video.DATA_TYPE_VIDEO, Timestamp: 42})

	var out packetList
	require.NoError(t, pc.Send(&out))
	require.Len(t, out.pkts, 5)
	assert.Same(t, meta, out.pkts[0])
	assert.Same(t, vseq, out.pkts[1])
	assert.Same(t, aseq, out.pkts[2])
	assert.EqualValues(t, 40, out.pkts[3].Timestamp)
	assert.EqualValues(t, 41, out.pkts[4].Timestamp)
}
