package muxer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livepush/src/utils"
	"livepush/src/video"
)

func newTestTag(t *testing.T, al *utils.Allocator, kind video.DataType, dts int64) *video.Tag {
	t.Helper()
	var (
		tag *video.Tag
		err error
	)
	switch kind {
	case video.DATA_TYPE_VIDEO:
		tag, err = video.NewVideoTag(al, video.FRAME_TYPE_INTER, video.AVC_PKT_TYPE_NALU, 0, dts)
	default:
		tag, err = video.NewAudioTag(al, 0xAE, video.AAC_PKT_TYPE_RAW, dts)
	}
	require.NoError(t, err)
	return tag
}

func TestFrameCacheOrder(t *testing.T) {
	t.Parallel()
	al := utils.NewAllocator(16, 0, 0)
	c := NewFrameCache()
	for i := 0; i < 10; i++ {
		kind := video.DATA_TYPE_VIDEO
		if i%3 == 0 {
			kind = video.DATA_TYPE_AUDIO
		}
		c.Enqueue(newTestTag(t, al, kind, int64(i)))
	}
	assert.Equal(t, 10, c.Len())
	assert.Equal(t, 6, c.KindLen(video.DATA_TYPE_VIDEO))
	assert.Equal(t, 4, c.KindLen(video.DATA_TYPE_AUDIO))

	tags := c.Drain(nil)
	require.Len(t, tags, 10)
	for i, tag := range tags {
		assert.EqualValues(t, i, tag.Timestamp)
		tag.Release()
	}
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.KindLen(video.DATA_TYPE_VIDEO))
	assert.Equal(t, 0, c.KindLen(video.DataType(9)))
	assert.Equal(t, 0, al.InUse())
}

func TestFrameCacheNotify(t *testing.T) {
	t.Parallel()
	al := utils.NewAllocator(16, 0, 0)
	c := NewFrameCache()

	select {
	case <-c.Notify():
		t.Fatal("empty cache must not notify")
	default:
	}

	c.Enqueue(newTestTag(t, al, video.DATA_TYPE_AUDIO, 0))
	c.Enqueue(newTestTag(t, al, video.DATA_TYPE_AUDIO, 1))
	select {
	case <-c.Notify():
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
	select {
	case <-c.Notify():
		t.Fatal("notifications are coalesced")
	default:
	}
	assert.Equal(t, 2, c.Clear())
	assert.Equal(t, 0, al.InUse())
}

func TestFrameCacheConcurrentProducers(t *testing.T) {
	t.Parallel()
	al := utils.NewAllocator(16, 0, 0)
	c := NewFrameCache()

	const producers, perProducer = 4, 100
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				c.Enqueue(newTestTag(t, al, video.DATA_TYPE_VIDEO, int64(p*perProducer+i)))
			}
		}(p)
	}

	var got []*video.Tag
	done := make(chan struct{})
	go func() {
		defer close(done)
		for len(got) < producers*perProducer {
			got = c.Drain(got)
			select {
			case <-c.Notify():
			case <-time.After(10 * time.Millisecond):
			}
		}
	}()
	wg.Wait()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not see every tag")
	}

	// each producer's tags keep their relative order
	last := make([]int64, producers)
	for i := range last {
		last[i] = -1
	}
	for _, tag := range got {
		p := tag.Timestamp / perProducer
		assert.Greater(t, tag.Timestamp, last[p])
		last[p] = tag.Timestamp
		tag.Release()
	}
	assert.Equal(t, 0, al.InUse())
}

func TestKeyframeGate(t *testing.T) {
	t.Parallel()
	al := utils.NewAllocator(16, 0, 0)
	var g keyframeGate

	inter, err := video.NewVideoTag(al, video.FRAME_TYPE_INTER, video.AVC_PKT_TYPE_NALU, 0, 0)
	require.NoError(t, err)
	key, err := video.NewVideoTag(al, video.FRAME_TYPE_KEY, video.AVC_PKT_TYPE_NALU, 0, 0)
	require.NoError(t, err)
	audio := newTestTag(t, al, video.DATA_TYPE_AUDIO, 0)

	assert.False(t, g.Pass(inter))
	assert.True(t, g.Pass(audio), "audio is never gated")
	assert.True(t, g.Pass(key))
	assert.True(t, g.Pass(inter))
	assert.True(t, g.Pass(inter), "the gate stays open for the session")

	g.Reset()
	assert.False(t, g.Pass(inter))
}
