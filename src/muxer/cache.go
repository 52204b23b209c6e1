package muxer

import (
	"sync"

	"livepush/src/video"
)

// FrameCache is the ordered queue between producers and the delivery
// worker. Any number of goroutines may Enqueue; only the worker drains.
type FrameCache struct {
	mu     sync.Mutex
	tags   []*video.Tag
	counts [video.DATA_TYPE_META + 1]int
	notify chan struct{}
}

func NewFrameCache() *FrameCache {
	return &FrameCache{
		notify: make(chan struct{}, 1),
	}
}

// Enqueue appends t and wakes the worker. It never blocks.
func (c *FrameCache) Enqueue(t *video.Tag) {
	c.mu.Lock()
	c.tags = append(c.tags, t)
	if int(t.Kind) < len(c.counts) {
		c.counts[t.Kind]++
	}
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Drain moves every queued tag, in enqueue order, to the end of buf.
func (c *FrameCache) Drain(buf []*video.Tag) []*video.Tag {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf = append(buf, c.tags...)
	for i := range c.tags {
		c.tags[i] = nil
	}
	c.tags = c.tags[:0]
	c.counts = [len(c.counts)]int{}
	return buf
}

// Notify fires at least once after each Enqueue. Wake ups may be coalesced
// so the worker still re-polls on a timeout.
func (c *FrameCache) Notify() <-chan struct{} {
	return c.notify
}

// Clear releases every queued tag and returns how many were dropped.
func (c *FrameCache) Clear() int {
	dropped := c.Drain(nil)
	for _, t := range dropped {
		t.Release()
	}
	return len(dropped)
}

func (c *FrameCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tags)
}

// KindLen returns the number of queued tags of one kind.
func (c *FrameCache) KindLen(kind video.DataType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(kind) >= len(c.counts) {
		return 0
	}
	return c.counts[kind]
}
