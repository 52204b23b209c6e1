package muxer

import (
	"sync/atomic"

	"livepush/src/video"
)

// Stats is a snapshot of session counters. QueuedVideo and QueuedAudio are
// gauges of the frame cache, the rest count since the muxer was created.
type Stats struct {
	QueuedVideo int
	QueuedAudio int

	SentVideo int64
	SentAudio int64
	SentMeta  int64

	DroppedMalformed        int64
	DroppedOversized        int64
	DroppedUngated          int64
	DroppedNoSequenceHeader int64
	DroppedStopped          int64
	DroppedUndeliverable    int64
	SendFailures            int64
}

type counters struct {
	sentVideo atomic.Int64
	sentAudio atomic.Int64
	sentMeta  atomic.Int64

	malformed     atomic.Int64
	oversized     atomic.Int64
	ungated       atomic.Int64
	noSeqHeader   atomic.Int64
	stopped       atomic.Int64
	undeliverable atomic.Int64
	sendFailures  atomic.Int64
}

func (c *counters) snapshot(cache *FrameCache) Stats {
	return Stats{
		QueuedVideo:             cache.KindLen(video.DATA_TYPE_VIDEO),
		QueuedAudio:             cache.KindLen(video.DATA_TYPE_AUDIO),
		SentVideo:               c.sentVideo.Load(),
		SentAudio:               c.sentAudio.Load(),
		SentMeta:                c.sentMeta.Load(),
		DroppedMalformed:        c.malformed.Load(),
		DroppedOversized:        c.oversized.Load(),
		DroppedUngated:          c.ungated.Load(),
		DroppedNoSequenceHeader: c.noSeqHeader.Load(),
		DroppedStopped:          c.stopped.Load(),
		DroppedUndeliverable:    c.undeliverable.Load(),
		SendFailures:            c.sendFailures.Load(),
	}
}
