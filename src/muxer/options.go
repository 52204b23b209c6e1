package muxer

import (
	"time"

	"livepush/src/codec/aac"
	"livepush/src/utils"
)

const DEFAULT_WAIT_TIMEOUT = 500 * time.Millisecond

type Options struct {
	// StreamName overrides the last path segment of the url.
	StreamName string
	// WaitTimeout bounds how long the worker sleeps on an empty cache.
	WaitTimeout time.Duration

	VideoAllocator *utils.Allocator
	AudioAllocator *utils.Allocator
	Audio          aac.Config
}

func DefaultOptions() Options {
	return Options{
		WaitTimeout:    DEFAULT_WAIT_TIMEOUT,
		VideoAllocator: utils.NewAllocator(utils.VIDEO_ALLOCATION_SIZE, 0, 0),
		AudioAllocator: utils.NewAllocator(utils.AUDIO_ALLOCATION_SIZE, 0, 0),
		Audio:          aac.DefaultConfig(),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = def.WaitTimeout
	}
	if o.VideoAllocator == nil {
		o.VideoAllocator = def.VideoAllocator
	}
	if o.AudioAllocator == nil {
		o.AudioAllocator = def.AudioAllocator
	}
	if o.Audio == (aac.Config{}) {
		o.Audio = def.Audio
	}
	return o
}
