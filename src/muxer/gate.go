package muxer

import "livepush/src/video"

// keyframeGate holds back video until the first keyframe of a session. Once
// open it stays open until reset.
type keyframeGate struct {
	open bool
}

func (g *keyframeGate) Pass(t *video.Tag) bool {
	if !t.IsVideo() || g.open {
		return true
	}
	if t.IsKeyFrame() {
		g.open = true
		return true
	}
	return false
}

func (g *keyframeGate) Reset() {
	g.open = false
}
