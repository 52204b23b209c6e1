package source

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"livepush/src/codec/aac"
)

const (
	DEFAULT_FPS       = 30
	SAMPLES_PER_FRAME = 1024
	MICROS_PER_SECOND = int64(time.Second / time.Microsecond)
)

var ErrNoMedia = errors.New("no video or audio file")

// Sink takes encoder output, as the muxer does.
type Sink interface {
	SendVideo(data []byte, size int, ptsUs int64) error
	SendAudio(data []byte, size int, ptsUs int64) error
}

type Options struct {
	VideoPath string
	AudioPath string
	FPS       float64
	// Realtime paces samples at their presentation time.
	Realtime bool
}

// FileSource replays an Annex-B .h264 file and an ADTS .aac file as if
// they came from encoders.
type FileSource struct {
	opts       Options
	units      [][]byte
	frames     [][]byte
	audio      aac.Config
	sampleRate int
}

func Open(opts Options) (*FileSource, error) {
	if opts.VideoPath == "" && opts.AudioPath == "" {
		return nil, ErrNoMedia
	}
	if opts.FPS <= 0 {
		opts.FPS = DEFAULT_FPS
	}
	s := &FileSource{opts: opts, audio: aac.DefaultConfig()}

	if opts.VideoPath != "" {
		buf, err := os.ReadFile(opts.VideoPath)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "read video file")
		}
		if s.units, err = SplitAccessUnits(buf); err != nil {
			return nil, pkgerrors.Wrapf(err, "parse %s", opts.VideoPath)
		}
	}
	if opts.AudioPath != "" {
		buf, err := os.ReadFile(opts.AudioPath)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "read audio file")
		}
		if err = s.loadADTS(buf); err != nil {
			return nil, pkgerrors.Wrapf(err, "parse %s", opts.AudioPath)
		}
	}
	logrus.Infof("source loaded, %d access units, %d aac frames", len(s.units), len(s.frames))
	return s, nil
}

// SplitAccessUnits cuts an Annex-B stream into access units, each holding
// the NAL units before it and every slice of one coded picture, re-framed
// with 4 byte start codes. A picture ends at the next slice with
// first_mb_in_slice 0 or at an AUD, SEI or parameter set following a slice.
func SplitAccessUnits(buf []byte) ([][]byte, error) {
	var nalus h264.AnnexB
	if err := nalus.Unmarshal(buf); err != nil {
		return nil, err
	}
	var (
		units    [][]byte
		cur      []byte
		hasSlice bool
	)
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		switch h264.NALUType(nalu[0] & 0x1f) {
		case h264.NALUTypeIDR, h264.NALUTypeNonIDR:
			if hasSlice && firstSliceOfPicture(nalu) {
				units = append(units, cur)
				cur = nil
			}
			hasSlice = true
		case h264.NALUTypeAccessUnitDelimiter, h264.NALUTypeSEI, h264.NALUTypeSPS, h264.NALUTypePPS:
			if hasSlice {
				units = append(units, cur)
				cur, hasSlice = nil, false
			}
		}
		cur = append(cur, 0, 0, 0, 1)
		cur = append(cur, nalu...)
	}
	if hasSlice {
		units = append(units, cur)
	}
	return units, nil
}

// firstSliceOfPicture reports whether first_mb_in_slice, the leading ue(v)
// of the slice header, is 0, i.e. its first bit is set.
func firstSliceOfPicture(nalu []byte) bool {
	return len(nalu) > 1 && nalu[1]&0x80 != 0
}

func (s *FileSource) loadADTS(buf []byte) error {
	var pkts mpeg4audio.ADTSPackets
	if err := pkts.Unmarshal(buf); err != nil {
		return err
	}
	if len(pkts) == 0 {
		return nil
	}
	first := pkts[0]
	idx, ok := aac.SampleRateIndex(first.SampleRate)
	if !ok {
		return pkgerrors.Errorf("unsupported sample rate %d", first.SampleRate)
	}
	s.sampleRate = first.SampleRate
	s.audio = aac.Config{
		ObjectType:      uint8(first.Type),
		SampleRateIndex: idx,
		Channels:        uint8(first.ChannelCount),
	}
	for _, p := range pkts {
		s.frames = append(s.frames, p.AU)
	}
	return nil
}

// AudioConfig describes the audio file, for the muxer options.
func (s *FileSource) AudioConfig() aac.Config {
	return s.audio
}

func (s *FileSource) AccessUnits() int {
	return len(s.units)
}

func (s *FileSource) AudioFrames() int {
	return len(s.frames)
}

// Run feeds sink until both files are exhausted or ctx ends. Audio starts
// with a synthesized AudioSpecificConfig sample.
func (s *FileSource) Run(ctx context.Context, sink Sink) error {
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	if len(s.units) > 0 {
		g.Go(func() error {
			frameUs := float64(MICROS_PER_SECOND) / s.opts.FPS
			for i, au := range s.units {
				pts := int64(float64(i) * frameUs)
				if err := s.wait(ctx, start, pts); err != nil {
					return err
				}
				if err := sink.SendVideo(au, len(au), pts); err != nil {
					return pkgerrors.Wrap(err, "send video")
				}
			}
			return nil
		})
	}
	if len(s.frames) > 0 {
		g.Go(func() error {
			asc, err := mpeg4audio.AudioSpecificConfig{
				Type:         mpeg4audio.ObjectType(s.audio.ObjectType),
				SampleRate:   s.sampleRate,
				ChannelCount: int(s.audio.Channels),
			}.Marshal()
			if err != nil {
				return pkgerrors.Wrap(err, "marshal audio config")
			}
			if err = sink.SendAudio(asc, len(asc), 0); err != nil {
				return pkgerrors.Wrap(err, "send audio config")
			}
			for i, frame := range s.frames {
				pts := int64(i) * SAMPLES_PER_FRAME * MICROS_PER_SECOND / int64(s.sampleRate)
				if err = s.wait(ctx, start, pts); err != nil {
					return err
				}
				if err = sink.SendAudio(frame, len(frame), pts); err != nil {
					return pkgerrors.Wrap(err, "send audio")
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *FileSource) wait(ctx context.Context, start time.Time, ptsUs int64) error {
	if !s.opts.Realtime {
		return ctx.Err()
	}
	d := time.Until(start.Add(time.Duration(ptsUs) * time.Microsecond))
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
