package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"livepush/src/muxer"
	"livepush/src/protocol/httpflv"
	"livepush/src/protocol/rtmp"
	"livepush/src/source"
)

const (
	DRAIN_TIMEOUT = 5 * time.Second
	DRAIN_TICK    = 50 * time.Millisecond
)

type pushOptions struct {
	video    string
	audio    string
	fps      float64
	stream   string
	realtime bool
}

func NewPushCommand() *cobra.Command {
	opts := &pushOptions{}
	cmd := &cobra.Command{
		Use:   "push <rtmp-url|file.flv>",
		Short: "Publish an .h264 and/or .aac file",
		Example: `  livepush push rtmp://127.0.0.1/live/cam --video in.h264 --audio in.aac
  livepush push out/cam.flv --video in.h264`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd.Context(), args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.video, "video", "", "H.264 Annex-B elementary stream file")
	flags.StringVar(&opts.audio, "audio", "", "AAC ADTS file")
	flags.Float64Var(&opts.fps, "fps", 0, "video frame rate (default push.fps)")
	flags.StringVar(&opts.stream, "stream", "", "stream name (default muxer.stream_name or the last url segment)")
	flags.BoolVar(&opts.realtime, "realtime", true, "pace samples at their timestamps")
	return cmd
}

// newConnection picks the receiver for target: an RTMP client for rtmp://
// urls, an FLV file otherwise.
func newConnection(target string) (muxer.Connection, string) {
	if strings.HasPrefix(strings.ToLower(target), rtmp.SCHEME+"://") {
		return rtmp.NewClient(conf.ClientOptions()), ""
	}
	path, err := httpflv.FilePath(target)
	if err != nil {
		path = target
	}
	return httpflv.NewFileConnection(), strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func runPush(ctx context.Context, target string, opts *pushOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fps := opts.fps
	if fps <= 0 {
		fps = conf.Push.FPS
	}
	src, err := source.Open(source.Options{
		VideoPath: opts.video,
		AudioPath: opts.audio,
		FPS:       fps,
		Realtime:  opts.realtime,
	})
	if err != nil {
		return err
	}

	conn, fileStream := newConnection(target)
	mopts := conf.MuxerOptions()
	if opts.stream != "" {
		mopts.StreamName = opts.stream
	} else if mopts.StreamName == "" {
		mopts.StreamName = fileStream
	}
	if src.AudioFrames() > 0 {
		mopts.Audio = src.AudioConfig()
	}

	connected := make(chan error, 1)
	disconnected := make(chan struct{})
	m := muxer.NewMuxer(conn, muxer.ObserverFuncs{
		ConnectSuccess: func() { connected <- nil },
		ConnectFailure: func(err error) { connected <- err },
		Disconnect:     func() { close(disconnected) },
	}, mopts)
	if err = m.Start(target); err != nil {
		return err
	}
	defer func() {
		if err := m.Stop(); err != nil {
			return
		}
		<-disconnected
		st := m.Stats()
		logrus.Infof("push finished, sent video %d audio %d meta %d, send failures %d",
			st.SentVideo, st.SentAudio, st.SentMeta, st.SendFailures)
	}()

	select {
	case err = <-connected:
		if err != nil {
			return errors.Wrapf(err, "connect %s", target)
		}
	case <-ctx.Done():
		return nil
	}
	logrus.Infof("publishing to %s, session %s", target, m.SessionID())

	if err = src.Run(ctx, m); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if ctx.Err() == nil {
		waitDrained(ctx, m)
	}
	return nil
}

// waitDrained gives the worker a bounded time to flush queued tags. The
// cache is drained once it is empty and nothing was sent during a tick.
func waitDrained(ctx context.Context, m *muxer.Muxer) {
	deadline := time.NewTimer(DRAIN_TIMEOUT)
	defer deadline.Stop()
	tick := time.NewTicker(DRAIN_TICK)
	defer tick.Stop()
	last := int64(-1)
	for {
		st := m.Stats()
		queued := st.QueuedVideo + st.QueuedAudio
		handled := st.SentVideo + st.SentAudio + st.SentMeta + st.SendFailures + st.DroppedUndeliverable
		if queued == 0 && handled == last {
			return
		}
		last = handled
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			logrus.Warningf("stopping with %d tags queued", queued)
			return
		case <-tick.C:
		}
	}
}
