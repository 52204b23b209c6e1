package muxer

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"sync"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"livepush/src/codec/aac"
	"livepush/src/codec/avc"
	"livepush/src/video"
)

var (
	ErrNotStarted     = errors.New("muxer not started")
	ErrAlreadyStarted = errors.New("muxer already started")
	ErrNoStreamName   = errors.New("no stream name")
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Muxer turns encoder output into FLV tags and publishes them through a
// Connection from one background worker per session. SendVideo and
// SendAudio may be called from any goroutine between Start and Stop.
type Muxer struct {
	conn     Connection
	observer Observer
	opts     Options

	// mu guards state. Producers hold the read lock for a whole submit so
	// nothing is enqueued once Stop has flipped the state.
	mu        sync.RWMutex
	state     State
	sessionID string
	stopCh    chan struct{}
	log       *logrus.Entry

	videoMu sync.Mutex
	avc     *avc.Packetizer
	gate    keyframeGate
	width   int
	height  int

	audioMu sync.Mutex
	aac     *aac.Packetizer

	cache    *FrameCache
	worker   sync.WaitGroup
	disconn  sync.WaitGroup
	events   notifier
	counters counters
}

func NewMuxer(conn Connection, observer Observer, opts Options) *Muxer {
	if observer == nil {
		observer = ObserverFuncs{}
	}
	opts = opts.withDefaults()
	return &Muxer{
		conn:     conn,
		observer: observer,
		opts:     opts,
		avc:      avc.NewPacketizer(opts.VideoAllocator),
		aac:      aac.NewPacketizer(opts.AudioAllocator, opts.Audio),
		cache:    NewFrameCache(),
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}
}

// StreamName resolves the name to publish under: the configured one or the
// last path segment of rawURL.
func StreamName(rawURL, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	dir, name := path.Split(path.Clean("/" + u.Path))
	// a single segment is the app, not the stream
	if name == "" || dir == "/" {
		return "", ErrNoStreamName
	}
	return name, nil
}

// Start begins a session. Connecting happens on the worker goroutine and
// its outcome is reported through the Observer.
func (m *Muxer) Start(rawURL string) error {
	stream, err := StreamName(rawURL, m.opts.StreamName)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return ErrAlreadyStarted
	}
	m.state = StateConnecting
	m.sessionID = uuid.NewV4().String()
	m.stopCh = make(chan struct{})
	m.log = logrus.WithFields(logrus.Fields{
		"session": m.sessionID,
		"url":     rawURL,
	})
	m.log.Info("muxer starting")

	m.worker.Add(1)
	go m.run(rawURL, stream, m.stopCh, m.log)
	return nil
}

// Stop drops every queued tag, joins the worker and disconnects in the
// background. Stopping an idle muxer returns ErrNotStarted.
func (m *Muxer) Stop() error {
	m.mu.Lock()
	if m.state != StateConnecting && m.state != StateStreaming {
		m.mu.Unlock()
		return ErrNotStarted
	}
	connecting := m.state == StateConnecting
	m.state = StateStopping
	stopCh, log := m.stopCh, m.log
	m.mu.Unlock()

	dropped := m.cache.Clear()
	close(stopCh)
	if connecting {
		// aborts a dial or handshake the worker is blocked in
		if err := m.conn.Close(); err != nil {
			log.Debug("close while connecting, err: ", err)
		}
	}
	m.worker.Wait()
	dropped += m.cache.Clear()
	m.resetCodecs()

	// registered before going idle so the next session's worker waits for it
	m.disconn.Add(1)
	m.mu.Lock()
	m.state = StateIdle
	m.mu.Unlock()
	log.WithField("dropped", dropped).Info("muxer stopped")

	go m.disconnect(log)
	return nil
}

func (m *Muxer) disconnect(log *logrus.Entry) {
	defer m.disconn.Done()
	if err := m.conn.Close(); err != nil {
		log.Warning("close connection failed, err: ", err)
	}
	m.events.post(m.observer.OnDisconnect)
}

func (m *Muxer) resetCodecs() {
	m.videoMu.Lock()
	m.avc.Reset()
	m.gate.Reset()
	m.videoMu.Unlock()

	m.audioMu.Lock()
	m.aac.Reset()
	m.audioMu.Unlock()
}

func (m *Muxer) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SessionID identifies the current or last session.
func (m *Muxer) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

func (m *Muxer) Stats() Stats {
	return m.counters.snapshot(m.cache)
}

// SetVideoResolution overrides the picture size reported in onMetaData.
func (m *Muxer) SetVideoResolution(width, height int) {
	m.videoMu.Lock()
	m.width, m.height = width, height
	m.videoMu.Unlock()
}

func (m *Muxer) accepting() bool {
	return m.state == StateConnecting || m.state == StateStreaming
}

// SendVideo submits one H.264 Annex-B access unit. Malformed, oversized and
// premature samples are dropped and counted in Stats, not reported as
// errors.
func (m *Muxer) SendVideo(data []byte, size int, ptsUs int64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.accepting() {
		m.counters.stopped.Add(1)
		return ErrNotStarted
	}

	m.videoMu.Lock()
	defer m.videoMu.Unlock()
	tags, err := m.avc.Packetize(data, size, ptsUs)
	switch {
	case errors.Is(err, avc.ErrAnnexBNotMatch):
		m.counters.malformed.Add(1)
		return nil
	case errors.Is(err, avc.ErrOversized):
		m.counters.oversized.Add(1)
		return nil
	case errors.Is(err, avc.ErrNoSequenceHeader):
		m.counters.noSeqHeader.Add(1)
		return nil
	case errors.Is(err, avc.ErrNoSlice):
		return nil
	case err != nil:
		m.log.Warning("packetize video failed, err: ", err)
		return err
	}

	if tags[0].IsSequenceHeader() {
		m.enqueueMetadata(tags[0].Timestamp)
	}
	for _, t := range tags {
		if !m.gate.Pass(t) {
			t.Release()
			m.counters.ungated.Add(1)
			continue
		}
		m.cache.Enqueue(t)
	}
	return nil
}

// enqueueMetadata queues onMetaData ahead of a video sequence header. Must
// hold videoMu.
func (m *Muxer) enqueueMetadata(dts int64) {
	md := audioMetadata(m.aac.Config())
	md.Width, md.Height = m.width, m.height
	if info, err := avc.ParseSPS(m.avc.State().SPS()); err != nil {
		m.log.Debug("parse sps failed, err: ", err)
	} else {
		if md.Width == 0 || md.Height == 0 {
			md.Width, md.Height = info.Width, info.Height
		}
		md.FrameRate = info.FPS
	}
	body, err := EncodeMetadata(md)
	if err != nil {
		m.log.Warning("encode metadata failed, err: ", err)
		return
	}
	tag, err := video.NewMetaTag(m.opts.VideoAllocator, body, dts)
	if err != nil {
		m.log.Warning("allocate metadata failed, err: ", err)
		return
	}
	m.cache.Enqueue(tag)
}

// SendAudio submits one AAC encoder output. The first sample of a session
// is taken as the codec configuration.
func (m *Muxer) SendAudio(data []byte, size int, ptsUs int64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.accepting() {
		m.counters.stopped.Add(1)
		return ErrNotStarted
	}

	m.audioMu.Lock()
	defer m.audioMu.Unlock()
	tag, err := m.aac.Packetize(data, size, ptsUs)
	switch {
	case errors.Is(err, aac.ErrEmptySample):
		m.counters.malformed.Add(1)
		return nil
	case errors.Is(err, aac.ErrOversized):
		m.counters.oversized.Add(1)
		return nil
	case err != nil:
		m.log.Warning("packetize audio failed, err: ", err)
		return err
	}
	m.cache.Enqueue(tag)
	return nil
}
