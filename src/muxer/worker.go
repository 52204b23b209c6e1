package muxer

import (
	"time"

	"github.com/sirupsen/logrus"

	"livepush/src/utils"
	"livepush/src/video"
)

func (m *Muxer) run(rawURL, stream string, stopCh chan struct{}, log *logrus.Entry) {
	defer m.worker.Done()
	defer utils.HandlePanic(func(err error) {
		log.Error("muxer worker panic, err: ", err)
	})

	// the previous session must be fully closed before reconnecting
	m.disconn.Wait()
	select {
	case <-stopCh:
		return
	default:
	}

	if err := m.connect(rawURL, stream); err != nil {
		log.Error("connect failed, err: ", err)
		m.mu.Lock()
		failed := m.state == StateConnecting
		if failed {
			dropped := m.cache.Clear()
			m.resetCodecs()
			m.state = StateIdle
			log.WithField("dropped", dropped).Info("muxer idle after connect failure")
		}
		m.mu.Unlock()
		if cerr := m.conn.Close(); cerr != nil {
			log.Debug("close after connect failure, err: ", cerr)
		}
		if failed {
			m.events.post(func() { m.observer.OnConnectFailure(err) })
		}
		return
	}

	m.mu.Lock()
	if m.state != StateConnecting {
		m.mu.Unlock()
		return
	}
	m.state = StateStreaming
	m.mu.Unlock()

	log.Info("connected, streaming")
	m.events.post(m.observer.OnConnectSuccess)
	m.deliverLoop(stopCh, log)
}

func (m *Muxer) connect(rawURL, stream string) error {
	if err := m.conn.Connect(rawURL); err != nil {
		return err
	}
	return m.conn.Publish(stream)
}

// deliverLoop sends queued tags in order until stopCh closes.
func (m *Muxer) deliverLoop(stopCh chan struct{}, log *logrus.Entry) {
	timer := time.NewTimer(m.opts.WaitTimeout)
	defer timer.Stop()

	var (
		batch   []*video.Tag
		headers [video.DATA_TYPE_META + 1]bool
	)
	for {
		batch = m.cache.Drain(batch[:0])
		for i, tag := range batch {
			select {
			case <-stopCh:
				for _, t := range batch[i:] {
					t.Release()
				}
				return
			default:
			}
			m.deliver(tag, &headers, log)
			tag.Release()
			batch[i] = nil
		}
		if len(batch) > 0 {
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.opts.WaitTimeout)
		select {
		case <-stopCh:
			return
		case <-m.cache.Notify():
		case <-timer.C:
		}
	}
}

// deliver sends one tag. A data tag only goes out once a sequence header of
// its kind was sent this session.
func (m *Muxer) deliver(tag *video.Tag, headers *[video.DATA_TYPE_META + 1]bool, log *logrus.Entry) {
	dts := uint32(tag.Timestamp)
	var err error
	switch tag.Kind {
	case video.DATA_TYPE_VIDEO, video.DATA_TYPE_AUDIO:
		if tag.IsSequenceHeader() {
			headers[tag.Kind] = true
		} else if !headers[tag.Kind] {
			m.counters.undeliverable.Add(1)
			return
		}
		if tag.IsVideo() {
			if err = m.conn.SendVideo(tag.Bytes(), dts); err == nil {
				m.counters.sentVideo.Add(1)
			}
		} else {
			if err = m.conn.SendAudio(tag.Bytes(), dts); err == nil {
				m.counters.sentAudio.Add(1)
			}
		}
	case video.DATA_TYPE_META:
		mw, ok := m.conn.(MetadataWriter)
		if !ok {
			m.counters.undeliverable.Add(1)
			return
		}
		if err = mw.SendMetadata(tag.Bytes(), dts); err == nil {
			m.counters.sentMeta.Add(1)
		}
	}
	if err != nil {
		m.counters.sendFailures.Add(1)
		log.WithField("kind", tag.Kind.String()).Error("send failed, err: ", err)
	}
}
