package rtmp

import (
	"errors"
	"io"
	"sync"

	cmap "github.com/orcaman/concurrent-map"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"livepush/src/video"
)

var ErrPublisherClosed = errors.New("publisher closed")

// Publisher fans the packets of one ingested stream out to its consumers.
type Publisher struct {
	id          string
	name        string
	reader      streamReader
	parser      video.TagParser
	consumerMap cmap.ConcurrentMap

	// mu orders cache replay on join against live packets
	mu     sync.Mutex
	cache  *PacketCache
	closed bool
	done   chan struct{}
}

// Consumer receives packets of a publisher. Write must not block and must
// not modify the packet.
type Consumer interface {
	video.Writer
	Name() string
	Close()
}

func newPublisher(name string, r streamReader) *Publisher {
	p := &Publisher{
		id:          uuid.NewV4().String(),
		name:        name,
		reader:      r,
		consumerMap: cmap.New(),
		cache:       NewPacketCache(),
		done:        make(chan struct{}),
	}
	return p
}

func (p *Publisher) ID() string {
	return p.id
}

func (p *Publisher) Name() string {
	return p.name
}

// Done is closed when the stream ends.
func (p *Publisher) Done() <-chan struct{} {
	return p.done
}

// AddConsumer replays the cached stream start to each consumer and then
// attaches it to the live stream.
func (p *Publisher) AddConsumer(carr ...Consumer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		for _, c := range carr {
			c.Close()
		}
		return ErrPublisherClosed
	}
	for _, c := range carr {
		if err := p.cache.Send(c); err != nil {
			logrus.Errorf("consumer[%s] replay failed, err: %v", c.Name(), err)
			c.Close()
			continue
		}
		p.consumerMap.Set(c.Name(), c)
	}
	return nil
}

func (p *Publisher) RemoveConsumer(name string) {
	p.consumerMap.Remove(name)
}

func (p *Publisher) ConsumerCount() int {
	return p.consumerMap.Count()
}

// Run reads the stream until it ends and closes every consumer afterwards.
func (p *Publisher) Run() error {
	defer p.close()
	for {
		pkt := &video.Packet{}
		if err := p.reader.Read(pkt); err != nil {
			if err == io.EOF {
				logrus.Infof("publisher[%s] finished", p.name)
				return nil
			}
			logrus.Error("read from rtmp failed, err: ", err)
			return err
		}
		if err := p.parser.Parse(pkt); err != nil {
			logrus.Debugf("publisher[%s] drop packet, err: %v", p.name, err)
			continue
		}
		p.dispatch(pkt)
	}
}

func (p *Publisher) dispatch(pkt *video.Packet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Write(pkt)
	for item := range p.consumerMap.IterBuffered() {
		c := item.Val.(Consumer)
		if err := c.Write(pkt); err != nil {
			logrus.Errorf("consumer[%s] write failed, err: %v", item.Key, err)
			p.consumerMap.Remove(item.Key)
			c.Close()
		}
	}
}

func (p *Publisher) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for item := range p.consumerMap.IterBuffered() {
		item.Val.(Consumer).Close()
		p.consumerMap.Remove(item.Key)
	}
	close(p.done)
}
