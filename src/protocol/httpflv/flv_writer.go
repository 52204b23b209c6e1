package httpflv

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"livepush/src/protocol/rtmp"
	"livepush/src/utils"
	"livepush/src/video"
)

const MAX_QUEUE_LEN = 1 << 10

var ErrWriterClosed = errors.New("flv writer closed")

var _ rtmp.Consumer = &FLVWriter{}

// setDataFrame is "@setDataFrame" as an AMF0 string.
var setDataFrame = append([]byte{0x02, 0x00, byte(len(rtmp.SET_DATA_FRAME))}, rtmp.SET_DATA_FRAME...)

// FLVWriter streams a publisher as FLV to one playback client. Packets are
// queued by the publisher and written by one goroutine.
type FLVWriter struct {
	name        string
	packetQueue chan *video.Packet
	stopChan    chan struct{}
	exited      chan struct{}
	closeOnce   sync.Once
	w           io.Writer
	tw          *tagWriter
	dropped     atomic.Int64
}

func NewFLVWriter(w io.Writer) *FLVWriter {
	fw := &FLVWriter{
		name:        "http_flv_writer_" + uuid.NewV4().String(),
		packetQueue: make(chan *video.Packet, MAX_QUEUE_LEN),
		stopChan:    make(chan struct{}),
		exited:      make(chan struct{}),
		w:           w,
		tw:          newTagWriter(w),
	}
	go func() {
		defer close(fw.exited)
		if err := fw.sendPacket(); err != nil {
			logrus.Debugf("[%s] send packet err: %v", fw.name, err)
		}
		fw.Close()
	}()
	return fw
}

func (fw *FLVWriter) Name() string {
	return fw.name
}

func (fw *FLVWriter) Close() {
	fw.closeOnce.Do(func() {
		logrus.Debugf("[%s] flv writer closed, dropped %d", fw.name, fw.dropped.Load())
		close(fw.stopChan)
	})
}

// Wait blocks until the writer stopped touching the underlying writer.
func (fw *FLVWriter) Wait() {
	<-fw.exited
}

// Done is closed once the writer is closed, by Close or a write error.
func (fw *FLVWriter) Done() <-chan struct{} {
	return fw.stopChan
}

func (fw *FLVWriter) Dropped() int64 {
	return fw.dropped.Load()
}

// Write queues p without blocking. A full queue drops the packet.
func (fw *FLVWriter) Write(p *video.Packet) error {
	select {
	case <-fw.stopChan:
		return ErrWriterClosed
	default:
	}
	select {
	case fw.packetQueue <- p:
	default:
		if fw.dropped.Add(1) == 1 {
			logrus.Warningf("[%v] packet queue max!!!", fw.Name())
		}
	}
	return nil
}

func (fw *FLVWriter) sendPacket() error {
	if err := fw.tw.writeHeader(); err != nil {
		return err
	}
	fw.flush()
	for {
		select {
		case <-fw.stopChan:
			return nil
		case p := <-fw.packetQueue:
			data := p.Data
			if p.DataType == video.DATA_TYPE_META && bytes.HasPrefix(data, setDataFrame) {
				var err error
				if data, err = utils.GetAMFHandler().MetaDataReform(data, utils.META_DATA_REFORM_FLAG_DEL); err != nil {
					return err
				}
			}
			if err := fw.tw.writeTag(tagTypeOf(p.DataType), data, p.Timestamp); err != nil {
				return err
			}
			fw.flush()
		}
	}
}

func (fw *FLVWriter) flush() {
	if f, ok := fw.w.(http.Flusher); ok {
		f.Flush()
	}
}
