package rtmp

import (
	"errors"
	"io"
	"net"
	"runtime/debug"
	"sync"

	cmap "github.com/orcaman/concurrent-map"
	pkgerrors "github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"livepush/src/utils"
)

var ErrServerClosed = errors.New("rtmp server closed")

// Server accepts RTMP publishers and exposes them by "app/name".
type Server struct {
	addr       string
	publishers cmap.ConcurrentMap
	conns      cmap.ConcurrentMap

	mu     sync.Mutex
	lis    net.Listener
	closed bool
	wg     sync.WaitGroup
}

func NewServer(addr string) *Server {
	return &Server{
		addr:       addr,
		publishers: cmap.New(),
		conns:      cmap.New(),
	}
}

func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return pkgerrors.Wrapf(err, "listen %s", s.addr)
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Close.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		lis.Close()
		return ErrServerClosed
	}
	s.lis = lis
	s.mu.Unlock()
	logrus.Info("rtmp server listening on ", lis.Addr())

	for {
		netConn, err := lis.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				logrus.Warning("listener accept failed, err: ", err)
				continue
			}
			return pkgerrors.Wrap(err, "accept")
		}
		conn := newConn(netConn)
		conn.server = s
		id := uuid.NewV4().String()

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			netConn.Close()
			return nil
		}
		s.wg.Add(1)
		s.conns.Set(id, conn)
		s.mu.Unlock()
		go s.handleConn(id, conn)
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Addr is the listening address, nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// Close stops accepting, drops every connection and waits for their
// goroutines.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	lis := s.lis
	s.mu.Unlock()

	var err error
	if lis != nil {
		err = lis.Close()
	}
	for item := range s.conns.IterBuffered() {
		item.Val.(*connection).Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) GetPublisher(name string) *Publisher {
	if v, ok := s.publishers.Get(name); ok {
		return v.(*Publisher)
	}
	return nil
}

func (s *Server) addPublisher(p *Publisher) bool {
	return s.publishers.SetIfAbsent(p.name, p)
}

func (s *Server) removePublisher(p *Publisher) {
	if cur := s.GetPublisher(p.name); cur == p {
		s.publishers.Remove(p.name)
	}
}

func (s *Server) handleConn(id string, conn *connection) {
	defer s.wg.Done()
	defer s.conns.Remove(id)
	defer utils.HandlePanic(func(err error) {
		if errors.Is(err, io.EOF) || s.isClosed() {
			logrus.Debug("rtmp conn closed, err: ", err)
			return
		}
		logrus.Error("rtmp conn panic, err: ", err)
		logrus.Debug(string(debug.Stack()))
	})
	defer conn.Close()

	utils.CheckErr(conn.serverHandshake())

	for !conn.done {
		msg, err := conn.readMsg()
		utils.CheckErr(err)

		conn.handleCtrlMsg(msg)
		utils.CheckErr(conn.ack())

		switch msg.typeId {
		case TYPE_ID_CMD_MSG_AMF0, TYPE_ID_CMD_MSG_AMF3:
			utils.CheckErr(conn.handleCmdMsg(msg))
		}
	}

	pub := conn.publisher.Load()
	logrus.Infof("publisher[%s] started, id: %s", pub.name, pub.id)
	utils.CheckErr(pub.Run())
}
