package rtmp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"livepush/src/utils"
)

var (
	ErrNotConnected      = errors.New("rtmp client not connected")
	ErrClientClosed      = errors.New("rtmp client closed")
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	ErrNoApp             = errors.New("rtmp url has no app")
)

// transaction ids of the publish handshake
const (
	TX_CONNECT float64 = iota + 1
	TX_RELEASE_STREAM
	TX_FC_PUBLISH
	TX_CREATE_STREAM
	TX_PUBLISH
	TX_FC_UNPUBLISH
	TX_DELETE_STREAM
)

type ClientOptions struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ChunkSize    uint32
	FlashVer     string
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		DialTimeout:  DEFAULT_DIAL_TIMEOUT,
		WriteTimeout: DEFAULT_WRITE_TIMEOUT,
		ChunkSize:    DEFAULT_OUT_CHUNK_SIZE,
		FlashVer:     FLASH_VER,
	}
}

// Client publishes one stream to an RTMP server.
type Client struct {
	opts ClientOptions

	mu       sync.Mutex
	conn     *connection
	app      string
	tcURL    string
	streamID uint32
	stream   string
	readDone chan struct{}

	// Close reaches a blocked Connect or Publish through these without mu
	pmu       sync.Mutex
	closing   int
	abortDial context.CancelFunc
	pending   net.Conn
}

func NewClient(opts ClientOptions) *Client {
	def := DefaultClientOptions()
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = def.DialTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.ChunkSize == 0 || opts.ChunkSize > MAX_CHUNK_SIZE {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.FlashVer == "" {
		opts.FlashVer = def.FlashVer
	}
	return &Client{opts: opts}
}

// parseURL splits rtmp://host[:port]/app[/...] into the dial address, the
// app and the tcUrl.
func parseURL(rawURL string) (addr, app, tcURL string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", pkgerrors.Wrap(err, "parse rtmp url")
	}
	if u.Scheme != SCHEME {
		return "", "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	app = segs[0]
	if app == "" {
		return "", "", "", ErrNoApp
	}
	addr = u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), DEFAULT_PORT)
	}
	tcURL = u.Scheme + "://" + u.Host + "/" + app
	return addr, app, tcURL, nil
}

// Connect dials the server, runs the handshake and the connect command.
func (c *Client) Connect(rawURL string) (err error) {
	addr, app, tcURL, err := parseURL(rawURL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return errors.New("rtmp client already connected")
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DialTimeout)
	defer cancel()
	if err = c.track(cancel, nil); err != nil {
		return
	}
	defer c.untrack()
	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return pkgerrors.Wrapf(err, "dial %s", addr)
	}
	conn := newConn(netConn)
	defer func() {
		if err != nil {
			conn.Close()
		}
	}()
	if err = netConn.SetDeadline(time.Now().Add(c.opts.DialTimeout)); err != nil {
		return
	}
	if err = c.track(cancel, netConn); err != nil {
		return
	}
	if err = ctx.Err(); err != nil {
		return pkgerrors.Wrapf(err, "dial %s", addr)
	}
	if err = conn.clientHandshake(); err != nil {
		return pkgerrors.Wrap(err, "rtmp handshake")
	}
	conn.writeTimeout = c.opts.WriteTimeout
	if err = conn.setChunkSize(c.opts.ChunkSize); err != nil {
		return
	}

	connInfo := utils.AMFObj{
		"app":      app,
		"type":     "nonprivate",
		"flashVer": c.opts.FlashVer,
		"tcUrl":    tcURL,
	}
	if err = conn.writeAmfMsg(TYPE_ID_CMD_MSG_AMF0, CSID_CMD, 0, CMD_CONNECT, TX_CONNECT, connInfo); err != nil {
		return
	}
	if _, err = waitResult(conn, TX_CONNECT); err != nil {
		return pkgerrors.Wrap(err, "rtmp connect")
	}

	c.conn, c.app, c.tcURL = conn, app, tcURL
	logrus.Debugf("rtmp connected to %s, app: %s", addr, app)
	return nil
}

// Publish creates a stream and starts publishing it under name.
func (c *Client) Publish(name string) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn := c.conn
	if conn == nil {
		return ErrNotConnected
	}
	if err = conn.netConn.SetReadDeadline(time.Now().Add(c.opts.DialTimeout)); err != nil {
		return
	}
	if err = c.track(nil, conn.netConn); err != nil {
		return
	}
	defer c.untrack()
	if err = conn.writeAmfMsg(TYPE_ID_CMD_MSG_AMF0, CSID_CMD, 0, CMD_RELEASE_STREAM, TX_RELEASE_STREAM, nil, name); err != nil {
		return
	}
	if err = conn.writeAmfMsg(TYPE_ID_CMD_MSG_AMF0, CSID_CMD, 0, CMD_FC_PUBLISH, TX_FC_PUBLISH, nil, name); err != nil {
		return
	}
	if err = conn.writeAmfMsg(TYPE_ID_CMD_MSG_AMF0, CSID_CMD, 0, CMD_CREATE_STREAM, TX_CREATE_STREAM, nil); err != nil {
		return
	}
	args, err := waitResult(conn, TX_CREATE_STREAM)
	if err != nil {
		return pkgerrors.Wrap(err, "rtmp createStream")
	}
	var streamID uint32
	for _, v := range args {
		if f, ok := v.(float64); ok {
			streamID = uint32(f)
		}
	}

	if err = conn.writeAmfMsg(TYPE_ID_CMD_MSG_AMF0, CSID_CTRL_STREAM, streamID, CMD_PUBLISH, TX_PUBLISH, nil, name, "live"); err != nil {
		return
	}
	if err = waitPublishStart(conn); err != nil {
		return pkgerrors.Wrapf(err, "rtmp publish %s", name)
	}
	if err = conn.netConn.SetDeadline(time.Time{}); err != nil {
		return
	}

	c.streamID, c.stream = streamID, name
	c.readDone = make(chan struct{})
	go readLoop(conn, c.readDone)
	logrus.Debugf("rtmp publishing %s on stream %d", name, streamID)
	return nil
}

// readCmd reads until match accepts a command, answering control
// messages on the way.
func readCmd(conn *connection, match func(name string, tx float64, args []interface{}) (bool, error)) error {
	for {
		msg, err := conn.readMsg()
		if err != nil {
			return err
		}
		if err = conn.ack(); err != nil {
			return err
		}
		switch msg.typeId {
		case TYPE_ID_CMD_MSG_AMF0, TYPE_ID_CMD_MSG_AMF3:
			name, tx, args, err := decodeCmdMsg(msg)
			if err != nil {
				return err
			}
			done, err := match(name, tx, args)
			if done || err != nil {
				return err
			}
		default:
			conn.handleCtrlMsg(msg)
		}
	}
}

func waitResult(conn *connection, txID float64) (args []interface{}, err error) {
	err = readCmd(conn, func(name string, tx float64, a []interface{}) (bool, error) {
		if tx != txID {
			return false, nil
		}
		switch name {
		case CMD_RESULT:
			args = a
			return true, nil
		case CMD_ERROR:
			return true, fmt.Errorf("server error: %s", statusDescription(a))
		}
		return false, nil
	})
	return
}

func waitPublishStart(conn *connection) error {
	return readCmd(conn, func(name string, tx float64, args []interface{}) (bool, error) {
		switch name {
		case CMD_ONSTATUS:
			info := statusInfo(args)
			if code := info.GetString("code"); code != STATUS_PUBLISH_START {
				return true, fmt.Errorf("publish status %s: %s", code, info.GetString("description"))
			}
			return true, nil
		case CMD_ERROR:
			return true, fmt.Errorf("server error: %s", statusDescription(args))
		}
		return false, nil
	})
}

func statusInfo(args []interface{}) utils.AMFObj {
	for _, v := range args {
		if obj, ok := utils.ToAMFObj(v); ok {
			if _, hasCode := obj["code"]; hasCode {
				return obj
			}
		}
	}
	return utils.AMFObj{}
}

func statusDescription(args []interface{}) string {
	info := statusInfo(args)
	if d := info.GetString("description"); d != "" {
		return d
	}
	return info.GetString("code")
}

// readLoop keeps answering server control messages while publishing.
func readLoop(conn *connection, done chan struct{}) {
	defer close(done)
	defer utils.HandlePanic(func(err error) {
		logrus.Error("rtmp client read loop panic, err: ", err)
	})
	err := readCmd(conn, func(name string, tx float64, args []interface{}) (bool, error) {
		if name == CMD_ONSTATUS {
			info := statusInfo(args)
			if info.GetString("level") == "error" {
				logrus.Warningf("rtmp server status %s: %s", info.GetString("code"), info.GetString("description"))
			}
		}
		return false, nil
	})
	logrus.Debug("rtmp client read loop exit, err: ", err)
}

func (c *Client) current() (*connection, uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, 0, ErrNotConnected
	}
	return c.conn, c.streamID, nil
}

func (c *Client) send(typeId byte, csid uint32, data []byte, dts uint32) error {
	conn, streamID, err := c.current()
	if err != nil {
		return err
	}
	ch := newChunk(typeId, csid, streamID, data)
	ch.timestamp = dts
	return conn.writeChunk(ch)
}

func (c *Client) SendVideo(data []byte, dts uint32) error {
	return c.send(TYPE_ID_VIDEO_MSG, CSID_VIDEO, data, dts)
}

func (c *Client) SendAudio(data []byte, dts uint32) error {
	return c.send(TYPE_ID_AUDIO_MSG, CSID_AUDIO, data, dts)
}

// SendMetadata sends an onMetaData body as @setDataFrame.
func (c *Client) SendMetadata(data []byte, dts uint32) error {
	bs, err := utils.GetAMFHandler().MetaDataReform(data, utils.META_DATA_REFORM_FLAG_ADD)
	if err != nil {
		return pkgerrors.Wrap(err, "reform metadata")
	}
	return c.send(TYPE_ID_DATA_MSG_AMF0, CSID_AUTO, bs, dts)
}

// track registers what Close must interrupt. It fails once Close has
// started.
func (c *Client) track(cancel context.CancelFunc, netConn net.Conn) error {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	if c.closing > 0 {
		return ErrClientClosed
	}
	c.abortDial, c.pending = cancel, netConn
	return nil
}

func (c *Client) untrack() {
	c.pmu.Lock()
	c.abortDial, c.pending = nil, nil
	c.pmu.Unlock()
}

// interrupt cancels a dial and fails blocked io on a handshaking socket.
func (c *Client) interrupt(on bool) {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	if !on {
		c.closing--
		return
	}
	c.closing++
	if c.abortDial != nil {
		c.abortDial()
	}
	if c.pending != nil {
		c.pending.SetDeadline(time.Unix(1, 0))
	}
}

// Close unpublishes and closes the socket. It is safe to call at any time,
// more than once, and while Connect or Publish is in progress, which then
// fail promptly.
func (c *Client) Close() error {
	c.interrupt(true)
	defer c.interrupt(false)
	c.mu.Lock()
	conn, streamID, stream, readDone := c.conn, c.streamID, c.stream, c.readDone
	c.conn, c.streamID, c.stream, c.readDone = nil, 0, "", nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	if readDone != nil {
		if err := conn.writeAmfMsg(TYPE_ID_CMD_MSG_AMF0, CSID_CMD, 0, CMD_FC_UNPUBLISH, TX_FC_UNPUBLISH, nil, stream); err != nil {
			logrus.Debug("send FCUnpublish failed, err: ", err)
		} else if err = conn.writeAmfMsg(TYPE_ID_CMD_MSG_AMF0, CSID_CMD, 0, CMD_DELETE_STREAM, TX_DELETE_STREAM, nil, float64(streamID)); err != nil {
			logrus.Debug("send deleteStream failed, err: ", err)
		}
	}
	conn.Close()
	if readDone != nil {
		<-readDone
	}
	return nil
}
