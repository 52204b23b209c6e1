package rtmp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"livepush/src/utils"
)

const (
	RTMP_VERSION       = 3
	HANDSHAKE_SIZE     = 1536
	HANDSHAKE_RAND_LEN = HANDSHAKE_SIZE - 8
)

var ErrHandshakeMismatch = errors.New("C2 info not match")

// handshake keeps what each side sent during the simple handshake.
type handshake struct {
	version  byte
	timeC1   uint32
	randomC1 []byte
	timeS1   uint32
	randomS1 []byte
	timeC2   uint32
	randomC2 []byte
}

// newHandshakeBlock builds a C1/S1 block: time, four zero bytes, random.
func newHandshakeBlock(ts uint32) ([]byte, []byte) {
	block := make([]byte, HANDSHAKE_SIZE)
	binary.BigEndian.PutUint32(block[:4], ts)
	random := utils.RandBytes(HANDSHAKE_RAND_LEN)
	copy(block[8:], random)
	return block, random
}

func handshakeTime() uint32 {
	return uint32(time.Now().Unix())
}

// serverHandshake reads C0C1, answers S0S1S2 and checks that C2 echoes S1.
func (c *connection) serverHandshake() (err error) {
	c0c1 := make([]byte, HANDSHAKE_SIZE+1)
	if _, err = io.ReadFull(c.rw, c0c1); err != nil {
		return
	}
	c.handshaker.version = c0c1[0]
	c.handshaker.timeC1 = binary.BigEndian.Uint32(c0c1[1:5])
	c.handshaker.randomC1 = c0c1[9:]

	buf := bytes.NewBuffer(make([]byte, 0, 2*HANDSHAKE_SIZE+1))
	buf.WriteByte(RTMP_VERSION)

	c.handshaker.timeS1 = handshakeTime()
	s1, randS1 := newHandshakeBlock(c.handshaker.timeS1)
	c.handshaker.randomS1 = randS1
	buf.Write(s1)

	// S2 echoes C1
	s2 := make([]byte, HANDSHAKE_SIZE)
	copy(s2, c0c1[1:])
	binary.BigEndian.PutUint32(s2[4:8], handshakeTime())
	buf.Write(s2)

	if _, err = buf.WriteTo(c.rw); err != nil {
		return
	}
	if err = c.rw.Flush(); err != nil {
		return
	}

	c2 := make([]byte, HANDSHAKE_SIZE)
	if _, err = io.ReadFull(c.rw, c2); err != nil {
		return
	}
	c.handshaker.timeC2 = binary.BigEndian.Uint32(c2[:4])
	c.handshaker.randomC2 = c2[8:]

	timeC2Match := c.handshaker.timeC2 == c.handshaker.timeS1
	randC2Match := bytes.Equal(c.handshaker.randomC2, c.handshaker.randomS1)
	if !(timeC2Match && randC2Match) {
		return ErrHandshakeMismatch
	}
	return
}

// clientHandshake sends C0C1, reads S0S1S2 and answers with C2, an echo of
// S1.
func (c *connection) clientHandshake() (err error) {
	c.handshaker.version = RTMP_VERSION
	c.handshaker.timeC1 = handshakeTime()
	c1, randC1 := newHandshakeBlock(c.handshaker.timeC1)
	c.handshaker.randomC1 = randC1

	if err = c.rw.WriteByte(RTMP_VERSION); err != nil {
		return
	}
	if _, err = c.rw.Write(c1); err != nil {
		return
	}
	if err = c.rw.Flush(); err != nil {
		return
	}

	s0s1s2 := make([]byte, 2*HANDSHAKE_SIZE+1)
	if _, err = io.ReadFull(c.rw, s0s1s2); err != nil {
		return
	}
	if s0s1s2[0] != RTMP_VERSION {
		return errors.New("unsupported rtmp version")
	}
	s1 := s0s1s2[1 : 1+HANDSHAKE_SIZE]
	c.handshaker.timeS1 = binary.BigEndian.Uint32(s1[:4])
	c.handshaker.randomS1 = s1[8:]

	if _, err = c.rw.Write(s1); err != nil {
		return
	}
	return c.rw.Flush()
}
