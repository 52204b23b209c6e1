package utils

import (
	"bufio"
	"encoding/binary"
	"io"
)

const (
	BUF_SIZE = 1 << 12
)

type ReadWriter struct {
	*bufio.ReadWriter
	rbuf [4]byte
}

func NewReadWriter(rw io.ReadWriter) *ReadWriter {
	return &ReadWriter{
		ReadWriter: bufio.NewReadWriter(
			bufio.NewReaderSize(rw, BUF_SIZE),
			bufio.NewWriterSize(rw, BUF_SIZE)),
	}
}

// ReadUint32BE reads size (1..4) bytes as a big endian integer.
func (rw *ReadWriter) ReadUint32BE(size int) (uint32, error) {
	bs4 := rw.rbuf[:]
	for i := range bs4 {
		bs4[i] = 0
	}
	if _, err := io.ReadFull(rw, bs4[4-size:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(bs4), nil
}

// ReadUint32LE reads size (1..4) bytes as a little endian integer.
func (rw *ReadWriter) ReadUint32LE(size int) (uint32, error) {
	bs4 := rw.rbuf[:]
	for i := range bs4 {
		bs4[i] = 0
	}
	if _, err := io.ReadFull(rw, bs4[:size]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(bs4), nil
}
