package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
)

const (
	WaitAfterWake = 100 * time.Millisecond
	Start1        = 0x94
	Start2        = 0xc3
	PacketMTU     = 512
)

var ErrPacketTooLarge = errors.New("packet exceeds MTU")

// StreamConn implements the framing used by Meshtastic radios on serial and
// TCP links: 0x94 0xc3, a big endian length, then the protobuf.
type StreamConn struct {
	conn io.ReadWriteCloser
	// DebugWriter receives any bytes the radio emits outside of a frame,
	// usually its debug console.
	DebugWriter io.Writer

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewClientStreamConn wraps conn from the client side, waking the radio first.
func NewClientStreamConn(conn io.ReadWriteCloser) (*StreamConn, error) {
	c := &StreamConn{conn: conn}
	if _, err := conn.Write(bytes.Repeat([]byte{Start2}, 32)); err != nil {
		return nil, fmt.Errorf("waking radio: %w", err)
	}
	time.Sleep(WaitAfterWake)
	return c, nil
}

// NewRadioStreamConn wraps conn from the radio side.
func NewRadioStreamConn(conn io.ReadWriteCloser) *StreamConn {
	return &StreamConn{conn: conn}
}

func (c *StreamConn) Read(out proto.Message) error {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	data, err := c.readFrame()
	if err != nil {
		return err
	}
	return proto.Unmarshal(data, out)
}

func (c *StreamConn) Write(in proto.Message) error {
	data, err := proto.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshalling: %w", err)
	}
	if len(data) > PacketMTU {
		return ErrPacketTooLarge
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := writeStreamHeader(c.conn, uint16(len(data))); err != nil {
		return err
	}
	_, err = c.conn.Write(data)
	return err
}

func (c *StreamConn) Close() error {
	return c.conn.Close()
}

func (c *StreamConn) debug(b byte) {
	if c.DebugWriter != nil {
		c.DebugWriter.Write([]byte{b})
	}
}

func (c *StreamConn) readFrame() ([]byte, error) {
	b := make([]byte, 1)
	for {
		if _, err := io.ReadFull(c.conn, b); err != nil {
			return nil, err
		}
		if b[0] != Start1 {
			c.debug(b[0])
			continue
		}
		if _, err := io.ReadFull(c.conn, b); err != nil {
			return nil, err
		}
		if b[0] != Start2 {
			c.debug(Start1)
			c.debug(b[0])
			continue
		}
		var hdr [2]byte
		if _, err := io.ReadFull(c.conn, hdr[:]); err != nil {
			return nil, err
		}
		length := binary.BigEndian.Uint16(hdr[:])
		if length > PacketMTU {
			// Corrupt header, resync on the next start byte.
			continue
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(c.conn, data); err != nil {
			return nil, err
		}
		return data, nil
	}
}

func writeStreamHeader(w io.Writer, length uint16) error {
	hdr := []byte{Start1, Start2, 0, 0}
	binary.BigEndian.PutUint16(hdr[2:], length)
	_, err := w.Write(hdr)
	return err
}
