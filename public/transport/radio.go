package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/charmbracelet/log"
	"github.com/rabarar/meshrelay-go/public/transport/serial"
)

// ConfigTimeout bounds how long Connect waits for the radio to report its
// node number.
const ConfigTimeout = 10 * time.Second

var ErrNoNodeInfo = errors.New("radio did not report its node info")

// Radio is a Meshtastic radio attached over a serial port. The radio owns
// routing and encryption; packets are exchanged decoded.
type Radio struct {
	Port string

	logger  *log.Logger
	open    func(port string) (io.ReadWriteCloser, error)
	packets chan *meshtastic.MeshPacket
	nodeNum atomic.Uint32

	mu   sync.Mutex
	conn *StreamConn
}

func NewRadio(port string, logger *log.Logger) *Radio {
	if logger == nil {
		logger = log.Default()
	}
	return &Radio{
		Port:   port,
		logger: logger,
		open: func(port string) (io.ReadWriteCloser, error) {
			return serial.Connect(port)
		},
		packets: make(chan *meshtastic.MeshPacket, PacketBuffer),
	}
}

// NodeID is the radio's node number, known once Connect has returned.
func (r *Radio) NodeID() uint32 {
	return r.nodeNum.Load()
}

func (r *Radio) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return nil
	}
	rwc, err := r.open(r.Port)
	if err != nil {
		return err
	}
	conn, err := NewClientStreamConn(rwc)
	if err != nil {
		rwc.Close()
		return err
	}

	ready := make(chan struct{})
	go r.readLoop(conn, ready)

	err = conn.Write(&meshtastic.ToRadio{
		PayloadVariant: &meshtastic.ToRadio_WantConfigId{WantConfigId: rand.Uint32()},
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("requesting config: %w", err)
	}

	timer := time.NewTimer(ConfigTimeout)
	defer timer.Stop()
	select {
	case <-ready:
	case <-timer.C:
		conn.Close()
		return ErrNoNodeInfo
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	}

	r.conn = conn
	go func() {
		<-ctx.Done()
		r.Close()
	}()
	r.logger.Info("radio connected", "port", r.Port, "node", r.NodeID())
	return nil
}

func (r *Radio) readLoop(conn *StreamConn, ready chan struct{}) {
	var once sync.Once
	for {
		msg := &meshtastic.FromRadio{}
		if err := conn.Read(msg); err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Debug("radio read stopped", "err", err)
			}
			return
		}
		switch v := msg.GetPayloadVariant().(type) {
		case *meshtastic.FromRadio_MyInfo:
			r.nodeNum.Store(v.MyInfo.GetMyNodeNum())
			once.Do(func() { close(ready) })
		case *meshtastic.FromRadio_Packet:
			select {
			case r.packets <- v.Packet:
			default:
				r.logger.Warn("mesh receive buffer full, dropping packet", "from", v.Packet.From, "id", v.Packet.Id)
			}
		}
	}
}

func (r *Radio) SendPacket(pkt *meshtastic.MeshPacket) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return io.ErrClosedPipe
	}
	return conn.Write(&meshtastic.ToRadio{
		PayloadVariant: &meshtastic.ToRadio_Packet{Packet: pkt},
	})
}

func (r *Radio) Packets() <-chan *meshtastic.MeshPacket {
	return r.packets
}

func (r *Radio) Managed() bool {
	return true
}

func (r *Radio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}
