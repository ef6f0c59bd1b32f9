package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/charmbracelet/log"
	"golang.org/x/net/ipv4"
	"google.golang.org/protobuf/proto"
)

// DefaultMulticastGroup is the group Meshtastic devices use for meshing over
// a LAN.
var DefaultMulticastGroup = net.IPv4(224, 0, 0, 69)

const maxDatagram = 1500

// UDP is a shared medium transport: every packet is multicast to all mesh
// members listening on the same port. It neither routes nor encrypts.
type UDP struct {
	Port      int
	Group     net.IP
	Interface string

	logger  *log.Logger
	packets chan *meshtastic.MeshPacket

	mu   sync.Mutex
	conn net.PacketConn
	dst  *net.UDPAddr
	done chan struct{}
}

func NewUDP(port int, logger *log.Logger) *UDP {
	if logger == nil {
		logger = log.Default()
	}
	return &UDP{
		Port:    port,
		Group:   DefaultMulticastGroup,
		logger:  logger,
		packets: make(chan *meshtastic.MeshPacket, PacketBuffer),
	}
}

func (u *UDP) Connect(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn != nil {
		return nil
	}

	var ifi *net.Interface
	if u.Interface != "" {
		var err error
		if ifi, err = net.InterfaceByName(u.Interface); err != nil {
			return fmt.Errorf("looking up interface %s: %w", u.Interface, err)
		}
	}

	lc := net.ListenConfig{Control: reuseAddr}
	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", u.Port))
	if err != nil {
		return fmt.Errorf("listening on mesh port %d: %w", u.Port, err)
	}
	p := ipv4.NewPacketConn(pc)
	if err := p.JoinGroup(ifi, &net.UDPAddr{IP: u.Group}); err != nil {
		pc.Close()
		return fmt.Errorf("joining %s: %w", u.Group, err)
	}
	if ifi != nil {
		if err := p.SetMulticastInterface(ifi); err != nil {
			pc.Close()
			return fmt.Errorf("selecting interface %s: %w", ifi.Name, err)
		}
	}
	// Peers may share this host.
	if err := p.SetMulticastLoopback(true); err != nil {
		pc.Close()
		return fmt.Errorf("enabling loopback: %w", err)
	}

	u.conn = pc
	u.dst = &net.UDPAddr{IP: u.Group, Port: u.Port}
	u.done = make(chan struct{})
	go u.readLoop(pc)
	go func(done chan struct{}) {
		select {
		case <-ctx.Done():
			u.Close()
		case <-done:
		}
	}(u.done)
	u.logger.Debug("joined mesh medium", "group", u.Group, "port", u.Port)
	return nil
}

func (u *UDP) readLoop(pc net.PacketConn) {
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				u.logger.Error("reading mesh medium", "err", err)
			}
			return
		}
		pkt := &meshtastic.MeshPacket{}
		if err := proto.Unmarshal(buf[:n], pkt); err != nil {
			u.logger.Debug("ignoring malformed datagram", "from", from, "err", err)
			continue
		}
		select {
		case u.packets <- pkt:
		default:
			u.logger.Warn("mesh receive buffer full, dropping packet", "from", pkt.From, "id", pkt.Id)
		}
	}
}

func (u *UDP) SendPacket(pkt *meshtastic.MeshPacket) error {
	data, err := proto.Marshal(pkt)
	if err != nil {
		return fmt.Errorf("marshalling packet: %w", err)
	}
	u.mu.Lock()
	conn, dst := u.conn, u.dst
	u.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}
	_, err = conn.WriteTo(data, dst)
	return err
}

func (u *UDP) Packets() <-chan *meshtastic.MeshPacket {
	return u.packets
}

func (u *UDP) Managed() bool {
	return false
}

func (u *UDP) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	close(u.done)
	err := u.conn.Close()
	u.conn = nil
	return err
}
