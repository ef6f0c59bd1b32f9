// Package mesh joins a self-organizing mesh and exchanges text broadcasts
// with its peers. Delivery is best effort: packets are flooded with a hop
// limit and duplicates are suppressed, nothing is acknowledged.
package mesh

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
	"github.com/rabarar/meshrelay-go/public/meshtool"
	"github.com/rabarar/meshrelay-go/public/radio"
	"github.com/rabarar/meshrelay-go/public/transport"
	"google.golang.org/protobuf/proto"
)

const (
	DefaultPort     = 5555
	DefaultHopLimit = 3
	// SeenTTL is how long a packet id is remembered for duplicate
	// suppression.
	SeenTTL = 10 * time.Minute
	// maxPerUpdate bounds the work done by a single Update call.
	maxPerUpdate = transport.PacketBuffer
)

var (
	ErrEmptyPrefix   = errors.New("mesh prefix cannot be empty")
	ErrEmptyPassword = errors.New("mesh password cannot be empty")
	ErrInvalidPort   = errors.New("mesh port must be between 1 and 65535")
)

// Config holds the credentials shared by every member of a mesh.
type Config struct {
	Prefix   string
	Password string
	Port     int
}

func (c Config) Validate() error {
	if c.Prefix == "" {
		return ErrEmptyPrefix
	}
	if c.Password == "" {
		return ErrEmptyPassword
	}
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	return nil
}

// ReceiveFunc is called for every text message delivered to this node.
type ReceiveFunc func(from uint32, msg string)

type Option func(*Mesh)

// WithNodeID fixes the node id instead of drawing a random one. A transport
// that reports its own id takes precedence.
func WithNodeID(id meshtool.NodeID) Option {
	return func(m *Mesh) { m.nodeID = id }
}

func WithLogger(l *log.Logger) Option {
	return func(m *Mesh) { m.logger = l }
}

func WithClock(c clock.Clock) Option {
	return func(m *Mesh) { m.clock = c }
}

// Mesh is this device's membership in a mesh network.
type Mesh struct {
	cfg       Config
	transport transport.Transport
	keys      *radio.Keyring
	key       []byte
	channel   uint32

	nodeID    meshtool.NodeID
	packetID  uint32
	onReceive ReceiveFunc
	seen      *seenCache

	logger *log.Logger
	clock  clock.Clock
}

// New builds the membership for cfg on t. The credentials are not checked
// for a managed transport, which meshes with its own channel settings.
func New(cfg Config, t transport.Transport, opts ...Option) (*Mesh, error) {
	if !t.Managed() {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	m := &Mesh{
		cfg:       cfg,
		transport: t,
		keys:      radio.NewKeyring(),
		key:       radio.KeyFromPassphrase(cfg.Password),
		packetID:  rand.Uint32(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.Default()
	}
	if m.clock == nil {
		m.clock = clock.New()
	}
	m.keys.Add(cfg.Prefix, m.key)
	m.channel = radio.ChannelHash(cfg.Prefix, m.key)
	m.seen = newSeenCache(SeenTTL)
	if m.nodeID == 0 {
		id, err := meshtool.RandomNodeID()
		if err != nil {
			return nil, err
		}
		m.nodeID = id
	}
	return m, nil
}

// Init connects the transport and joins the mesh.
func (m *Mesh) Init(ctx context.Context) error {
	if err := m.transport.Connect(ctx); err != nil {
		return fmt.Errorf("connecting mesh transport: %w", err)
	}
	if r, ok := m.transport.(interface{ NodeID() uint32 }); ok && r.NodeID() != 0 {
		m.nodeID = meshtool.NodeID(r.NodeID())
	}
	m.logger.Info("joined mesh", "mesh", m.cfg.Prefix, "port", m.cfg.Port, "node", m.nodeID.Uint32())
	return nil
}

func (m *Mesh) NodeID() uint32 {
	return m.nodeID.Uint32()
}

func (m *Mesh) OnReceive(fn ReceiveFunc) {
	m.onReceive = fn
}

// SendBroadcast sends msg to every reachable peer. It returns false only when
// the packet could not be handed to the transport.
func (m *Mesh) SendBroadcast(msg string) bool {
	m.packetID++
	pkt := &meshtastic.MeshPacket{
		From:     m.nodeID.Uint32(),
		To:       meshtool.BroadcastID.Uint32(),
		Id:       m.packetID,
		HopLimit: DefaultHopLimit,
		HopStart: DefaultHopLimit,
		PayloadVariant: &meshtastic.MeshPacket_Decoded{
			Decoded: &meshtastic.Data{
				Portnum: meshtastic.PortNum_TEXT_MESSAGE_APP,
				Payload: []byte(msg),
			},
		},
	}
	if !m.transport.Managed() {
		pkt.Channel = m.channel
		enc, err := radio.Encrypt(pkt, m.key)
		if err != nil {
			m.logger.Debug("encrypting broadcast", "err", err)
			return false
		}
		pkt = enc
	}
	m.seen.add(m.nodeID.Uint32(), pkt.Id, m.clock.Now())
	if err := m.transport.SendPacket(pkt); err != nil {
		m.logger.Debug("sending broadcast", "err", err)
		return false
	}
	return true
}

// Update services the mesh: it handles every packet received since the last
// call and returns without blocking.
func (m *Mesh) Update() {
	now := m.clock.Now()
	m.seen.prune(now)
	for i := 0; i < maxPerUpdate; i++ {
		select {
		case pkt := <-m.transport.Packets():
			m.handle(pkt, now)
		default:
			return
		}
	}
}

func (m *Mesh) handle(pkt *meshtastic.MeshPacket, now time.Time) {
	if pkt.From == m.nodeID.Uint32() {
		return
	}
	if !m.seen.add(pkt.From, pkt.Id, now) {
		return
	}
	if !m.transport.Managed() {
		if _, _, ok := m.keys.ForPacket(pkt); !ok {
			m.logger.Debug("ignoring packet from another mesh", "from", pkt.From, "channel", pkt.Channel)
			return
		}
	}
	// The channel hash is one byte; only packets our key decodes are ours.
	data, err := m.keys.TryDecode(pkt)
	if err != nil {
		m.logger.Debug("failed to decode packet", "from", pkt.From, "err", err)
		return
	}
	if !m.transport.Managed() {
		m.relay(pkt)
	}
	if pkt.To != meshtool.BroadcastID.Uint32() && pkt.To != m.nodeID.Uint32() {
		return
	}
	if data.Portnum != meshtastic.PortNum_TEXT_MESSAGE_APP {
		m.logger.Debug("ignoring non-text packet", "from", pkt.From, "portnum", data.Portnum.String())
		return
	}
	if m.onReceive != nil {
		m.onReceive(pkt.From, string(data.Payload))
	}
}

// relay floods pkt onward while it has hop budget left.
func (m *Mesh) relay(pkt *meshtastic.MeshPacket) {
	if pkt.HopLimit == 0 || pkt.To == m.nodeID.Uint32() {
		return
	}
	fwd := proto.Clone(pkt).(*meshtastic.MeshPacket)
	fwd.HopLimit--
	if err := m.transport.SendPacket(fwd); err != nil {
		m.logger.Debug("relaying packet", "from", pkt.From, "id", pkt.Id, "err", err)
	}
}

// Stop leaves the mesh.
func (m *Mesh) Stop() error {
	return m.transport.Close()
}
