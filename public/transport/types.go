package transport

import (
	"context"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
)

// Transport moves mesh packets between this process and the rest of the mesh.
type Transport interface {
	// Connect opens the underlying medium and starts delivering received
	// packets on Packets until ctx is done or Close is called.
	Connect(ctx context.Context) error
	SendPacket(pkt *meshtastic.MeshPacket) error
	Packets() <-chan *meshtastic.MeshPacket
	// Managed reports whether the transport routes and encrypts packets by
	// itself, as an attached radio does.
	Managed() bool
	Close() error
}

// PacketBuffer is the number of received packets held until the mesh is
// serviced. Further packets are dropped.
const PacketBuffer = 64
