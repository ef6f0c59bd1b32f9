package transport

import (
	"context"
	"io"
	"testing"
	"time"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

func TestUDPSharedMedium(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const port = 45555
	a := NewUDP(port, log.New(io.Discard))
	b := NewUDP(port, log.New(io.Discard))
	if err := a.Connect(ctx); err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	defer a.Close()
	if err := b.Connect(ctx); err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	defer b.Close()
	require.False(t, a.Managed())

	pkt := &meshtastic.MeshPacket{
		From:           123,
		To:             0xffffffff,
		Id:             7,
		PayloadVariant: &meshtastic.MeshPacket_Encrypted{Encrypted: []byte{1, 2, 3}},
	}
	require.NoError(t, a.SendPacket(pkt))

	select {
	case got := <-b.Packets():
		require.Equal(t, uint32(123), got.From)
		require.Equal(t, uint32(7), got.Id)
		require.Equal(t, []byte{1, 2, 3}, got.GetEncrypted())
	case <-time.After(2 * time.Second):
		t.Skip("no multicast route on this host")
	}
}

func TestUDPSendBeforeConnect(t *testing.T) {
	u := NewUDP(45556, log.New(io.Discard))
	require.Error(t, u.SendPacket(&meshtastic.MeshPacket{}))
	require.NoError(t, u.Close())
}
