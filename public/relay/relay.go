// Package relay holds the process contexts of the mesh node and the mesh to
// broker gateway. Each process builds exactly one context at startup; it
// owns the scheduler, the mesh membership and any broker connection, and
// drives them from a single cooperative run loop.
package relay

import (
	"context"
	"time"

	"github.com/rabarar/meshrelay-go/public/mesh"
	"github.com/rabarar/meshrelay-go/public/mqtt"
	"github.com/rabarar/meshrelay-go/public/scheduler"
)

const (
	DefaultInterval = 5 * time.Second
	// LoopInterval is the idle time between passes of the run loop.
	LoopInterval = 10 * time.Millisecond
)

// Mesh is the part of mesh.Mesh the processes use.
type Mesh interface {
	NodeID() uint32
	SendBroadcast(msg string) bool
	OnReceive(fn mesh.ReceiveFunc)
	Update()
}

// Broker is the part of mqtt.Client the gateway uses.
type Broker interface {
	Connected() bool
	Connect() error
	State() mqtt.State
	Publish(topic string, payload []byte) error
	Loop()
}

// Uplink reports local network connectivity.
type Uplink interface {
	Up() bool
}

// run services each component, dispatches due tasks and idles briefly, until
// ctx is done.
func run(ctx context.Context, sched *scheduler.Scheduler, service ...func()) error {
	ticker := time.NewTicker(LoopInterval)
	defer ticker.Stop()
	for {
		for _, s := range service {
			s()
		}
		sched.Execute()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
