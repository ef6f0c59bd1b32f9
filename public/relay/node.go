package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rabarar/meshrelay-go/public/scheduler"
)

// Message is the text a node broadcasts on its count-th firing.
func Message(nodeID uint32, count uint64) string {
	return fmt.Sprintf("Message from Node %d, count: %d", nodeID, count)
}

// Node periodically broadcasts a status message to the mesh.
type Node struct {
	mesh    Mesh
	sched   *scheduler.Scheduler
	task    *scheduler.Task
	counter uint64
	logger  *log.Logger
}

// NewNode registers the broadcast task on sched and enables it.
func NewNode(m Mesh, sched *scheduler.Scheduler, interval time.Duration, logger *log.Logger) *Node {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	n := &Node{
		mesh:   m,
		sched:  sched,
		logger: logger,
	}
	n.task = scheduler.NewTask(interval, scheduler.Forever, n.Broadcast)
	sched.AddTask(n.task)
	n.task.Enable()
	return n
}

// Broadcast sends the next status message. The counter advances whether or
// not any peer was reachable.
func (n *Node) Broadcast() {
	msg := Message(n.mesh.NodeID(), n.counter)
	n.counter++
	n.mesh.SendBroadcast(msg)
	n.logger.Info("Sent", "msg", msg)
}

// Count is the number of broadcasts made so far.
func (n *Node) Count() uint64 {
	return n.counter
}

func (n *Node) Run(ctx context.Context) error {
	return run(ctx, n.sched, n.mesh.Update)
}
