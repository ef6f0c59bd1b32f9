package relay

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rabarar/meshrelay-go/public/scheduler"
)

var ErrEmptyTopic = errors.New("broker topic cannot be empty")

// ConnState is the gateway's view of its broker connection.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// GatewayConfig holds the gateway's fixed parameters.
type GatewayConfig struct {
	Topic    string
	Interval time.Duration
}

// Gateway republishes mesh messages to a broker topic. Messages that arrive
// while the broker is unreachable are dropped.
type Gateway struct {
	cfg     GatewayConfig
	mesh    Mesh
	broker  Broker
	uplink  Uplink
	sched   *scheduler.Scheduler
	task    *scheduler.Task
	state   ConnState
	metrics *Metrics
	logger  *log.Logger
}

// NewGateway wires the relay to m's receive callback and registers the
// connection keeper on sched.
func NewGateway(cfg GatewayConfig, m Mesh, b Broker, up Uplink, sched *scheduler.Scheduler, metrics *Metrics, logger *log.Logger) (*Gateway, error) {
	if cfg.Topic == "" {
		return nil, ErrEmptyTopic
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = log.Default()
	}
	g := &Gateway{
		cfg:     cfg,
		mesh:    m,
		broker:  b,
		uplink:  up,
		sched:   sched,
		metrics: metrics,
		logger:  logger,
	}
	m.OnReceive(g.Relay)
	g.task = scheduler.NewTask(cfg.Interval, scheduler.Forever, g.KeepConnected)
	sched.AddTask(g.task)
	g.task.Enable()
	return g, nil
}

// Relay forwards msg verbatim to the broker topic.
func (g *Gateway) Relay(from uint32, msg string) {
	g.logger.Info("Received", "from", from, "msg", msg)
	if !g.broker.Connected() {
		g.logger.Warn("Broker not connected, cannot publish", "from", from)
		g.metrics.Messages.WithLabelValues(resultDropped).Inc()
		return
	}
	if err := g.broker.Publish(g.cfg.Topic, []byte(msg)); err != nil {
		g.logger.Error("Failed to publish", "topic", g.cfg.Topic, "err", err)
		g.metrics.Messages.WithLabelValues(resultFailed).Inc()
		return
	}
	g.logger.Info("Published to broker", "topic", g.cfg.Topic)
	g.metrics.Messages.WithLabelValues(resultPublished).Inc()
}

// KeepConnected makes one connection attempt when the uplink is up and the
// broker is not connected.
func (g *Gateway) KeepConnected() {
	defer func() {
		g.metrics.BrokerConnected.Set(boolGauge(g.state == Connected))
	}()
	if !g.uplink.Up() {
		g.logger.Warn("Uplink not connected")
		if !g.broker.Connected() {
			g.state = Disconnected
		}
		return
	}
	if g.broker.Connected() {
		g.state = Connected
		return
	}

	g.state = Connecting
	g.logger.Info("Attempting broker connection")
	if err := g.broker.Connect(); err != nil {
		g.state = Disconnected
		st := g.broker.State()
		g.logger.Error("Failed to connect to broker", "state", int(st), "reason", st.String(), "err", err)
		g.metrics.ConnectAttempts.WithLabelValues(resultFailed).Inc()
		return
	}
	g.state = Connected
	g.logger.Info("Connected to broker")
	g.metrics.ConnectAttempts.WithLabelValues(resultOK).Inc()
}

func (g *Gateway) State() ConnState {
	return g.state
}

func (g *Gateway) Run(ctx context.Context) error {
	return run(ctx, g.sched, g.mesh.Update, g.broker.Loop)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
