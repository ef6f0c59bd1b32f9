package relay

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rabarar/meshrelay-go/public/mqtt"
	"github.com/rabarar/meshrelay-go/public/scheduler"
)

// Subscriber is the part of mqtt.Client the monitor uses.
type Subscriber interface {
	Connected() bool
	Connect() error
	State() mqtt.State
	Handle(topic string, fn mqtt.HandlerFunc) error
	Loop()
}

// Monitor keeps a subscription to the relay topic alive. The broker session
// is clean, so the subscription is renewed after every reconnect.
type Monitor struct {
	topic      string
	broker     Subscriber
	handler    mqtt.HandlerFunc
	sched      *scheduler.Scheduler
	task       *scheduler.Task
	subscribed bool
	logger     *log.Logger
}

// NewMonitor registers the subscription keeper on sched. fn is called for
// every message received on topic.
func NewMonitor(topic string, interval time.Duration, b Subscriber, fn mqtt.HandlerFunc, sched *scheduler.Scheduler, logger *log.Logger) (*Monitor, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	m := &Monitor{
		topic:   topic,
		broker:  b,
		handler: fn,
		sched:   sched,
		logger:  logger,
	}
	m.task = scheduler.NewTask(interval, scheduler.Forever, m.KeepSubscribed)
	sched.AddTask(m.task)
	m.task.Enable()
	return m, nil
}

// KeepSubscribed reconnects a lost broker connection and subscribes again.
func (m *Monitor) KeepSubscribed() {
	if !m.broker.Connected() {
		m.subscribed = false
		m.logger.Info("Attempting broker connection")
		if err := m.broker.Connect(); err != nil {
			st := m.broker.State()
			m.logger.Error("Failed to connect to broker", "state", int(st), "reason", st.String(), "err", err)
			return
		}
		m.logger.Info("Connected to broker")
	}
	if m.subscribed {
		return
	}
	if err := m.broker.Handle(m.topic, m.handler); err != nil {
		m.logger.Error("Failed to subscribe", "topic", m.topic, "err", err)
		return
	}
	m.subscribed = true
	m.logger.Info("Subscribed", "topic", m.topic)
}

func (m *Monitor) Subscribed() bool {
	return m.subscribed && m.broker.Connected()
}

func (m *Monitor) Run(ctx context.Context) error {
	return run(ctx, m.sched, m.broker.Loop)
}
