package relay

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
	"github.com/rabarar/meshrelay-go/public/mqtt"
	"github.com/rabarar/meshrelay-go/public/scheduler"
	"github.com/stretchr/testify/require"
)

// fakeSubscriber forgets its subscriptions when the connection drops, like a
// clean session does.
type fakeSubscriber struct {
	fakeBroker
	handlers  map[string]mqtt.HandlerFunc
	handles   int
	handleErr error
}

func (s *fakeSubscriber) Handle(topic string, fn mqtt.HandlerFunc) error {
	s.handles++
	if s.handleErr != nil {
		return s.handleErr
	}
	if s.handlers == nil {
		s.handlers = map[string]mqtt.HandlerFunc{}
	}
	s.handlers[topic] = fn
	return nil
}

func (s *fakeSubscriber) drop() {
	s.connected = false
	s.handlers = nil
}

func (s *fakeSubscriber) deliver(topic, payload string) bool {
	fn, ok := s.handlers[topic]
	if !ok || !s.connected {
		return false
	}
	fn(mqtt.Message{Topic: topic, Payload: []byte(payload)})
	return true
}

func newTestMonitor(t *testing.T, s *fakeSubscriber) (*Monitor, *clock.Mock, *[]string, *bytes.Buffer) {
	t.Helper()
	mock := clock.NewMock()
	var buf bytes.Buffer
	var got []string
	m, err := NewMonitor(topic, 5*time.Second, s, func(msg mqtt.Message) {
		got = append(got, string(msg.Payload))
	}, scheduler.New(mock), log.New(&buf))
	require.NoError(t, err)
	return m, mock, &got, &buf
}

func TestMonitorSubscribesOnStart(t *testing.T) {
	s := &fakeSubscriber{}
	m, _, got, _ := newTestMonitor(t, s)

	m.sched.Execute()
	require.Equal(t, 1, s.connects)
	require.True(t, m.Subscribed())
	require.True(t, s.deliver(topic, "Message from Node 123, count: 0"))
	require.Equal(t, []string{"Message from Node 123, count: 0"}, *got)

	// Nothing to do while the subscription holds.
	m.KeepSubscribed()
	require.Equal(t, 1, s.connects)
	require.Equal(t, 1, s.handles)
}

func TestMonitorResubscribesAfterBrokerRestart(t *testing.T) {
	s := &fakeSubscriber{}
	m, mock, got, _ := newTestMonitor(t, s)
	m.sched.Execute()

	s.drop()
	s.failState = mqtt.StateConnectionLost
	require.False(t, m.Subscribed())
	require.False(t, s.deliver(topic, "lost"))

	mock.Add(5 * time.Second)
	m.sched.Execute()
	require.Equal(t, 2, s.connects)
	require.Equal(t, 2, s.handles)
	require.True(t, m.Subscribed())
	require.True(t, s.deliver(topic, "after restart"))
	require.Equal(t, []string{"after restart"}, *got)
}

func TestMonitorRetriesFailedConnect(t *testing.T) {
	s := &fakeSubscriber{}
	s.connectErr = errors.New("refused")
	s.failState = mqtt.StateConnectFailed
	m, mock, _, buf := newTestMonitor(t, s)

	m.sched.Execute()
	require.False(t, m.Subscribed())
	require.Zero(t, s.handles)
	require.Contains(t, buf.String(), "state=-2")

	s.connectErr = nil
	mock.Add(5 * time.Second)
	m.sched.Execute()
	require.Equal(t, 2, s.connects)
	require.True(t, m.Subscribed())
}

func TestMonitorRetriesFailedSubscribe(t *testing.T) {
	s := &fakeSubscriber{handleErr: mqtt.ErrTimeout}
	m, mock, _, buf := newTestMonitor(t, s)

	m.sched.Execute()
	require.False(t, m.Subscribed())
	require.Contains(t, buf.String(), "Failed to subscribe")

	s.handleErr = nil
	mock.Add(5 * time.Second)
	m.sched.Execute()
	require.Equal(t, 1, s.connects, "connection was kept")
	require.Equal(t, 2, s.handles)
	require.True(t, m.Subscribed())
}

func TestNewMonitorRequiresTopic(t *testing.T) {
	_, err := NewMonitor("", 0, &fakeSubscriber{}, nil, scheduler.New(nil), nil)
	require.ErrorIs(t, err, ErrEmptyTopic)
}

func TestMonitorRun(t *testing.T) {
	s := &fakeSubscriber{}
	m, err := NewMonitor(topic, 0, s, func(mqtt.Message) {}, scheduler.New(clock.NewMock()), log.New(&bytes.Buffer{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.loops > 2
	}, time.Second, LoopInterval)
	cancel()
	require.NoError(t, <-done)
}
