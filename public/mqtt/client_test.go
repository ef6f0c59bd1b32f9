package mqtt

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err        error
	returnCode byte
	pending    bool
}

func (t *fakeToken) Wait() bool                     { return !t.pending }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }
func (t *fakeToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) ReturnCode() byte               { return t.returnCode }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeMessage struct {
	paho.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

type fakePaho struct {
	paho.Client
	open        bool
	connectTok  *fakeToken
	connects    int
	published   []published
	handlers    map[string]paho.MessageHandler
	disconnects int
}

func (f *fakePaho) IsConnected() bool      { return f.open }
func (f *fakePaho) IsConnectionOpen() bool { return f.open }

func (f *fakePaho) Connect() paho.Token {
	f.connects++
	if f.connectTok.err == nil && !f.connectTok.pending {
		f.open = true
	}
	return f.connectTok
}

func (f *fakePaho) Disconnect(uint) {
	f.disconnects++
	f.open = false
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.published = append(f.published, published{topic, qos, retained, payload.([]byte)})
	return &fakeToken{}
}

func (f *fakePaho) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	if f.handlers == nil {
		f.handlers = map[string]paho.MessageHandler{}
	}
	f.handlers[topic] = cb
	return &fakeToken{}
}

func newTestClient(cfg Config, tok *fakeToken) (*Client, *fakePaho) {
	fp := &fakePaho{connectTok: tok}
	return newClient(cfg, fp, log.New(io.Discard)), fp
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"bare host defaults to tls", Config{Server: "broker.example.com"}, "tls://broker.example.com:8883"},
		{"insecure", Config{Server: "localhost", Port: 1883, Insecure: true}, "tcp://localhost:1883"},
		{"url without port", Config{Server: "ssl://broker.example.com", Port: 8883}, "ssl://broker.example.com:8883"},
		{"url with port", Config{Server: "tcp://localhost:1883", Port: 8883}, "tcp://localhost:1883"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.cfg.BrokerURL())
		})
	}
	require.True(t, Config{Server: "broker"}.secure())
	require.False(t, Config{Server: "broker", Insecure: true}.secure())
}

func TestConnect(t *testing.T) {
	c, fp := newTestClient(Config{Server: "broker", StatusTopic: "gw/status"}, &fakeToken{})
	require.Equal(t, StateDisconnected, c.State())
	require.False(t, c.Connected())

	require.NoError(t, c.Connect())
	require.Equal(t, StateConnected, c.State())
	require.True(t, c.Connected())
	require.Equal(t, []published{{"gw/status", 1, true, []byte("online")}}, fp.published)

	c.Disconnect()
	require.Equal(t, StateDisconnected, c.State())
	require.Equal(t, 1, fp.disconnects)
	require.Equal(t, []byte("offline"), fp.published[1].payload)
}

func TestConnectRefused(t *testing.T) {
	c, _ := newTestClient(Config{Server: "broker"}, &fakeToken{
		err:        packets.ErrorRefusedNotAuthorised,
		returnCode: packets.ErrRefusedNotAuthorised,
	})
	err := c.Connect()
	require.ErrorIs(t, err, packets.ErrorRefusedNotAuthorised)
	require.Equal(t, StateUnauthorized, c.State())
	require.Equal(t, 5, int(c.State()))
	require.False(t, c.Connected())
}

func TestConnectStateFromError(t *testing.T) {
	require.Equal(t, StateBadCredentials, connectState(nil, packets.ErrorRefusedBadUsernameOrPassword))
	require.Equal(t, StateConnectFailed, connectState(nil, errors.New("dial tcp: connection refused")))
	require.Equal(t, StateConnectFailed, connectState(&fakeToken{returnCode: packets.ErrNetworkError}, errors.New("eof")))
}

func TestConnectTimeout(t *testing.T) {
	c, _ := newTestClient(Config{Server: "broker"}, &fakeToken{pending: true})
	require.ErrorIs(t, c.Connect(), ErrConnectTimeout)
	require.Equal(t, StateConnectionTimeout, c.State())
}

func TestPublishRequiresConnection(t *testing.T) {
	c, fp := newTestClient(Config{Server: "broker"}, &fakeToken{})
	require.ErrorIs(t, c.Publish("jarkom/mesh/data", []byte("x")), ErrNotConnected)
	require.Empty(t, fp.published)

	require.NoError(t, c.Connect())
	require.NoError(t, c.Publish("jarkom/mesh/data", []byte("Message from Node 123, count: 7")))
	require.Equal(t, []published{{"jarkom/mesh/data", 0, false, []byte("Message from Node 123, count: 7")}}, fp.published)
}

func TestLoopNoticesLostConnection(t *testing.T) {
	c, fp := newTestClient(Config{Server: "broker"}, &fakeToken{})
	require.NoError(t, c.Connect())

	c.Loop()
	require.Equal(t, StateConnected, c.State())

	fp.open = false
	c.Loop()
	require.Equal(t, StateConnectionLost, c.State())
	require.False(t, c.Connected())
}

func TestHandle(t *testing.T) {
	c, fp := newTestClient(Config{Server: "broker"}, &fakeToken{})
	var got []Message
	require.NoError(t, c.Handle("jarkom/mesh/data", func(m Message) { got = append(got, m) }))

	fp.handlers["jarkom/mesh/data"](fp, fakeMessage{topic: "jarkom/mesh/data", payload: []byte("hi")})
	require.Equal(t, []Message{{Topic: "jarkom/mesh/data", Payload: []byte("hi")}}, got)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "unauthorized", StateUnauthorized.String())
	require.Equal(t, "state 42", State(42).String())
}
