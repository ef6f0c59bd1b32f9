package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

const (
	DefaultPort           = 8883
	DefaultConnectTimeout = 10 * time.Second
	DefaultKeepAlive      = 15 * time.Second
	PublishTimeout        = 5 * time.Second

	statusOnline  = "online"
	statusOffline = "offline"
)

var (
	ErrNotConnected   = errors.New("not connected to broker")
	ErrConnectTimeout = errors.New("timed out connecting to broker")
	ErrTimeout        = errors.New("timed out waiting for broker")
)

// Config describes how to reach the broker.
type Config struct {
	// Server is a host name or a broker URL (tls://host:8883, tcp://host:1883).
	Server   string
	Port     int
	Username string
	Password string
	ClientID string
	// Insecure selects a plaintext connection when Server is a bare host.
	Insecure bool
	// SkipVerify disables broker certificate verification.
	SkipVerify bool
	// StatusTopic, when set, carries a retained online/offline status with
	// offline registered as the last will.
	StatusTopic    string
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
}

// BrokerURL returns the URL handed to the MQTT library.
func (c Config) BrokerURL() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	if strings.Contains(c.Server, "://") {
		u, err := url.Parse(c.Server)
		if err == nil && u.Port() == "" {
			u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
			return u.String()
		}
		return c.Server
	}
	scheme := "tls"
	if c.Insecure {
		scheme = "tcp"
	}
	return scheme + "://" + net.JoinHostPort(c.Server, strconv.Itoa(port))
}

func (c Config) secure() bool {
	u := c.BrokerURL()
	for _, s := range []string{"tls://", "ssl://", "mqtts://", "wss://", "tcps://"} {
		if strings.HasPrefix(u, s) {
			return true
		}
	}
	return false
}

// Message is a message received on a subscribed topic.
type Message struct {
	Topic   string
	Payload []byte
}

type HandlerFunc func(m Message)

// Client is a broker connection that only connects when asked to. It never
// reconnects on its own; callers decide when to try again.
type Client struct {
	cfg    Config
	client paho.Client
	logger *log.Logger

	mu    sync.Mutex
	state State
}

func NewClient(cfg Config, logger *log.Logger) *Client {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	c := newClient(cfg, nil, logger)
	c.client = paho.NewClient(c.options())
	return c
}

func newClient(cfg Config, pc paho.Client, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		cfg:    cfg,
		client: pc,
		logger: logger,
		state:  StateDisconnected,
	}
}

func (c *Client) options() *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(c.cfg.BrokerURL()).
		SetClientID(c.cfg.ClientID).
		SetUsername(c.cfg.Username).
		SetPassword(c.cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(c.cfg.ConnectTimeout).
		SetKeepAlive(c.cfg.KeepAlive).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.setState(StateConnectionLost)
			c.logger.Warn("broker connection lost", "err", err)
		})
	if c.cfg.secure() {
		opts.SetTLSConfig(&tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: c.cfg.SkipVerify,
		})
	}
	if c.cfg.StatusTopic != "" {
		opts.SetWill(c.cfg.StatusTopic, statusOffline, 1, true)
	}
	return opts
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State reports the outcome of the last connection attempt, or the loss of
// an established connection.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Connected() bool {
	return c.State() == StateConnected && c.client.IsConnectionOpen()
}

// Connect makes a single connection attempt and waits for its outcome.
func (c *Client) Connect() error {
	tok := c.client.Connect()
	if !tok.WaitTimeout(c.cfg.ConnectTimeout + time.Second) {
		c.setState(StateConnectionTimeout)
		return ErrConnectTimeout
	}
	if err := tok.Error(); err != nil {
		c.setState(connectState(tok, err))
		return fmt.Errorf("connecting to %s: %w", c.cfg.BrokerURL(), err)
	}
	c.setState(StateConnected)
	if c.cfg.StatusTopic != "" {
		if err := c.publish(c.cfg.StatusTopic, 1, true, []byte(statusOnline)); err != nil {
			c.logger.Warn("failed to publish status", "topic", c.cfg.StatusTopic, "err", err)
		}
	}
	return nil
}

type returnCoder interface {
	ReturnCode() byte
}

func connectState(tok paho.Token, err error) State {
	if rc, ok := tok.(returnCoder); ok {
		if code := rc.ReturnCode(); code != packets.Accepted && code <= packets.ErrRefusedNotAuthorised {
			return State(code)
		}
	}
	for code, connErr := range packets.ConnErrors {
		if code != packets.Accepted && code <= packets.ErrRefusedNotAuthorised && errors.Is(err, connErr) {
			return State(code)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StateConnectionTimeout
	}
	return StateConnectFailed
}

// Loop services the connection. It notices a connection that dropped
// without the library reporting it.
func (c *Client) Loop() {
	if c.State() == StateConnected && !c.client.IsConnectionOpen() {
		c.setState(StateConnectionLost)
		c.logger.Warn("broker connection lost")
	}
}

// Publish sends payload to topic at QoS 0. Nothing is queued when the
// client is not connected.
func (c *Client) Publish(topic string, payload []byte) error {
	return c.publish(topic, 0, false, payload)
}

func (c *Client) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	tok := c.client.Publish(topic, qos, retained, payload)
	if !tok.WaitTimeout(PublishTimeout) {
		return ErrTimeout
	}
	return tok.Error()
}

// Handle subscribes to topic and calls fn for each message received on it.
func (c *Client) Handle(topic string, fn HandlerFunc) error {
	tok := c.client.Subscribe(topic, 0, func(_ paho.Client, m paho.Message) {
		fn(Message{Topic: m.Topic(), Payload: m.Payload()})
	})
	if !tok.WaitTimeout(PublishTimeout) {
		return ErrTimeout
	}
	return tok.Error()
}

// Disconnect marks the status offline and closes the connection.
func (c *Client) Disconnect() {
	if c.cfg.StatusTopic != "" && c.Connected() {
		if err := c.publish(c.cfg.StatusTopic, 1, true, []byte(statusOffline)); err != nil {
			c.logger.Debug("failed to publish status", "err", err)
		}
	}
	c.client.Disconnect(250)
	c.setState(StateDisconnected)
}
