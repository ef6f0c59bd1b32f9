// Package config describes the settings of the node, gateway and monitor
// processes. Credentials have no defaults: they are supplied through flags,
// environment variables or a config file at startup.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rabarar/meshrelay-go/public/cli"
	"github.com/rabarar/meshrelay-go/public/mesh"
	"github.com/rabarar/meshrelay-go/public/meshtool"
	"github.com/rabarar/meshrelay-go/public/mqtt"
	"github.com/rabarar/meshrelay-go/public/transport"
	"go.uber.org/multierr"
)

const (
	TransportUDP    = "udp"
	TransportSerial = "serial"

	DefaultTopic = "jarkom/mesh/data"
)

var (
	ErrUnknownTransport = errors.New("mesh transport must be udp or serial")
	ErrNoSerialPort     = errors.New("serial transport needs a serial port")
	ErrEmptyServer      = errors.New("broker server cannot be empty")
	ErrEmptyTopic       = errors.New("broker topic cannot be empty")
	ErrEmptyUsername    = errors.New("broker username cannot be empty")
	ErrEmptyPassword    = errors.New("broker password cannot be empty")
	ErrInvalidInterval  = errors.New("interval must be positive")
)

// Mesh configures membership in the mesh.
type Mesh struct {
	Prefix     string
	Password   string
	Port       int
	Transport  string
	SerialPort string
	Interface  string
	NodeID     string
}

func (m *Mesh) Opts() []cli.Opt {
	return []cli.Opt{
		cli.NewOpt(&m.Prefix, "mesh-prefix", "", "mesh network name shared by all devices (udp only)"),
		cli.NewOpt(&m.Password, "mesh-password", "", "mesh passphrase shared by all devices (udp only)"),
		cli.NewOpt(&m.Port, "mesh-port", mesh.DefaultPort, "mesh port shared by all devices (udp only)"),
		cli.NewOpt(&m.Transport, "mesh-transport", TransportUDP, "mesh transport: udp or serial; a serial radio meshes with its own channel settings"),
		cli.NewOpt(&m.SerialPort, "serial-port", "", "serial port of an attached Meshtastic radio"),
		cli.NewOpt(&m.Interface, "mesh-interface", "", "network interface for the udp transport"),
		cli.NewOpt(&m.NodeID, "node-id", "", "node id (decimal or !hex); random when empty"),
	}
}

// Validate checks m. The mesh credentials are only required for the udp
// transport; an attached radio keeps its own channel settings.
func (m Mesh) Validate() error {
	var err error
	if m.Transport != TransportSerial {
		err = m.MeshConfig().Validate()
	}
	switch m.Transport {
	case TransportUDP:
	case TransportSerial:
		if m.SerialPort == "" {
			err = multierr.Append(err, ErrNoSerialPort)
		}
	default:
		err = multierr.Append(err, fmt.Errorf("%w: %q", ErrUnknownTransport, m.Transport))
	}
	if m.NodeID != "" {
		if _, perr := meshtool.ParseNodeID(m.NodeID); perr != nil {
			err = multierr.Append(err, perr)
		}
	}
	return err
}

func (m Mesh) MeshConfig() mesh.Config {
	return mesh.Config{Prefix: m.Prefix, Password: m.Password, Port: m.Port}
}

// NewTransport returns the configured, not yet connected, transport.
func (m Mesh) NewTransport(logger *log.Logger) (transport.Transport, error) {
	switch m.Transport {
	case TransportUDP:
		u := transport.NewUDP(m.Port, logger)
		u.Interface = m.Interface
		return u, nil
	case TransportSerial:
		return transport.NewRadio(m.SerialPort, logger), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, m.Transport)
}

// MeshOptions returns the options for mesh.New derived from m.
func (m Mesh) MeshOptions(logger *log.Logger) ([]mesh.Option, error) {
	opts := []mesh.Option{mesh.WithLogger(logger)}
	if m.NodeID != "" {
		id, err := meshtool.ParseNodeID(m.NodeID)
		if err != nil {
			return nil, err
		}
		opts = append(opts, mesh.WithNodeID(id))
	}
	return opts, nil
}

// Station holds the access point the gateway uses for external connectivity.
type Station struct {
	SSID      string
	Password  string
	Interface string
}

func (s *Station) Opts() []cli.Opt {
	return []cli.Opt{
		cli.NewOpt(&s.SSID, "station-ssid", "", "access point name used for the uplink"),
		cli.NewOpt(&s.Password, "station-password", "", "access point passphrase"),
		cli.NewOpt(&s.Interface, "station-interface", "", "uplink network interface; any when empty"),
	}
}

// Broker configures the broker connection.
type Broker struct {
	Server      string
	Port        int
	Topic       string
	Username    string
	Password    string
	ClientID    string
	StatusTopic string
	Insecure    bool
	SkipVerify  bool
}

func (b *Broker) Opts() []cli.Opt {
	return []cli.Opt{
		cli.NewOpt(&b.Server, "broker-server", "", "broker host name or URL"),
		cli.NewOpt(&b.Port, "broker-port", mqtt.DefaultPort, "broker port"),
		cli.NewOpt(&b.Topic, "broker-topic", DefaultTopic, "topic mesh messages are published to"),
		cli.NewOpt(&b.Username, "broker-username", "", "broker user name; required unless --broker-insecure"),
		cli.NewOpt(&b.Password, "broker-password", "", "broker password; required unless --broker-insecure"),
		cli.NewOpt(&b.ClientID, "broker-client-id", "meshgateway", "MQTT client id"),
		cli.NewOpt(&b.StatusTopic, "broker-status-topic", "", "retained online/offline status topic"),
		cli.NewOpt(&b.Insecure, "broker-insecure", false, "connect without TLS"),
		cli.NewOpt(&b.SkipVerify, "broker-skip-verify", false, "skip broker certificate verification"),
	}
}

func (b Broker) Validate() error {
	var err error
	if b.Server == "" {
		err = multierr.Append(err, ErrEmptyServer)
	}
	if b.Topic == "" {
		err = multierr.Append(err, ErrEmptyTopic)
	}
	// Anonymous access is only accepted on a plaintext broker.
	if !b.Insecure {
		if b.Username == "" {
			err = multierr.Append(err, ErrEmptyUsername)
		}
		if b.Password == "" {
			err = multierr.Append(err, ErrEmptyPassword)
		}
	}
	return err
}

func (b Broker) MQTTConfig() mqtt.Config {
	return mqtt.Config{
		Server:      b.Server,
		Port:        b.Port,
		Username:    b.Username,
		Password:    b.Password,
		ClientID:    b.ClientID,
		Insecure:    b.Insecure,
		SkipVerify:  b.SkipVerify,
		StatusTopic: b.StatusTopic,
	}
}

// Logging configures the process logger.
type Logging struct {
	Level string
}

func (l *Logging) Opts() []cli.Opt {
	return []cli.Opt{
		cli.NewOpt(&l.Level, "log-level", "info", "log level: debug, info, warn, error"),
	}
}

// Logger returns a logger writing to w with the given prefix.
func (l Logging) Logger(w io.Writer, prefix string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(strings.ToLower(l.Level))
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level %q: %w", l.Level, err)
	}
	logger := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Prefix:          prefix,
		ReportTimestamp: true,
	})
	return logger, nil
}

// Interval is the period of a process's scheduled task.
type Interval struct {
	Every time.Duration
}

func (i *Interval) Opts() []cli.Opt {
	return []cli.Opt{
		cli.NewOpt(&i.Every, "interval", 5*time.Second, "period of the scheduled task"),
	}
}

func (i Interval) Validate() error {
	if i.Every <= 0 {
		return ErrInvalidInterval
	}
	return nil
}
