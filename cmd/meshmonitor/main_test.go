package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rabarar/meshrelay-go/public/config"
	"github.com/stretchr/testify/require"
)

func TestRequiresBroker(t *testing.T) {
	cmd := newCommand(&options{})
	cmd.SetArgs([]string{})
	err := cmd.ExecuteContext(context.Background())
	require.ErrorIs(t, err, config.ErrEmptyServer)
	require.ErrorIs(t, err, config.ErrEmptyUsername)
	require.ErrorIs(t, err, config.ErrEmptyPassword)
}

func TestBrokerSettingsFromEnv(t *testing.T) {
	t.Setenv("MESHMONITOR_BROKER_SERVER", "broker.example.com")
	t.Setenv("MESHMONITOR_BROKER_PASSWORD", "s3cret")

	var o options
	cmd := newCommand(&o)
	cmd.SetArgs([]string{"--interval", "0s"})
	require.ErrorIs(t, cmd.ExecuteContext(context.Background()), config.ErrInvalidInterval)
	require.Equal(t, "broker.example.com", o.broker.Server)
	require.Equal(t, "s3cret", o.broker.Password)
	require.Equal(t, config.DefaultTopic, o.broker.Topic)
}

// The monitor keeps retrying an unreachable broker until it is stopped.
func TestOutlivesUnreachableBroker(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	cmd := newCommand(&options{})
	cmd.SetArgs([]string{
		"--broker-server", "tcp://" + addr,
		"--broker-insecure",
		"--interval", "50ms",
		"--log-level", "error",
	})
	require.NoError(t, cmd.ExecuteContext(ctx))
}
