package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

type opts struct {
	prefix   string
	port     int
	insecure bool
	interval time.Duration
}

func newProgram(o *opts, ran *bool) *Program {
	return &Program{
		Name: "meshtest",
		Run: func(context.Context) error {
			*ran = true
			return nil
		},
		Opts: []Opt{
			NewOpt(&o.prefix, "mesh-prefix", "", "mesh name"),
			NewOpt(&o.port, "mesh-port", 5555, "mesh port"),
			NewOpt(&o.insecure, "broker-insecure", false, "plaintext"),
			NewOpt(&o.interval, "interval", 5*time.Second, "interval"),
		},
	}
}

func TestDefaults(t *testing.T) {
	var o opts
	var ran bool
	cmd := NewCommand(viper.New(), newProgram(&o, &ran))
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	require.True(t, ran)
	require.Equal(t, 5555, o.port)
	require.Equal(t, 5*time.Second, o.interval)
	require.Empty(t, o.prefix)
}

func TestFlagsAndEnv(t *testing.T) {
	t.Setenv("MESHTEST_MESH_PREFIX", "fromEnv")
	t.Setenv("MESHTEST_MESH_PORT", "6000")

	var o opts
	var ran bool
	cmd := NewCommand(viper.New(), newProgram(&o, &ran))
	cmd.SetArgs([]string{"--mesh-port", "7000", "--broker-insecure", "--interval", "1s"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, "fromEnv", o.prefix)
	require.Equal(t, 7000, o.port, "flag beats env")
	require.True(t, o.insecure)
	require.Equal(t, time.Second, o.interval)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meshtest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mesh-prefix: fromFile\nmesh-port: 5556\n"), 0o600))

	var o opts
	var ran bool
	cmd := NewCommand(viper.New(), newProgram(&o, &ran))
	cmd.SetArgs([]string{"--config", path})
	require.NoError(t, cmd.Execute())
	require.Equal(t, "fromFile", o.prefix)
	require.Equal(t, 5556, o.port)
}

func TestMissingConfigFile(t *testing.T) {
	var o opts
	var ran bool
	cmd := NewCommand(viper.New(), newProgram(&o, &ran))
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, cmd.Execute())
	require.False(t, ran)
}

func TestUnknownTypePanics(t *testing.T) {
	var f float64
	require.Panics(t, func() {
		NewCommand(viper.New(), &Program{Name: "x", Opts: []Opt{NewOpt(&f, "f", nil, "")}})
	})
}
