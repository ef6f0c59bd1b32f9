// Command meshnode joins the mesh and broadcasts a counter message on a
// fixed interval.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/rabarar/meshrelay-go/public/cli"
	"github.com/rabarar/meshrelay-go/public/config"
	"github.com/rabarar/meshrelay-go/public/mesh"
	"github.com/rabarar/meshrelay-go/public/relay"
	"github.com/rabarar/meshrelay-go/public/scheduler"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newCommand(&options{}).ExecuteContext(ctx); err != nil {
		log.Error("meshnode failed", "err", err)
		os.Exit(1)
	}
}

type options struct {
	mesh     config.Mesh
	logging  config.Logging
	interval config.Interval
}

func newCommand(o *options) *cobra.Command {
	prog := &cli.Program{
		Name:  "meshnode",
		Short: "Broadcast a counter message to the mesh every interval",
		Run: func(ctx context.Context) error {
			return run(ctx, o)
		},
	}
	prog.Opts = append(prog.Opts, o.mesh.Opts()...)
	prog.Opts = append(prog.Opts, o.logging.Opts()...)
	prog.Opts = append(prog.Opts, o.interval.Opts()...)
	return cli.NewCommand(viper.New(), prog)
}

func run(ctx context.Context, o *options) error {
	logger, err := o.logging.Logger(os.Stderr, "node")
	if err != nil {
		return err
	}
	if err := multierr.Combine(o.mesh.Validate(), o.interval.Validate()); err != nil {
		return err
	}

	tr, err := o.mesh.NewTransport(logger)
	if err != nil {
		return err
	}
	meshOpts, err := o.mesh.MeshOptions(logger)
	if err != nil {
		return err
	}
	m, err := mesh.New(o.mesh.MeshConfig(), tr, meshOpts...)
	if err != nil {
		return err
	}
	if err := m.Init(ctx); err != nil {
		return err
	}
	defer m.Stop()

	node := relay.NewNode(m, scheduler.New(nil), o.interval.Every, logger)
	logger.Info("Started", "node", m.NodeID(), "interval", o.interval.Every)
	return node.Run(ctx)
}
