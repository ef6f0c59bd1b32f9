// Command meshmonitor subscribes to the gateway's topic and logs every
// message relayed from the mesh.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/rabarar/meshrelay-go/public/cli"
	"github.com/rabarar/meshrelay-go/public/config"
	"github.com/rabarar/meshrelay-go/public/mqtt"
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
		log.Error("meshmonitor failed", "err", err)
		os.Exit(1)
	}
}

type options struct {
	broker   config.Broker
	logging  config.Logging
	interval config.Interval
}

func newCommand(o *options) *cobra.Command {
	prog := &cli.Program{
		Name:  "meshmonitor",
		Short: "Log messages relayed to the broker topic",
		Run: func(ctx context.Context) error {
			return run(ctx, o)
		},
	}
	prog.Opts = append(prog.Opts, o.broker.Opts()...)
	prog.Opts = append(prog.Opts, o.logging.Opts()...)
	prog.Opts = append(prog.Opts, o.interval.Opts()...)
	return cli.NewCommand(viper.New(), prog)
}

func run(ctx context.Context, o *options) error {
	logger, err := o.logging.Logger(os.Stderr, "monitor")
	if err != nil {
		return err
	}
	if err := multierr.Combine(o.broker.Validate(), o.interval.Validate()); err != nil {
		return err
	}
	cfg := o.broker.MQTTConfig()
	// The status topic belongs to the gateway.
	cfg.StatusTopic = ""
	if cfg.ClientID == "meshgateway" {
		cfg.ClientID = "meshmonitor"
	}

	client := mqtt.NewClient(cfg, logger)
	defer client.Disconnect()

	mon, err := relay.NewMonitor(o.broker.Topic, o.interval.Every, client, func(m mqtt.Message) {
		logger.Info(string(m.Payload), "topic", m.Topic)
	}, scheduler.New(nil), logger)
	if err != nil {
		return err
	}
	logger.Info("Started", "broker", cfg.BrokerURL(), "topic", o.broker.Topic)
	return mon.Run(ctx)
}
