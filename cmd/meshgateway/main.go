// Command meshgateway joins the mesh and republishes every message it
// receives to a broker topic.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rabarar/meshrelay-go/public/cli"
	"github.com/rabarar/meshrelay-go/public/config"
	"github.com/rabarar/meshrelay-go/public/mesh"
	"github.com/rabarar/meshrelay-go/public/mqtt"
	"github.com/rabarar/meshrelay-go/public/relay"
	"github.com/rabarar/meshrelay-go/public/scheduler"
	"github.com/rabarar/meshrelay-go/public/station"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newCommand(&options{}).ExecuteContext(ctx); err != nil {
		log.Error("meshgateway failed", "err", err)
		os.Exit(1)
	}
}

type options struct {
	mesh        config.Mesh
	station     config.Station
	broker      config.Broker
	logging     config.Logging
	interval    config.Interval
	metricsAddr string
}

func newCommand(o *options) *cobra.Command {
	prog := &cli.Program{
		Name:  "meshgateway",
		Short: "Relay mesh messages to a broker topic",
		Run: func(ctx context.Context) error {
			return run(ctx, o)
		},
	}
	prog.Opts = append(prog.Opts, o.mesh.Opts()...)
	prog.Opts = append(prog.Opts, o.station.Opts()...)
	prog.Opts = append(prog.Opts, o.broker.Opts()...)
	prog.Opts = append(prog.Opts, o.logging.Opts()...)
	prog.Opts = append(prog.Opts, o.interval.Opts()...)
	prog.Opts = append(prog.Opts, cli.NewOpt(&o.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address"))
	return cli.NewCommand(viper.New(), prog)
}

func run(ctx context.Context, o *options) error {
	logger, err := o.logging.Logger(os.Stderr, "gateway")
	if err != nil {
		return err
	}
	if err := multierr.Combine(o.mesh.Validate(), o.broker.Validate(), o.interval.Validate()); err != nil {
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

	uplink := station.New(o.station.SSID, o.station.Password, o.station.Interface, logger)
	broker := mqtt.NewClient(o.broker.MQTTConfig(), logger)
	defer broker.Disconnect()

	metrics := relay.NewMetrics()
	gw, err := relay.NewGateway(relay.GatewayConfig{
		Topic:    o.broker.Topic,
		Interval: o.interval.Every,
	}, m, broker, uplink, scheduler.New(nil), metrics, logger)
	if err != nil {
		return err
	}
	logger.Info("Started",
		"node", m.NodeID(),
		"broker", o.broker.MQTTConfig().BrokerURL(),
		"topic", o.broker.Topic,
		"station", o.station.SSID,
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return gw.Run(egCtx)
	})
	if o.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.PrometheusCollectors()...)
		srv := &http.Server{
			Addr:              o.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		eg.Go(func() error {
			logger.Info("Serving metrics", "addr", o.metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-egCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return eg.Wait()
}
