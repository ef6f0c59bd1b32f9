package relay

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace        = "meshrelay"
	gatewaySubsystem = "gateway"

	resultPublished = "published"
	resultDropped   = "dropped"
	resultFailed    = "failed"
	resultOK        = "ok"
)

// Metrics counts what the gateway did with each message and connection
// attempt.
type Metrics struct {
	Messages        *prometheus.CounterVec // result = {published, dropped, failed}
	ConnectAttempts *prometheus.CounterVec // result = {ok, failed}
	BrokerConnected prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: gatewaySubsystem,
			Name:      "messages_total",
			Help:      "Mesh messages handled by the gateway, by result.",
		}, []string{"result"}),
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: gatewaySubsystem,
			Name:      "connect_attempts_total",
			Help:      "Broker connection attempts, by result.",
		}, []string{"result"}),
		BrokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: gatewaySubsystem,
			Name:      "broker_connected",
			Help:      "1 while the broker connection is up.",
		}),
	}
}

// PrometheusCollectors returns the collectors to register.
func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{m.Messages, m.ConnectAttempts, m.BrokerConnected}
}
