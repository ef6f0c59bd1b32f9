package relay

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, result string) float64 {
	t.Helper()
	return testutil.ToFloat64(vec.WithLabelValues(result))
}

func TestMetricsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	for _, c := range m.PrometheusCollectors() {
		require.NoError(t, reg.Register(c))
	}
	m.Messages.WithLabelValues(resultPublished).Inc()
	m.BrokerConnected.Set(1)

	require.Equal(t, 1.0, testutil.ToFloat64(m.BrokerConnected))
	n, err := testutil.GatherAndCount(reg, "meshrelay_gateway_messages_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
