package monitoring

import (
	"testing"

	"telerelay/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var (
	_ ports.RelayMetrics   = (*PrometheusCollector)(nil)
	_ ports.IngressMetrics = (*PrometheusCollector)(nil)
)

func TestPrometheusCollector_RelayMetrics(t *testing.T) {
	c := NewPrometheusCollector(prometheus.NewRegistry())

	c.RecordCommand("pan", "forwarded")
	c.RecordCommand("pan", "forwarded")
	c.RecordCommand("volume", "rejected")
	c.RecordBroadcast("chat", 3, 1)
	c.RecordBroadcast("audio", 0, 0)
	c.RecordDropped("binary_from_camera")
	c.SetConnectedPeers(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.commands.WithLabelValues("pan", "forwarded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commands.WithLabelValues("volume", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.broadcasts.WithLabelValues("chat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.broadcasts.WithLabelValues("audio")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.deliveries.WithLabelValues("chat", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deliveries.WithLabelValues("chat", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dropped.WithLabelValues("binary_from_camera")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.connectedPeers))
}

func TestPrometheusCollector_IngressMetrics(t *testing.T) {
	c := NewPrometheusCollector(prometheus.NewRegistry())

	c.RecordFrame(2048)
	c.RecordFrame(0)
	c.RecordIngress("started")
	c.SetIngressActive(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.frames))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ingressEvents.WithLabelValues("started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ingressActive))

	c.SetIngressActive(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.ingressActive))
}

func TestPrometheusCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusCollector(prometheus.NewRegistry())
		NewPrometheusCollector(prometheus.NewRegistry())
	})
}
