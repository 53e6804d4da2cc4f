package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	connectedPeers prometheus.Gauge
	commands       *prometheus.CounterVec
	broadcasts     *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	dropped        *prometheus.CounterVec

	frames        prometheus.Counter
	frameSize     prometheus.Histogram
	ingressEvents *prometheus.CounterVec
	ingressActive prometheus.Gauge
}

// NewPrometheusCollector registers the relay metrics with reg. A nil reg
// uses the default registerer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		connectedPeers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "telerelay_peers_connected",
			Help: "Number of WebSocket peers currently connected",
		}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telerelay_commands_total",
			Help: "Controller commands by verb and outcome",
		}, []string{"verb", "outcome"}),
		broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telerelay_broadcasts_total",
			Help: "Fan-out operations by message kind",
		}, []string{"kind"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telerelay_broadcast_deliveries_total",
			Help: "Per-recipient fan-out deliveries by kind and result",
		}, []string{"kind", "result"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telerelay_messages_dropped_total",
			Help: "Messages dropped by the router by reason",
		}, []string{"reason"}),
		frames: factory.NewCounter(prometheus.CounterOpts{
			Name: "telerelay_frames_total",
			Help: "Camera frames extracted from MJPEG ingress",
		}),
		frameSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "telerelay_frame_size_bytes",
			Help:    "Size of extracted camera frames",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12),
		}),
		ingressEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telerelay_ingress_events_total",
			Help: "MJPEG ingress lifecycle events",
		}, []string{"event"}),
		ingressActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "telerelay_ingress_active",
			Help: "1 while a camera upload is feeding the frame store",
		}),
	}
}

func (c *PrometheusCollector) RecordCommand(verb string, outcome string) {
	c.commands.WithLabelValues(verb, outcome).Inc()
}

func (c *PrometheusCollector) RecordBroadcast(kind string, recipients int, failed int) {
	c.broadcasts.WithLabelValues(kind).Inc()
	if delivered := recipients - failed; delivered > 0 {
		c.deliveries.WithLabelValues(kind, "delivered").Add(float64(delivered))
	}
	if failed > 0 {
		c.deliveries.WithLabelValues(kind, "failed").Add(float64(failed))
	}
}

func (c *PrometheusCollector) RecordDropped(reason string) {
	c.dropped.WithLabelValues(reason).Inc()
}

func (c *PrometheusCollector) SetConnectedPeers(count int) {
	c.connectedPeers.Set(float64(count))
}

func (c *PrometheusCollector) RecordFrame(bytes int) {
	c.frames.Inc()
	c.frameSize.Observe(float64(bytes))
}

func (c *PrometheusCollector) RecordIngress(event string) {
	c.ingressEvents.WithLabelValues(event).Inc()
}

func (c *PrometheusCollector) SetIngressActive(active bool) {
	if active {
		c.ingressActive.Set(1)
		return
	}
	c.ingressActive.Set(0)
}
