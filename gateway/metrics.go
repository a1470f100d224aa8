package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/deadcoast/sprawl-engine/metric"
)

// serverMetrics holds Prometheus metrics for the WebSocket gateway.
type serverMetrics struct {
	// core carries the shared platform metrics (error counts).
	core *metric.Metrics

	connectionsTotal  prometheus.Counter
	clientsConnected  prometheus.Gauge
	eventsBroadcast   *prometheus.CounterVec // By event kind
	messagesDropped   prometheus.Counter
	broadcastDuration prometheus.Histogram
}

// newServerMetrics creates and registers gateway metrics with the provided
// registry. A nil registry disables metrics.
func newServerMetrics(registry *metric.MetricsRegistry) (*serverMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &serverMetrics{
		core: registry.CoreMetrics(),

		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "gateway",
			Name:      "client_connections_total",
			Help:      "Total client connections including disconnected",
		}),

		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "gateway",
			Name:      "clients_connected",
			Help:      "Number of currently connected clients",
		}),

		eventsBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "gateway",
			Name:      "events_broadcast_total",
			Help:      "Total events broadcast to clients",
		}, []string{"kind"}),

		messagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "gateway",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped because a client send queue was full",
		}),

		broadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "gateway",
			Name:      "broadcast_duration_seconds",
			Help:      "Time to enqueue an event to all clients",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
	}

	if err := registry.RegisterCounter("gateway", "client_connections", m.connectionsTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("gateway", "clients_connected", m.clientsConnected); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("gateway", "events_broadcast", m.eventsBroadcast); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("gateway", "messages_dropped", m.messagesDropped); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("gateway", "broadcast_duration", m.broadcastDuration); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *serverMetrics) recordError(err error) {
	if m == nil {
		return
	}
	m.core.RecordError("gateway", err)
}

func (m *serverMetrics) recordConnect(clients int) {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.clientsConnected.Set(float64(clients))
}

func (m *serverMetrics) recordDisconnect(clients int) {
	if m == nil {
		return
	}
	m.clientsConnected.Set(float64(clients))
}

func (m *serverMetrics) recordBroadcast(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.eventsBroadcast.WithLabelValues(kind).Inc()
	m.broadcastDuration.Observe(d.Seconds())
}

func (m *serverMetrics) recordDropped() {
	if m == nil {
		return
	}
	m.messagesDropped.Inc()
}
