package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/deadcoast/sprawl-engine/errors"
)

// Metrics contains the platform-level metrics shared by all components
// (not domain-specific ones; those live with their component).
type Metrics struct {
	EngineStatus    *prometheus.GaugeVec
	EventsPublished *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
}

// RecordError counts a failure against the component that handled it,
// labelled with the error's classification. Nil receivers and nil errors
// are ignored.
func (m *Metrics) RecordError(component string, err error) {
	if m == nil || err == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, errors.Classify(err).String()).Inc()
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		EngineStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "engine",
				Name:      "status",
				Help:      "Engine status (0=stopped, 1=initialized, 2=running, 3=failed)",
			},
			[]string{"engine"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total number of events published",
			},
			[]string{"kind"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "class"},
		),
	}
}
