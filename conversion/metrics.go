package conversion

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/deadcoast/sprawl-engine/metric"
)

// engineMetrics holds Prometheus metrics for conversion engine operations.
type engineMetrics struct {
	// core carries the shared platform metrics (error counts).
	core *metric.Metrics

	// Process lifecycle
	processesStarted   *prometheus.CounterVec // By recipe_id and status (success/failure)
	processesCompleted *prometheus.CounterVec // By recipe_id and outcome (delivered/lost)

	// Chain lifecycle
	chainsStarted  *prometheus.CounterVec // By chain_id
	chainsFinished *prometheus.CounterVec // By chain_id and status (completed/failed)

	// Resource hand-off
	transfers *prometheus.CounterVec // By outcome (direct/fallback)

	// Distributions
	appliedEfficiency prometheus.Histogram
	stepDuration      *prometheus.HistogramVec // By recipe_id
	tickDuration      prometheus.Histogram

	// State
	activeProcesses prometheus.Gauge
	activeChains    prometheus.Gauge
}

// newEngineMetrics creates and registers conversion metrics with the
// provided registry. A nil registry disables metrics.
func newEngineMetrics(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &engineMetrics{
		core: registry.CoreMetrics(),

		processesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "conversion",
			Name:      "processes_started_total",
			Help:      "Total number of conversion process start attempts",
		}, []string{"recipe_id", "status"}), // status: success, failure

		processesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "conversion",
			Name:      "processes_completed_total",
			Help:      "Total number of completed conversion processes",
		}, []string{"recipe_id", "outcome"}), // outcome: delivered, lost

		chainsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "conversion",
			Name:      "chains_started_total",
			Help:      "Total number of chain executions started",
		}, []string{"chain_id"}),

		chainsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "conversion",
			Name:      "chains_finished_total",
			Help:      "Total number of chain executions finished",
		}, []string{"chain_id", "status"}), // status: completed, failed

		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "conversion",
			Name:      "transfers_total",
			Help:      "Total number of output hand-offs by outcome",
		}, []string{"outcome"}), // outcome: direct, fallback

		appliedEfficiency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "conversion",
			Name:      "applied_efficiency",
			Help:      "Applied efficiency multipliers of started processes",
			Buckets:   []float64{0.25, 0.5, 0.75, 1.0, 1.25, 1.5, 1.75, 2.0},
		}),

		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "conversion",
			Name:      "step_duration_seconds",
			Help:      "Chain step duration from start to completion in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"recipe_id"}),

		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "conversion",
			Name:      "tick_duration_seconds",
			Help:      "Scheduler tick sweep duration in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5},
		}),

		activeProcesses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "conversion",
			Name:      "active_processes",
			Help:      "Current number of processes in the scheduler queue",
		}),

		activeChains: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "conversion",
			Name:      "active_chains",
			Help:      "Current number of live chain executions",
		}),
	}

	if err := registry.RegisterCounterVec("conversion", "processes_started", m.processesStarted); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("conversion", "processes_completed", m.processesCompleted); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("conversion", "chains_started", m.chainsStarted); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("conversion", "chains_finished", m.chainsFinished); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("conversion", "transfers", m.transfers); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("conversion", "applied_efficiency", m.appliedEfficiency); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("conversion", "step_duration", m.stepDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("conversion", "tick_duration", m.tickDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("conversion", "active_processes", m.activeProcesses); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("conversion", "active_chains", m.activeChains); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *engineMetrics) recordError(err error) {
	if m == nil {
		return
	}
	m.core.RecordError("conversion", err)
}

func (m *engineMetrics) recordProcessStarted(recipeID string, success bool, efficiency float64) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.processesStarted.WithLabelValues(recipeID, status).Inc()
	if success {
		m.appliedEfficiency.Observe(efficiency)
	}
}

func (m *engineMetrics) recordProcessCompleted(recipeID, outcome string) {
	if m == nil {
		return
	}
	m.processesCompleted.WithLabelValues(recipeID, outcome).Inc()
}

func (m *engineMetrics) recordChainStarted(chainID string) {
	if m == nil {
		return
	}
	m.chainsStarted.WithLabelValues(chainID).Inc()
}

func (m *engineMetrics) recordChainFinished(chainID, status string) {
	if m == nil {
		return
	}
	m.chainsFinished.WithLabelValues(chainID, status).Inc()
}

func (m *engineMetrics) recordTransfer(direct bool) {
	if m == nil {
		return
	}
	outcome := "direct"
	if !direct {
		outcome = "fallback"
	}
	m.transfers.WithLabelValues(outcome).Inc()
}

func (m *engineMetrics) recordStepDuration(recipeID string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(recipeID).Observe(d.Seconds())
}

func (m *engineMetrics) recordTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}

func (m *engineMetrics) setActiveCounts(processes, chains int) {
	if m == nil {
		return
	}
	m.activeProcesses.Set(float64(processes))
	m.activeChains.Set(float64(chains))
}
