package observability

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the Prometheus collectors that report chat activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	turns          *prometheus.CounterVec
	researchSteps  *prometheus.CounterVec
	modelLatency   *prometheus.HistogramVec
	activeSessions prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// Default returns the metrics instance registered with the global registry.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Collectors that are already registered are reused.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ozy",
				Subsystem: "chat",
				Name:      "turns_total",
				Help:      "Completed chat turns by persona and outcome.",
			},
			[]string{"persona", "outcome"},
		),
		researchSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ozy",
				Subsystem: "research",
				Name:      "steps_total",
				Help:      "Refinement pipeline delegate runs by step and status.",
			},
			[]string{"step", "status"},
		),
		modelLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ozy",
				Subsystem: "model",
				Name:      "send_duration_seconds",
				Help:      "Latency of a single chat send against the model endpoint.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
			},
			[]string{"status"},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ozy",
				Subsystem: "chat",
				Name:      "sessions_active",
				Help:      "Number of session state bags currently held in memory.",
			},
		),
	}

	m.turns = register(reg, m.turns)
	m.researchSteps = register(reg, m.researchSteps)
	m.modelLatency = register(reg, m.modelLatency)
	m.activeSessions = register(reg, m.activeSessions)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveTurn counts one finished turn.
func (m *Metrics) ObserveTurn(persona, outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(persona, outcome).Inc()
}

// ObserveResearchStep counts one delegate run of the refinement pipeline.
func (m *Metrics) ObserveResearchStep(step, status string) {
	if m == nil {
		return
	}
	m.researchSteps.WithLabelValues(step, status).Inc()
}

// ObserveModelSend records the latency of one model send.
func (m *Metrics) ObserveModelSend(started time.Time, status string) {
	if m == nil {
		return
	}
	m.modelLatency.WithLabelValues(status).Observe(time.Since(started).Seconds())
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
