package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report turn activity. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	turns          *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	commitFailures *prometheus.CounterVec
	inFlight       prometheus.Gauge
}

// NewMetrics constructs and registers the runner collectors with reg. Callers
// supply a fresh registry when unique metric names are required (tests).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "statemesh",
				Subsystem: "runner",
				Name:      "turns_total",
				Help:      "Turns processed, by terminal phase and status.",
			},
			[]string{"phase", "status"},
		),
		turnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "statemesh",
				Subsystem: "runner",
				Name:      "turn_duration_seconds",
				Help:      "Wall time of a turn from START to its terminal phase.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		commitFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "statemesh",
				Subsystem: "runner",
				Name:      "commit_failures_total",
				Help:      "Commits rejected by the state store, by reason.",
			},
			[]string{"reason"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "statemesh",
				Subsystem: "runner",
				Name:      "turns_in_flight",
				Help:      "Turns currently being executed.",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.turns, m.turnDuration, m.commitFailures, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveTurn records the outcome of one turn.
func (m *Metrics) ObserveTurn(phase Phase, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(string(phase), status).Inc()
	m.turnDuration.WithLabelValues(status).Observe(d.Seconds())
}

// IncCommitFailure counts a failed COMMIT.
func (m *Metrics) IncCommitFailure(reason string) {
	if m == nil {
		return
	}
	m.commitFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) turnStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) turnFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}
