package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the workflow's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	runs           *prometheus.CounterVec
	sourceFailures *prometheus.CounterVec
	evaluations    *prometheus.CounterVec
	dropped        prometheus.Counter
	retries        prometheus.Histogram
	duration       prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_runs_total",
			Help: "Discovery sessions by terminal status.",
		}, []string{"status"}),
		sourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_source_failures_total",
			Help: "Candidate source calls that failed or timed out.",
		}, []string{"source"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_evaluations_total",
			Help: "Evaluation gate outcomes.",
		}, []string{"outcome"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discovery_candidates_dropped_total",
			Help: "Candidates dropped because they could not be normalized.",
		}),
		retries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "discovery_retries",
			Help:    "Relax-and-retry cycles per session.",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "discovery_run_duration_seconds",
			Help:    "Wall time of a discovery session.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.sourceFailures, m.evaluations, m.dropped, m.retries, m.duration)
	}
	return m
}

func (m *Metrics) run(status Status, retries int, seconds float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
	m.retries.Observe(float64(retries))
	m.duration.Observe(seconds)
}

func (m *Metrics) sourceFailure(source Provenance) {
	if m == nil {
		return
	}
	m.sourceFailures.WithLabelValues(string(source)).Inc()
}

func (m *Metrics) evaluation(outcome string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) droppedCandidates(n int) {
	if m == nil || n == 0 {
		return
	}
	m.dropped.Add(float64(n))
}
