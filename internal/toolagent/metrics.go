package toolagent

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammad-safakhou/sourcer/internal/discovery"
)

// Metrics holds the agent's collectors. A nil *Metrics records nothing.
type Metrics struct {
	steps     prometheus.Histogram
	runs      *prometheus.CounterVec
	toolCalls *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		steps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "toolagent_steps",
			Help:    "Planner steps taken per tool-driven run.",
			Buckets: []float64{1, 2, 4, 6, 8, 12, 16, 20, 25},
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolagent_runs_total",
			Help: "Tool-driven runs by terminal status.",
		}, []string{"status"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolagent_tool_calls_total",
			Help: "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.steps, m.runs, m.toolCalls)
	}
	return m
}

func (m *Metrics) run(status discovery.Status, steps int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
	m.steps.Observe(float64(steps))
}

func (m *Metrics) toolCall(tool string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}
