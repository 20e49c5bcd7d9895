// Package metrics holds the Prometheus collectors of a solve.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/operator-framework/wcsp/internal/network"
	"github.com/operator-framework/wcsp/pkg/wcsp"
)

const namespace = "wcsp"

// Metrics counts search and propagation work. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Nodes      prometheus.Counter
	Backtracks prometheus.Counter
	Solutions  prometheus.Counter
	// Propagation counts revisions, projections, extensions and removals
	// by kind.
	Propagation *prometheus.CounterVec
	Lb          prometheus.Gauge
	Ub          prometheus.Gauge
	Duration    prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	r := prometheus.NewRegistry()
	f := promauto.With(r)
	return &Metrics{
		registry: r,
		Nodes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "nodes_total",
			Help:      "Search nodes explored",
		}),
		Backtracks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "backtracks_total",
			Help:      "Choice points released after a contradiction",
		}),
		Solutions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "solutions_total",
			Help:      "Improving solutions found",
		}),
		Propagation: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "propagation",
			Name:      "operations_total",
			Help:      "Propagation operations by kind",
		}, []string{"kind"}),
		Lb: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "lower_bound",
			Help:      "Global lower bound at the root",
		}),
		Ub: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "upper_bound",
			Help:      "Cost of the best solution found, or the initial bound",
		}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Solve duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Node() {
	if m != nil {
		m.Nodes.Inc()
	}
}

func (m *Metrics) Backtrack() {
	if m != nil {
		m.Backtracks.Inc()
	}
}

// Solution records an improving solution of the given cost.
func (m *Metrics) Solution(cost wcsp.Cost) {
	if m != nil {
		m.Solutions.Inc()
		m.Ub.Set(float64(cost))
	}
}

func (m *Metrics) Bounds(lb, ub wcsp.Cost) {
	if m != nil {
		m.Lb.Set(float64(lb))
		m.Ub.Set(float64(ub))
	}
}

func (m *Metrics) Observe(seconds float64) {
	if m != nil {
		m.Duration.Observe(seconds)
	}
}

// Stats adds the propagation counters accumulated since last.
func (m *Metrics) Stats(s, last network.Stats) {
	if m == nil {
		return
	}
	m.Propagation.WithLabelValues("revision").Add(float64(s.Revisions - last.Revisions))
	m.Propagation.WithLabelValues("projection").Add(float64(s.Projections - last.Projections))
	m.Propagation.WithLabelValues("extension").Add(float64(s.Extensions - last.Extensions))
	m.Propagation.WithLabelValues("removal").Add(float64(s.Removals - last.Removals))
}

// WriteFile writes the registry in the Prometheus text format.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
