// Package metrics provides Prometheus metrics for the relationship engine.
package metrics

import (
	"github.com/ersonp/relgraph/internal/domain/ports"
	"github.com/prometheus/client_golang/prometheus"
)

var _ ports.Recorder = (*Metrics)(nil)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// MutationsTotal tracks create/update/deactivate calls by outcome.
	MutationsTotal *prometheus.CounterVec
	// ViolationsTotal tracks rejected writes by rule.
	ViolationsTotal *prometheus.CounterVec
	// ScoringTotal tracks scoring hook outcomes.
	ScoringTotal *prometheus.CounterVec
	// TraversalVisited tracks how many nodes a walk visited.
	TraversalVisited *prometheus.HistogramVec
	// BulkItemsTotal tracks bulk items by outcome.
	BulkItemsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relgraph",
				Subsystem: "relationships",
				Name:      "mutations_total",
				Help:      "Total number of relationship mutations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		ViolationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relgraph",
				Subsystem: "validation",
				Name:      "violations_total",
				Help:      "Total number of validation violations by rule",
			},
			[]string{"rule"},
		),
		ScoringTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relgraph",
				Subsystem: "scoring",
				Name:      "calls_total",
				Help:      "Total number of scoring hook calls by outcome",
			},
			[]string{"outcome"},
		),
		TraversalVisited: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "relgraph",
				Subsystem: "traversal",
				Name:      "visited_nodes",
				Help:      "Number of nodes visited per traversal",
				Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
			},
			[]string{"kind"},
		),
		BulkItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relgraph",
				Subsystem: "bulk",
				Name:      "items_total",
				Help:      "Total number of bulk items by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.MutationsTotal, m.ViolationsTotal, m.ScoringTotal, m.TraversalVisited, m.BulkItemsTotal)
	}
	return m
}

// Mutation records one mutation outcome.
func (m *Metrics) Mutation(operation, outcome string) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(operation, outcome).Inc()
}

// Violation records one violated rule.
func (m *Metrics) Violation(rule string) {
	if m == nil {
		return
	}
	m.ViolationsTotal.WithLabelValues(rule).Inc()
}

// Scoring records one scoring outcome.
func (m *Metrics) Scoring(outcome string) {
	if m == nil {
		return
	}
	m.ScoringTotal.WithLabelValues(outcome).Inc()
}

// Traversal records the nodes visited by one walk.
func (m *Metrics) Traversal(kind string, visited int) {
	if m == nil {
		return
	}
	m.TraversalVisited.WithLabelValues(kind).Observe(float64(visited))
}

// BulkItem records one bulk item outcome.
func (m *Metrics) BulkItem(mode, outcome string) {
	if m == nil {
		return
	}
	m.BulkItemsTotal.WithLabelValues(mode, outcome).Inc()
}
