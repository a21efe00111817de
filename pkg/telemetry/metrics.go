// Package telemetry exports growth runs as Prometheus metrics.
//
// Metrics are registered on a caller-supplied registry so that tests and
// embedders do not collide with the global one. Each run gets its own
// growth.Recorder labelled with the run ID.
//
// Example Usage:
//
//	reg := prometheus.NewRegistry()
//	metrics := telemetry.NewMetrics(reg, "rhizome")
//
//	engine, _ := growth.New(cfg, field, growth.WithRecorder(metrics.ForRun(runID)))
//	http.Handle("/metrics", telemetry.Handler(reg))
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orneryd/rhizome/pkg/growth"
)

// Metrics holds the growth collectors.
type Metrics struct {
	Ticks        *prometheus.CounterVec
	TickDuration prometheus.Histogram
	Created      *prometheus.CounterVec
	Blocked      *prometheus.CounterVec
	Branched     *prometheus.CounterVec
	Adaptations  *prometheus.CounterVec
	Evictions    *prometheus.CounterVec
	Patterns     *prometheus.CounterVec

	Nodes            *prometheus.GaugeVec
	Connections      *prometheus.GaugeVec
	Frontier         *prometheus.GaugeVec
	SemanticDensity  *prometheus.GaugeVec
	VisualComplexity *prometheus.GaugeVec
	CognitiveLoad    *prometheus.GaugeVec
}

// =============================================================================
// Construction
// =============================================================================

// NewMetrics registers the growth collectors on reg under namespace.
// Registering twice on the same registry panics.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "growth",
			Name:      name,
			Help:      help,
		}, labels)
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "growth",
			Name:      name,
			Help:      help,
		}, []string{"run"})
	}

	return &Metrics{
		Ticks:    counter("ticks_total", "Ticks completed", "run"),
		Created:  counter("nodes_created_total", "Nodes created", "run"),
		Blocked:  counter("blocked_total", "Candidates rejected by the intersection test", "run"),
		Branched: counter("branches_total", "Semantic branches created", "run"),
		Adaptations: counter("adaptations_total",
			"Adaptation passes run", "run"),
		Evictions: counter("evictions_total",
			"Items removed by the resource governor", "resource"),
		Patterns: counter("patterns_total", "Patterns detected", "kind"),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "growth",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of a single tick",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		Nodes:            gauge("nodes", "Live nodes"),
		Connections:      gauge("connections", "Live connections"),
		Frontier:         gauge("frontier", "Nodes that grow next tick"),
		SemanticDensity:  gauge("semantic_density", "Non-neutral connections per node"),
		VisualComplexity: gauge("visual_complexity", "Mean connection curvature"),
		CognitiveLoad:    gauge("cognitive_load", "Mean recent cognitive load"),
	}
}

// Handler serves the metrics gathered by reg.
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// =============================================================================
// Per-run recording
// =============================================================================

// runRecorder records TickReports for one run. Label lookups are resolved
// once at creation.
type runRecorder struct {
	m *Metrics

	ticks, created, blocked, branched, adaptations prometheus.Counter

	nodes, connections, frontier prometheus.Gauge
	density, complexity, load    prometheus.Gauge
}

// ForRun returns a growth.Recorder whose series carry run=runID.
func (m *Metrics) ForRun(runID string) growth.Recorder {
	return &runRecorder{
		m:           m,
		ticks:       m.Ticks.WithLabelValues(runID),
		created:     m.Created.WithLabelValues(runID),
		blocked:     m.Blocked.WithLabelValues(runID),
		branched:    m.Branched.WithLabelValues(runID),
		adaptations: m.Adaptations.WithLabelValues(runID),
		nodes:       m.Nodes.WithLabelValues(runID),
		connections: m.Connections.WithLabelValues(runID),
		frontier:    m.Frontier.WithLabelValues(runID),
		density:     m.SemanticDensity.WithLabelValues(runID),
		complexity:  m.VisualComplexity.WithLabelValues(runID),
		load:        m.CognitiveLoad.WithLabelValues(runID),
	}
}

// Forget drops the gauge series of a finished run. Counters are kept.
func (m *Metrics) Forget(runID string) {
	for _, g := range []*prometheus.GaugeVec{
		m.Nodes, m.Connections, m.Frontier,
		m.SemanticDensity, m.VisualComplexity, m.CognitiveLoad,
	} {
		g.DeleteLabelValues(runID)
	}
}

func (r *runRecorder) ObserveTick(report growth.TickReport) {
	r.ticks.Inc()
	r.m.TickDuration.Observe(report.Duration.Seconds())
	r.created.Add(float64(report.Created))
	r.blocked.Add(float64(report.Blocked))
	r.branched.Add(float64(report.Branched + report.Avoidances))
	if report.Adapted {
		r.adaptations.Inc()
	}

	ev := report.Evictions
	for resource, n := range map[string]int{
		"nodes":        ev.Nodes,
		"connections":  ev.Connections,
		"trajectory":   ev.Trajectory,
		"collocations": ev.Collocations,
		"patterns":     ev.Patterns,
	} {
		if n > 0 {
			r.m.Evictions.WithLabelValues(resource).Add(float64(n))
		}
	}
	for _, p := range report.Patterns {
		r.m.Patterns.WithLabelValues(string(p.Kind)).Inc()
	}

	mt := report.Metrics
	r.nodes.Set(float64(mt.Nodes))
	r.connections.Set(float64(mt.Connections))
	r.frontier.Set(float64(mt.Frontier))
	r.density.Set(mt.SemanticDensity)
	r.complexity.Set(mt.VisualComplexity)
	r.load.Set(mt.CognitiveLoad)
}
