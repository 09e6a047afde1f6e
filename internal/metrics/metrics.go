package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "secreview"

// Metrics holds all pipeline collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Findings by stage and outcome
	findings  *prometheus.CounterVec
	decisions *prometheus.CounterVec

	// Parser
	parseStrategy *prometheus.CounterVec
	failedUnits   prometheus.Counter

	// Semantic filter upstream calls
	callDuration *prometheus.HistogramVec
	callErrors   *prometheus.CounterVec
	tokens       *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec

	runDuration prometheus.Histogram
}

// New registers every collector on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.findings = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "findings_total",
		Help:      "Findings leaving each pipeline stage, by terminal status",
	}, []string{"stage", "status"})
	m.decisions = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Decision records emitted, by stage",
	}, []string{"stage"})
	m.parseStrategy = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "parser",
		Name:      "recoveries_total",
		Help:      "Scan unit outputs parsed, by the strategy that succeeded",
	}, []string{"strategy"})
	m.failedUnits = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "parser",
		Name:      "failed_units_total",
		Help:      "Scan units whose output no strategy could recover",
	})
	m.callDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "semantic",
		Name:      "call_duration_seconds",
		Help:      "Duration of provider calls in seconds",
		Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"provider"})
	m.callErrors = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "semantic",
		Name:      "call_errors_total",
		Help:      "Failed provider calls, by error class",
	}, []string{"provider", "class"})
	m.tokens = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "semantic",
		Name:      "tokens_total",
		Help:      "Tokens consumed by provider calls",
	}, []string{"provider", "direction"})
	m.cacheLookups = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "semantic",
		Name:      "cache_lookups_total",
		Help:      "Verdict cache lookups, by result",
	}, []string{"result"})
	m.runDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a pipeline run in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Finding counts one finding reaching status at stage.
func (m *Metrics) Finding(stage, status string) {
	if m == nil {
		return
	}
	m.findings.WithLabelValues(stage, status).Inc()
}

// Decisions counts n decision records for stage.
func (m *Metrics) Decisions(stage string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.decisions.WithLabelValues(stage).Add(float64(n))
}

// Parsed records a successful parse and the strategy that produced it.
func (m *Metrics) Parsed(strategy string) {
	if m == nil {
		return
	}
	m.parseStrategy.WithLabelValues(strategy).Inc()
}

// UnitFailed records a scan unit isolated as malformed.
func (m *Metrics) UnitFailed() {
	if m == nil {
		return
	}
	m.failedUnits.Inc()
}

// Call records one provider call. class is empty on success.
func (m *Metrics) Call(provider string, d time.Duration, class string) {
	if m == nil {
		return
	}
	m.callDuration.WithLabelValues(provider).Observe(d.Seconds())
	if class != "" {
		m.callErrors.WithLabelValues(provider, class).Inc()
	}
}

// Tokens records token usage for one call.
func (m *Metrics) Tokens(provider string, input, output int) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(provider, "input").Add(float64(input))
	m.tokens.WithLabelValues(provider, "output").Add(float64(output))
}

// CacheLookup records a verdict cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Run records the wall time of one pipeline run.
func (m *Metrics) Run(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}

// WriteTextfile writes every collector in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
