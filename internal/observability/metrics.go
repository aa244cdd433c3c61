// Package observability exposes prometheus metrics for synthesis runs.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signalbrief"

// Metrics holds the collectors for one registry. A nil *Metrics is valid
// and records nothing, so library callers can skip metrics entirely.
type Metrics struct {
	registry *prometheus.Registry

	runs               *prometheus.CounterVec
	runDuration        prometheus.Histogram
	eventsEnriched     *prometheus.CounterVec
	enrichmentMisses   prometheus.Counter
	urlsRepaired       prometheus.Counter
	generatorAttempts  *prometheus.CounterVec
	recoveryResults    *prometheus.CounterVec
	coverage           prometheus.Histogram
	blockedFiltered    prometheus.Counter
	promptTruncations  prometheus.Counter
	persistenceFailure *prometheus.CounterVec
}

// NewMetrics creates and registers every collector on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Synthesis runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a synthesis run.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}),
		eventsEnriched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_enriched_total",
			Help:      "Events that received a source URL, by match strategy.",
		}, []string{"strategy"}),
		enrichmentMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_misses_total",
			Help:      "Events left without a URL after cross-referencing.",
		}),
		urlsRepaired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_development_urls_repaired_total",
			Help:      "Key developments whose URL was backfilled after generation.",
		}),
		generatorAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generator_attempts_total",
			Help:      "Generation attempts by HTTP status (0 for success or unknown).",
		}, []string{"status"}),
		recoveryResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_results_total",
			Help:      "Parsed generator replies by recovery strategy.",
		}, []string{"strategy", "degraded"}),
		coverage: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "coverage_percentage",
			Help:      "Share of monitoring targets reflected in the brief.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		blockedFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_source_articles_total",
			Help:      "Articles dropped because their source is blocked.",
		}),
		promptTruncations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_truncations_total",
			Help:      "Prompts that exceeded the size limit and were truncated.",
		}),
		persistenceFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Failed writes to the persistence sink, by target.",
		}, []string{"target"}),
	}

	m.registry.MustRegister(
		m.runs,
		m.runDuration,
		m.eventsEnriched,
		m.enrichmentMisses,
		m.urlsRepaired,
		m.generatorAttempts,
		m.recoveryResults,
		m.coverage,
		m.blockedFiltered,
		m.promptTruncations,
		m.persistenceFailure,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RunFinished records the outcome and duration of one run
func (m *Metrics) RunFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

// Enrichment records cross-reference results
func (m *Metrics) Enrichment(byStrategy map[string]int, missed int) {
	if m == nil {
		return
	}
	for strategy, n := range byStrategy {
		m.eventsEnriched.WithLabelValues(strategy).Add(float64(n))
	}
	m.enrichmentMisses.Add(float64(missed))
}

// Repaired records backfilled key development URLs
func (m *Metrics) Repaired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.urlsRepaired.Add(float64(n))
}

// GeneratorAttempt records a single generation attempt
func (m *Metrics) GeneratorAttempt(status int) {
	if m == nil {
		return
	}
	m.generatorAttempts.WithLabelValues(strconv.Itoa(status)).Inc()
}

// Recovery records which strategy produced the result
func (m *Metrics) Recovery(strategy string, degraded bool) {
	if m == nil {
		return
	}
	m.recoveryResults.WithLabelValues(strategy, strconv.FormatBool(degraded)).Inc()
}

// Coverage records the coverage percentage of a run
func (m *Metrics) Coverage(percentage float64) {
	if m == nil {
		return
	}
	m.coverage.Observe(percentage)
}

// BlockedFiltered records articles dropped for blocked sources
func (m *Metrics) BlockedFiltered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.blockedFiltered.Add(float64(n))
}

// PromptTruncated records one truncated prompt
func (m *Metrics) PromptTruncated() {
	if m == nil {
		return
	}
	m.promptTruncations.Inc()
}

// PersistenceFailed records a failed write to target
func (m *Metrics) PersistenceFailed(target string) {
	if m == nil {
		return
	}
	m.persistenceFailure.WithLabelValues(target).Inc()
}
