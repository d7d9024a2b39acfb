// Package metrics holds the Prometheus collectors for a sentiment run.
//
// Every method is safe to call on a nil *Metrics, so components can take metrics as an
// optional dependency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sentiment"

// Metrics groups the collectors used by fetcher, extractor and pipeline.
type Metrics struct {
	fetchAttempts  prometheus.Counter
	fetchResults   *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	cacheLookups   *prometheus.CounterVec
	robotsChecks   *prometheus.CounterVec
	extractions    *prometheus.CounterVec
	verdicts       *prometheus.CounterVec
	evidenceByPole *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetchAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "HTTP GET attempts issued for pages, including retries.",
		}),
		fetchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_results_total",
			Help:      "Fetch outcomes by result.",
		}, []string{"result"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Wall time of a fetch including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Page cache lookups by result.",
		}, []string{"result"}),
		robotsChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "robots_checks_total",
			Help:      "robots.txt decisions by result.",
		}, []string{"result"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Documents extracted, by winning strategy.",
		}, []string{"strategy"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Verdicts produced, by status.",
		}, []string{"status"}),
		evidenceByPole: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evidence_sentences_total",
			Help:      "Relevant scored sentences, by polarity.",
		}, []string{"polarity"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.fetchAttempts,
			m.fetchResults,
			m.fetchDuration,
			m.cacheLookups,
			m.robotsChecks,
			m.extractions,
			m.verdicts,
			m.evidenceByPole,
		)
	}
	return m
}

// FetchAttempt counts one outbound page GET.
func (m *Metrics) FetchAttempt() {
	if m == nil {
		return
	}
	m.fetchAttempts.Inc()
}

// FetchResult records the final outcome of a fetch and how long it took.
func (m *Metrics) FetchResult(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetchResults.WithLabelValues(result).Inc()
	m.fetchDuration.Observe(elapsed.Seconds())
}

// CacheLookup records "hit", "miss" or "error".
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RobotsCheck records "allowed", "disallowed" or "unavailable".
func (m *Metrics) RobotsCheck(result string) {
	if m == nil {
		return
	}
	m.robotsChecks.WithLabelValues(result).Inc()
}

// Extraction records which strategy produced a document's text.
func (m *Metrics) Extraction(strategy string) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "none"
	}
	m.extractions.WithLabelValues(strategy).Inc()
}

// Verdict records a finished run.
func (m *Metrics) Verdict(status string, positive, negative, neutral int) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(status).Inc()
	m.evidenceByPole.WithLabelValues("positive").Add(float64(positive))
	m.evidenceByPole.WithLabelValues("negative").Add(float64(negative))
	m.evidenceByPole.WithLabelValues("neutral").Add(float64(neutral))
}
