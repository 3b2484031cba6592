// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics counts pipeline outcomes on a private Prometheus registry.
// A batch run has no scrape endpoint, so the registry is written to a
// node-exporter textfile when the run ends.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeOK     = "ok"
	OutcomeError  = "error"
	OutcomeCached = "cached"
)

// Metrics provides observability for one pipeline run. All methods are safe
// to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Search calls by provider and outcome
	Searches *prometheus.CounterVec

	// Search latency by provider
	SearchLatency *prometheus.HistogramVec

	// Publications returned by search
	Publications prometheus.Counter

	// Classifications by outcome: ok, error, cached
	Classifications *prometheus.CounterVec

	// Classifier call latency
	ClassifyLatency prometheus.Histogram

	// Rows written, by flagged=yes|no
	Rows *prometheus.CounterVec

	// Skipped units of work by stage
	Skips *prometheus.CounterVec

	// Wall-clock duration of the last run
	RunDuration prometheus.Gauge
}

// New creates a Metrics instance with every metric registered on a fresh
// private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "disclosure_search_requests_total",
			Help: "Literature searches by provider and outcome",
		}, []string{"provider", "outcome"}),

		SearchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "disclosure_search_duration_seconds",
			Help:    "Duration of one researcher search including fetch",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),

		Publications: f.NewCounter(prometheus.CounterOpts{
			Name: "disclosure_publications_total",
			Help: "Publications returned by searches",
		}),

		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "disclosure_classifications_total",
			Help: "Publication classifications by outcome",
		}, []string{"outcome"}),

		ClassifyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "disclosure_classify_duration_seconds",
			Help:    "Duration of one classifier call including retries",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		Rows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "disclosure_report_rows_total",
			Help: "Report rows by flagged status",
		}, []string{"flagged"}),

		Skips: f.NewCounterVec(prometheus.CounterOpts{
			Name: "disclosure_skips_total",
			Help: "Units of work skipped by stage",
		}, []string{"stage"}),

		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "disclosure_run_duration_seconds",
			Help: "Wall-clock duration of the last pipeline run",
		}),
	}
}

// ObserveSearch records one search call.
func (m *Metrics) ObserveSearch(provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.Searches.WithLabelValues(provider, outcome).Inc()
	m.SearchLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// AddPublications counts publications returned by a search.
func (m *Metrics) AddPublications(n int) {
	if m != nil {
		m.Publications.Add(float64(n))
	}
}

// ObserveClassify records one classifier call.
func (m *Metrics) ObserveClassify(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.Classifications.WithLabelValues(outcome).Inc()
	m.ClassifyLatency.Observe(d.Seconds())
}

// IncrementCached records an analysis served from the cache.
func (m *Metrics) IncrementCached() {
	if m != nil {
		m.Classifications.WithLabelValues(OutcomeCached).Inc()
	}
}

// IncrementRow records a report row.
func (m *Metrics) IncrementRow(flagged bool) {
	if m == nil {
		return
	}
	label := "no"
	if flagged {
		label = "yes"
	}
	m.Rows.WithLabelValues(label).Inc()
}

// IncrementSkip records a skipped unit of work.
func (m *Metrics) IncrementSkip(stage string) {
	if m != nil {
		m.Skips.WithLabelValues(stage).Inc()
	}
}

// SetRunDuration records the run's wall-clock duration.
func (m *Metrics) SetRunDuration(d time.Duration) {
	if m != nil {
		m.RunDuration.Set(d.Seconds())
	}
}

// Registry returns the private registry, for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes every metric to path in the Prometheus text format,
// for the node-exporter textfile collector. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}
