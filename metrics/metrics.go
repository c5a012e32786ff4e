// Package metrics exposes prometheus instruments for the scrape pipeline.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "itk"

// Collection scopes for ObserveChunks.
const (
	ScopeEntity    = "entity"
	ScopeAggregate = "aggregate"
)

// Metrics holds the pipeline's counters and histograms.
type Metrics struct {
	fetches        *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	unattributed   prometheus.Counter
	chunks         *prometheus.CounterVec
	ingestFailures prometheus.Counter
	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
}

// New registers the pipeline metrics with reg.
// Passing prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Pages fetched, by the method that produced the document.",
		}, []string{"method"}),
		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time to produce a document for one URL.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
		unattributed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unattributed_documents_total",
			Help:      "Documents whose source matched no registered URL.",
		}),
		chunks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_chunks_total",
			Help:      "Chunks written to vector collections.",
		}, []string{"scope"}),
		ingestFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_failures_total",
			Help:      "Entities whose ingestion failed.",
		}),
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed scrape cycles, by outcome.",
		}, []string{"outcome"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a full scrape cycle.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

// ObserveFetch records one fetch outcome.
func (m *Metrics) ObserveFetch(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(method).Inc()
	m.fetchDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveUnattributed counts documents dropped during grouping.
func (m *Metrics) ObserveUnattributed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.unattributed.Add(float64(n))
}

// ObserveChunks counts chunks written to an entity or the aggregate collection.
func (m *Metrics) ObserveChunks(scope string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunks.WithLabelValues(scope).Add(float64(n))
}

// ObserveIngestFailure counts one failed entity.
func (m *Metrics) ObserveIngestFailure() {
	if m == nil {
		return
	}
	m.ingestFailures.Inc()
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(succeeded bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !succeeded {
		outcome = "failure"
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(d.Seconds())
}
