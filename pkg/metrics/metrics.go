// Package metrics defines the Prometheus collectors for docalign's pipeline
// instrumentation (spec.md §4.7: queue back-pressure, documents processed,
// DF pass/merge counters) and exposes an HTTP handler for scraping, the
// same New()-registers-everything / Handler()-returns-promhttp shape the
// teacher platform used for its own metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector docalign registers.
type Metrics struct {
	QueueOverflowTotal  *prometheus.CounterVec
	QueueUnderflowTotal *prometheus.CounterVec
	DocumentsProcessed  *prometheus.CounterVec
	BatchesProcessed    *prometheus.CounterVec
	DFPassesTotal       prometheus.Counter
	DFMergedNgramsTotal prometheus.Counter
	IndexMergeTotal     prometheus.Counter
	ScoredPairsTotal    prometheus.Counter
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	RunDuration         *prometheus.HistogramVec
}

// New creates and registers every docalign metric.
func New() *Metrics {
	m := &Metrics{
		QueueOverflowTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docalign_queue_overflow_total",
				Help: "Times a producer blocked pushing onto a full bounded queue, by queue name.",
			},
			[]string{"queue"},
		),
		QueueUnderflowTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docalign_queue_underflow_total",
				Help: "Times a consumer blocked popping from an empty bounded queue, by queue name.",
			},
			[]string{"queue"},
		),
		DocumentsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docalign_documents_processed_total",
				Help: "Documents read and processed, by pipeline stage.",
			},
			[]string{"stage"},
		),
		BatchesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docalign_batches_processed_total",
				Help: "Line batches processed, by pipeline stage.",
			},
			[]string{"stage"},
		),
		DFPassesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docalign_df_passes_total",
				Help: "Outer passes taken by the bounded-memory DF counter across all ComputeDF calls.",
			},
		),
		DFMergedNgramsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docalign_df_merged_ngrams_total",
				Help: "N-grams promoted from a pass's batch_df into the shared DF table.",
			},
		),
		IndexMergeTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docalign_index_merge_total",
				Help: "Thread-local posting map merges folded into the shared reference index.",
			},
		),
		ScoredPairsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docalign_scored_pairs_total",
				Help: "Document pairs emitted by the scorer that cleared the configured threshold.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docalign_df_cache_hits_total",
				Help: "Times a precomputed DF table was served from the Redis cache.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docalign_df_cache_misses_total",
				Help: "Times the DF cache had no entry and the table was recomputed.",
			},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docalign_run_duration_seconds",
				Help:    "Wall-clock duration of a full pipeline phase.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"phase"},
		),
	}

	prometheus.MustRegister(
		m.QueueOverflowTotal,
		m.QueueUnderflowTotal,
		m.DocumentsProcessed,
		m.BatchesProcessed,
		m.DFPassesTotal,
		m.DFMergedNgramsTotal,
		m.IndexMergeTotal,
		m.ScoredPairsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RunDuration,
	)

	return m
}

// Overflow records a producer blocking on a full queue. It satisfies
// internal/pipeline.Recorder structurally, without either package
// importing the other.
func (m *Metrics) Overflow(queue string) {
	m.QueueOverflowTotal.WithLabelValues(queue).Inc()
}

// Underflow records a consumer blocking on an empty queue.
func (m *Metrics) Underflow(queue string) {
	m.QueueUnderflowTotal.WithLabelValues(queue).Inc()
}

// ObserveBatch records one worker batch completed, and the documents it
// contained, for the given pipeline stage ("docfreq", "refindex",
// "scorer"). It satisfies an unexported statsRecorder interface in each of
// those packages structurally, the same way Overflow/Underflow satisfy
// internal/pipeline.Recorder.
func (m *Metrics) ObserveBatch(stage string, documents int) {
	m.BatchesProcessed.WithLabelValues(stage).Inc()
	m.DocumentsProcessed.WithLabelValues(stage).Add(float64(documents))
}

// IndexMerge records one worker's thread-local posting map folded into the
// shared reference index.
func (m *Metrics) IndexMerge() {
	m.IndexMergeTotal.Inc()
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
