// Package metrics provides Prometheus metrics for the aesthetic rating engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus metric the engine exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ingestion
	votesProcessed   *prometheus.CounterVec
	slidersProcessed prometheus.Counter
	firesProcessed   prometheus.Counter
	eventsDuplicate  prometheus.Counter

	// Selection
	matchupsServed       *prometheus.CounterVec
	duplicatesSuppressed prometheus.Counter
	duplicatesRelaxed    prometheus.Counter
	poolExhausted        prometheus.Counter
	selectionLatency     prometheus.Histogram

	// Recompute
	recomputesPublished  prometheus.Counter
	recomputeErrors      prometheus.Counter
	recomputeRequeues    prometheus.Counter
	recomputeBatchTiming prometheus.Histogram
	dirtySetDepth        prometheus.Gauge

	// Store
	trackedNFTs        prometheus.Gauge
	storeUpdateLatency prometheus.Histogram
	storeQueryLatency  prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry avoids the default registry's Go runtime collectors.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers every metric.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "taste",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.register()
	return m
}

func (m *Manager) register() {
	auto := promauto.With(m.registry)

	m.votesProcessed = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "votes_processed_total",
			Help:      "Head-to-head votes applied to ratings, by weight",
		},
		[]string{"weight"},
	)

	m.slidersProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sliders_processed_total",
		Help:      "Slider ratings applied to running statistics",
	})

	m.firesProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fires_processed_total",
		Help:      "Fire (favorite) taps recorded",
	})

	m.eventsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_duplicate_total",
		Help:      "Events rejected as duplicates by idempotency checks",
	})

	m.matchupsServed = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "matchups_served_total",
			Help:      "Matchups produced by the selector, by matchup type",
		},
		[]string{"type"},
	)

	m.duplicatesSuppressed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "matchup_duplicates_suppressed_total",
		Help:      "Selections retried because the pair was shown recently",
	})

	m.duplicatesRelaxed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "matchup_duplicates_relaxed_total",
		Help:      "Selections served inside the cooldown after retry exhaustion",
	})

	m.poolExhausted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "matchup_pool_exhausted_total",
		Help:      "Selection requests the candidate pool could not satisfy",
	})

	m.selectionLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "selection_latency_milliseconds",
		Help:      "Matchup selection latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.recomputesPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recomputes_published_total",
		Help:      "Aesthetic scores published by the recompute engine",
	})

	m.recomputeErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recompute_errors_total",
		Help:      "Recompute attempts that failed",
	})

	m.recomputeRequeues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recompute_requeues_total",
		Help:      "Dirty markers requeued after failed recomputation",
	})

	m.recomputeBatchTiming = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recompute_batch_duration_milliseconds",
		Help:      "Wall time per recompute batch in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.dirtySetDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dirty_set_depth",
		Help:      "NFTs currently awaiting score recomputation",
	})

	m.trackedNFTs = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tracked_nfts",
		Help:      "NFTs registered in the rating store",
	})

	m.storeUpdateLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_update_latency_milliseconds",
		Help:      "Rating store write latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_query_latency_milliseconds",
		Help:      "Rating store read latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint, method and status code",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// RecordVoteProcessed counts one applied vote of the given weight.
func RecordVoteProcessed(weight string) {
	globalManager.votesProcessed.WithLabelValues(weight).Inc()
}

// RecordSliderProcessed counts one applied slider rating.
func RecordSliderProcessed() {
	globalManager.slidersProcessed.Inc()
}

// RecordFireProcessed counts one recorded fire tap.
func RecordFireProcessed() {
	globalManager.firesProcessed.Inc()
}

// RecordEventDuplicate counts one duplicate event rejection.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordMatchupServed counts one served matchup of the given type.
func RecordMatchupServed(matchupType string) {
	globalManager.matchupsServed.WithLabelValues(matchupType).Inc()
}

// RecordDuplicateSuppressed counts one in-cooldown retry.
func RecordDuplicateSuppressed() {
	globalManager.duplicatesSuppressed.Inc()
}

// RecordDuplicateRelaxed counts one relaxed-cooldown serve.
func RecordDuplicateRelaxed() {
	globalManager.duplicatesRelaxed.Inc()
}

// RecordPoolExhausted counts one unsatisfiable selection request.
func RecordPoolExhausted() {
	globalManager.poolExhausted.Inc()
}

// RecordSelectionLatency records matchup selection latency in milliseconds.
func RecordSelectionLatency(latencyMs float64) {
	globalManager.selectionLatency.Observe(latencyMs)
}

// RecordRecomputePublished counts one published aesthetic score.
func RecordRecomputePublished() {
	globalManager.recomputesPublished.Inc()
}

// RecordRecomputeError counts one failed recompute attempt.
func RecordRecomputeError() {
	globalManager.recomputeErrors.Inc()
}

// RecordRecomputeRequeue counts one marker requeued after failure.
func RecordRecomputeRequeue() {
	globalManager.recomputeRequeues.Inc()
}

// RecordRecomputeBatchDuration records one batch's wall time in milliseconds.
func RecordRecomputeBatchDuration(durationMs float64) {
	globalManager.recomputeBatchTiming.Observe(durationMs)
}

// UpdateDirtySetDepth sets the current dirty-set depth.
func UpdateDirtySetDepth(depth int) {
	globalManager.dirtySetDepth.Set(float64(depth))
}

// UpdateTrackedNFTs sets the number of NFTs in the rating store.
func UpdateTrackedNFTs(count int) {
	globalManager.trackedNFTs.Set(float64(count))
}

// RecordStoreUpdateLatency records one store write latency in milliseconds.
func RecordStoreUpdateLatency(latencyMs float64) {
	globalManager.storeUpdateLatency.Observe(latencyMs)
}

// RecordStoreQueryLatency records one store read latency in milliseconds.
func RecordStoreQueryLatency(latencyMs float64) {
	globalManager.storeQueryLatency.Observe(latencyMs)
}

// RecordHTTPRequest counts one HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records one HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry returns the registry our metrics are registered on, for
// exposing via promhttp.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
