package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

type CacheReadStatus string

const (
	CacheReadStatusHit      CacheReadStatus = "hit"
	CacheReadStatusMiss     CacheReadStatus = "miss"
	CacheReadStatusBadValue CacheReadStatus = "bad_value" // Value in cache was not valid (likely because of mismatched types / CBOR encoding).
	CacheReadStatusError    CacheReadStatus = "error"     // Other internal error reading from cache.
)

// ActivityKind labels how an activity unit was handled.
type ActivityKind string

const (
	ActivityNativeTransfer   ActivityKind = "native_transfer"
	ActivityTransferAll      ActivityKind = "transfer_all"
	ActivityEvmWithdraw      ActivityKind = "evm_withdraw"
	ActivityEvmCall          ActivityKind = "evm_call"
	ActivitySkippedFailed    ActivityKind = "skipped_failed"
	ActivitySkippedUnmatched ActivityKind = "skipped_unmatched"
	ActivitySkippedMalformed ActivityKind = "skipped_malformed"
)

// AnalysisMetrics is the instrumentation of one analyzer.
type AnalysisMetrics struct {
	// Name of the analyzer, or of the cache, that is being instrumented.
	name string

	// Counts of database operations
	databaseOperations *prometheus.CounterVec

	// Latencies of database operations.
	databaseLatencies *prometheus.HistogramVec

	// Cache hit rates for the local cache.
	localCacheReads *prometheus.CounterVec

	// Counts of processed activity units, by outcome.
	activities *prometheus.CounterVec

	// Latest fully processed height.
	processedHeight *prometheus.GaugeVec
}

// NewDefaultAnalysisMetrics creates Prometheus metric instrumentation
// for an analyzer (or cache) named `name`.
func NewDefaultAnalysisMetrics(name string) AnalysisMetrics {
	metrics := AnalysisMetrics{
		name: name,
		databaseOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_db_operations", name),
				Help: "How many database operations occur, partitioned by operation and status.",
			},
			[]string{"database", "operation", "status"}, // Labels.
		),
		databaseLatencies: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: fmt.Sprintf("%s_db_latencies", name),
				Help: "How long database operations take, partitioned by operation.",
			},
			[]string{"database", "operation"}, // Labels.
		),
		localCacheReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "local_cache_reads",
				Help: "How many local cache reads occur, partitioned by status (hit, miss, bad_data, error).",
			},
			[]string{"cache", "status"}, // Labels.
		),
		activities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_units",
				Help: "How many activity units were handled, partitioned by analyzer and kind.",
			},
			[]string{"analyzer", "kind"}, // Labels.
		),
		processedHeight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "processed_height",
				Help: "The latest block height committed by the analyzer.",
			},
			[]string{"analyzer"}, // Labels.
		),
	}
	metrics.databaseOperations = registerOnce(metrics.databaseOperations).(*prometheus.CounterVec)
	metrics.databaseLatencies = registerOnce(metrics.databaseLatencies).(*prometheus.HistogramVec)
	metrics.localCacheReads = registerOnce(metrics.localCacheReads).(*prometheus.CounterVec)
	metrics.activities = registerOnce(metrics.activities).(*prometheus.CounterVec)
	metrics.processedHeight = registerOnce(metrics.processedHeight).(*prometheus.GaugeVec)
	return metrics
}

// DatabaseOperations returns the counter for the database operation.
// The provided params are used as labels.
func (m *AnalysisMetrics) DatabaseOperations(db, operation, status string) prometheus.Counter {
	return m.databaseOperations.WithLabelValues(db, operation, status)
}

// DatabaseLatencies returns a new latency timer for the provided
// database operation.
// The provided params are used as labels.
func (m *AnalysisMetrics) DatabaseLatencies(db string, operation string) *prometheus.Timer {
	return prometheus.NewTimer(m.databaseLatencies.WithLabelValues(db, operation))
}

// LocalCacheReads returns the counter for the local cache read.
func (m *AnalysisMetrics) LocalCacheReads(status CacheReadStatus) prometheus.Counter {
	return m.localCacheReads.WithLabelValues(m.name, string(status))
}

// Activities returns the counter of activity units of the given kind.
func (m *AnalysisMetrics) Activities(kind ActivityKind) prometheus.Counter {
	return m.activities.WithLabelValues(m.name, string(kind))
}

// ProcessedHeight returns the gauge of the latest committed height.
func (m *AnalysisMetrics) ProcessedHeight() prometheus.Gauge {
	return m.processedHeight.WithLabelValues(m.name)
}
