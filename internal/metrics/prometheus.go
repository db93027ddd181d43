package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the prediction engine

var (
	// Feed call metrics
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridpicks_feed_calls_total",
			Help: "Total number of OpenF1 API calls",
		},
		[]string{"endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridpicks_feed_call_duration_seconds",
			Help:    "Duration of OpenF1 API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Database metrics
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridpicks_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "table", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridpicks_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridpicks_db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridpicks_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// Read-through cache metrics
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridpicks_cache_hits_total",
			Help: "Total number of read-through cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridpicks_cache_misses_total",
			Help: "Total number of read-through cache misses",
		},
	)

	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridpicks_cache_operation_duration_seconds",
			Help:    "Duration of cache operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// Calendar sync metrics
	SyncOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridpicks_sync_operations_total",
			Help: "Total number of calendar sync operations",
		},
		[]string{"type", "status"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridpicks_sync_duration_seconds",
			Help:    "Duration of calendar sync operations in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"type"},
	)

	RowsSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridpicks_rows_synced_total",
			Help: "Total number of meeting and session rows upserted from the feed",
		},
		[]string{"type"},
	)

	// Gate metrics
	GateOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridpicks_gate_outcomes_total",
			Help: "Availability gate decisions by outcome",
		},
		[]string{"outcome"},
	)

	// Scoring metrics
	PredictionsScoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridpicks_predictions_scored_total",
			Help: "Total number of predictions that received points",
		},
	)

	ScoringUnknownTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridpicks_scoring_unknown_total",
			Help: "Scoring attempts where no complete result was available yet",
		},
	)

	// Season cache metrics
	SeasonCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridpicks_season_cache_hits_total",
			Help: "Season score rows served without recomputation",
		},
	)

	SeasonRecomputesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridpicks_season_recomputes_total",
			Help: "Season score recomputations by cause",
		},
		[]string{"cause"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridpicks_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridpicks_system_uptime_seconds",
			Help: "System uptime in seconds",
		},
	)

	LastSuccessfulSync = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridpicks_last_successful_sync_timestamp",
			Help: "Timestamp of last successful sync operation",
		},
	)
)

// RecordAPICall records a feed call metric
func RecordAPICall(endpoint, status string, duration float64) {
	APICallsTotal.WithLabelValues(endpoint, status).Inc()
	APICallDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table, status string, duration float64) {
	DBQueriesTotal.WithLabelValues(operation, table, status).Inc()
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration)
}

// RecordCacheHit records a cache hit
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordCacheOperation records a cache operation duration
func RecordCacheOperation(operation string, duration float64) {
	CacheOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordSync records a sync operation and the number of rows it upserted
func RecordSync(syncType, status string, rows int, duration float64) {
	SyncOperationsTotal.WithLabelValues(syncType, status).Inc()
	SyncDuration.WithLabelValues(syncType).Observe(duration)

	if status == "success" {
		RowsSynced.WithLabelValues(syncType).Add(float64(rows))
		LastSuccessfulSync.SetToCurrentTime()
	}
}

// RecordGateOutcome records an availability decision
func RecordGateOutcome(outcome string) {
	GateOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordPredictionScored records a prediction receiving points
func RecordPredictionScored() {
	PredictionsScoredTotal.Inc()
}

// RecordScoringUnknown records a scoring attempt without a complete result
func RecordScoringUnknown() {
	ScoringUnknownTotal.Inc()
}

// RecordSeasonCacheHit records a season row served as-is
func RecordSeasonCacheHit() {
	SeasonCacheHitsTotal.Inc()
}

// RecordSeasonRecompute records a season total being recomputed
func RecordSeasonRecompute(cause string) {
	SeasonRecomputesTotal.WithLabelValues(cause).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(active, idle int32) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
