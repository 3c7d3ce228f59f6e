// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	RowsMerged    prometheus.Counter
	RowsDropped   prometheus.Counter
	RowsInserted  prometheus.Counter
	SendsFailed   prometheus.Counter
	LikeRollbacks prometheus.Counter
	FeedResyncs   prometheus.Counter
	PersonaRuns   prometheus.Counter

	// Histograms (seconds)
	BulkLoadDuration prometheus.Observer
	InsertDuration   prometheus.Observer

	// Gauges
	WSClientsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RowsMerged = promauto.NewCounter(prometheus.CounterOpts{Name: "feed_rows_merged_total", Help: "Live rows merged into a feed store"})
		RowsDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "feed_rows_dropped_total", Help: "Live rows rejected by validation (empty content, scope mismatch, missing id)"})
		RowsInserted = promauto.NewCounter(prometheus.CounterOpts{Name: "feed_rows_inserted_total", Help: "Rows persisted via the dispatch endpoint"})
		SendsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "feed_sends_failed_total", Help: "Outbound sends rejected by the backend"})
		LikeRollbacks = promauto.NewCounter(prometheus.CounterOpts{Name: "feed_like_rollbacks_total", Help: "Optimistic like increments rolled back after backend failure"})
		FeedResyncs = promauto.NewCounter(prometheus.CounterOpts{Name: "feed_resyncs_total", Help: "Bulk-load resyncs triggered after a subscription gap"})
		PersonaRuns = promauto.NewCounter(prometheus.CounterOpts{Name: "persona_runs_total", Help: "Scheduled persona insert runs"})
		BulkLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "feed_bulk_load_duration_seconds", Help: "Bulk load duration seconds", Buckets: prometheus.DefBuckets})
		InsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "feed_insert_duration_seconds", Help: "Row insert duration seconds", Buckets: prometheus.DefBuckets})
		WSClientsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "feed_ws_clients", Help: "Currently connected WebSocket subscribers"})
	})
}

// The Count helpers tolerate an uninitialized registry so library code can
// call them unconditionally.

func CountRowMerged() {
	if RowsMerged != nil {
		RowsMerged.Inc()
	}
}

func CountRowDropped() {
	if RowsDropped != nil {
		RowsDropped.Inc()
	}
}

func CountRowInserted() {
	if RowsInserted != nil {
		RowsInserted.Inc()
	}
}

func CountSendFailed() {
	if SendsFailed != nil {
		SendsFailed.Inc()
	}
}

func CountLikeRollback() {
	if LikeRollbacks != nil {
		LikeRollbacks.Inc()
	}
}

func CountFeedResync() {
	if FeedResyncs != nil {
		FeedResyncs.Inc()
	}
}

func CountPersonaRun() {
	if PersonaRuns != nil {
		PersonaRuns.Inc()
	}
}

// SetWSClients records the current subscriber count.
func SetWSClients(n int) {
	if WSClientsGauge != nil {
		WSClientsGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
