// Package metrics exposes the Prometheus registry for collectors, the rollup
// pipeline and the query layer.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Registry holds all perpscan metrics.
type Registry struct {
	registry *prometheus.Registry

	SnapshotsPersisted *prometheus.CounterVec
	FlushDuration      *prometheus.HistogramVec
	CollectorErrors    *prometheus.CounterVec
	Reconnects         *prometheus.CounterVec

	RollupDuration *prometheus.HistogramVec
	RollupRows     *prometheus.CounterVec

	UnifiedSynced  *prometheus.CounterVec
	RowsDropped    *prometheus.CounterVec
	MARowsWritten  prometheus.Counter
	ArbRowsWritten prometheus.Gauge

	RequestDuration *prometheus.HistogramVec
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
}

// NewRegistry creates and registers all metrics on a private registry.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		SnapshotsPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscan_snapshots_persisted_total",
			Help: "Snapshot rows persisted per venue",
		}, []string{"venue"}),

		FlushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perpscan_flush_duration_seconds",
			Help:    "Duration of buffer flushes per venue",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"venue"}),

		CollectorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscan_collector_errors_total",
			Help: "Transient collector errors per venue",
		}, []string{"venue"}),

		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscan_ws_reconnects_total",
			Help: "Websocket reconnect attempts per venue",
		}, []string{"venue"}),

		RollupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perpscan_rollup_duration_seconds",
			Help:    "Duration of rollup stages",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),

		RollupRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscan_rollup_rows_total",
			Help: "Aggregate rows written per rollup stage",
		}, []string{"stage"}),

		UnifiedSynced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscan_unified_rows_synced_total",
			Help: "Rows ingested into the unified table per venue",
		}, []string{"venue"}),

		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscan_rows_dropped_total",
			Help: "Rows dropped by data-quality filters",
		}, []string{"filter"}),

		MARowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpscan_ma_rows_written_total",
			Help: "Moving-average rows written",
		}),

		ArbRowsWritten: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpscan_arbitrage_rows",
			Help: "Arbitrage rows in the last rebuild",
		}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perpscan_http_request_duration_seconds",
			Help:    "API request durations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"endpoint", "status"}),

		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscan_cache_hits_total",
			Help: "Response-cache hits per endpoint",
		}, []string{"endpoint"}),

		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpscan_cache_misses_total",
			Help: "Response-cache misses per endpoint",
		}, []string{"endpoint"}),
	}

	r.registry.MustRegister(
		r.SnapshotsPersisted, r.FlushDuration, r.CollectorErrors, r.Reconnects,
		r.RollupDuration, r.RollupRows,
		r.UnifiedSynced, r.RowsDropped, r.MARowsWritten, r.ArbRowsWritten,
		r.RequestDuration, r.CacheHits, r.CacheMisses,
	)
	return r
}

// Handler returns the /metrics HTTP handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Snapshot gathers current metric families keyed by name; used by the status
// command and tests.
func (r *Registry) Snapshot() (map[string]*dto.MetricFamily, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out, nil
}
