package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the signal engine.
type Metrics struct {
	BatchRunsTotal  prometheus.Counter
	BatchDuration   prometheus.Histogram
	BatchItemsTotal *prometheus.CounterVec // labels: status

	SignalRecordsTotal prometheus.Counter
	ProviderFetchDur   prometheus.Histogram

	BarCacheHits   prometheus.Counter
	BarCacheMisses prometheus.Counter

	ImageRendersTotal *prometheus.CounterVec // labels: outcome

	WSClients prometheus.Gauge

	AnomaliesFlaggedTotal prometheus.Counter
	TelegramAlertsTotal   prometheus.Counter
}

// NewMetrics registers and returns all Prometheus collectors. Call it once
// per process; registration is global.
func NewMetrics() *Metrics {
	m := &Metrics{
		BatchRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swingtrader_batch_runs_total",
			Help: "Signal batch runs started",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "swingtrader_batch_duration_seconds",
			Help:    "Wall time of a full signal batch run",
			Buckets: prometheus.DefBuckets,
		}),
		BatchItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swingtrader_batch_items_total",
			Help: "Per-instrument batch outcomes by status",
		}, []string{"status"}),

		SignalRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swingtrader_signal_records_total",
			Help: "Signal records generated",
		}),
		ProviderFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "swingtrader_provider_fetch_duration_seconds",
			Help:    "Market data provider request latency",
			Buckets: prometheus.DefBuckets,
		}),

		BarCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swingtrader_bar_cache_hits_total",
			Help: "Bar series served from Redis",
		}),
		BarCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swingtrader_bar_cache_misses_total",
			Help: "Bar series fetched from the provider",
		}),

		ImageRendersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swingtrader_signal_image_renders_total",
			Help: "Signal chart renders by outcome",
		}, []string{"outcome"}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swingtrader_ws_clients",
			Help: "Connected WebSocket clients",
		}),

		AnomaliesFlaggedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swingtrader_anomalies_flagged_total",
			Help: "Bars flagged by the isolation forest",
		}),
		TelegramAlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swingtrader_telegram_alerts_total",
			Help: "High-probability alerts pushed to Telegram",
		}),
	}

	prometheus.MustRegister(
		m.BatchRunsTotal,
		m.BatchDuration,
		m.BatchItemsTotal,
		m.SignalRecordsTotal,
		m.ProviderFetchDur,
		m.BarCacheHits,
		m.BarCacheMisses,
		m.ImageRendersTotal,
		m.WSClients,
		m.AnomaliesFlaggedTotal,
		m.TelegramAlertsTotal,
	)

	return m
}

// Handler exposes the default registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
