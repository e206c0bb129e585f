package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quake_notifier"

// Metrics holds the Prometheus counters, histograms, and gauges for the notification engine.
type Metrics struct {
	CyclesTotal       *prometheus.CounterVec // labels: outcome={completed,fetch_failed,skipped}
	CycleDuration     prometheus.Histogram
	DispatcherRunning prometheus.Gauge
	Watermark         prometheus.Gauge

	// Feed metrics.
	EventsFetched prometheus.Counter
	EventsNew     prometheus.Counter
	FeedDuration  prometheus.Histogram

	// Per-user and per-card delivery metrics.
	UsersProcessed  *prometheus.CounterVec // labels: outcome={no_match,delivered,partial,credential_missing,credential_invalid,directory_error,credential_error}
	CardsDelivered  *prometheus.CounterVec // labels: kind={single,bundled,cover}
	DeliveryErrors  *prometheus.CounterVec // labels: reason={credential_invalid,delivery_failed}
	DeliveryLatency prometheus.Histogram

	// Map image metrics.
	MapImages   *prometheus.CounterVec // labels: outcome={success,unavailable}
	MapCache    *prometheus.CounterVec // labels: result={hit,miss}
	MapDuration prometheus.Histogram
	MapEnabled  prometheus.Gauge
}

// NewMetrics creates and registers all engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.DispatcherRunning,
		m.Watermark,
		m.EventsFetched,
		m.EventsNew,
		m.FeedDuration,
		m.UsersProcessed,
		m.CardsDelivered,
		m.DeliveryErrors,
		m.DeliveryLatency,
		m.MapImages,
		m.MapCache,
		m.MapDuration,
		m.MapEnabled,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Dispatch cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete fetch-match-deliver cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		DispatcherRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatcher_running",
			Help:      "1 when the scheduler loop is active, 0 when shut down.",
		}),
		Watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watermark_timestamp_seconds",
			Help:      "Unix time of the last successful feed fetch.",
		}),
		EventsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_events_fetched_total",
			Help:      "Total earthquakes read from the feed.",
		}),
		EventsNew: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_events_new_total",
			Help:      "Total earthquakes newer than the watermark.",
		}),
		FeedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_fetch_duration_seconds",
			Help:      "Feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		UsersProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_processed_total",
			Help:      "Users processed per cycle by outcome.",
		}, []string{"outcome"}),
		CardsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cards_delivered_total",
			Help:      "Timeline cards delivered by kind.",
		}, []string{"kind"}),
		DeliveryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_errors_total",
			Help:      "Timeline card delivery failures by reason.",
		}, []string{"reason"}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Timeline insert request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		MapImages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "map_images_total",
			Help:      "Map image fetches by outcome.",
		}, []string{"outcome"}),
		MapCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "map_cache_total",
			Help:      "Map image cache lookups by result.",
		}, []string{"result"}),
		MapDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "map_api_duration_seconds",
			Help:      "Mapbox static image request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		MapEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "map_images_enabled",
			Help:      "1 when map images are attached to cards, 0 otherwise.",
		}),
	}
}
