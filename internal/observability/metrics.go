package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "glacier_riskmap"

// Metrics holds the Prometheus counters, histograms, and gauges for the risk map service.
type Metrics struct {
	// Loader metrics.
	DataLoads      *prometheus.CounterVec // labels: outcome={success,error,rejected}
	FetchDuration  prometheus.Histogram
	RecordsLoaded  prometheus.Gauge
	RowsSkipped    prometheus.Counter
	BreakerState   prometheus.Gauge
	RefreshRunning prometheus.Gauge

	// View and map metrics.
	StaleLoadsDiscarded prometheus.Counter
	MapRenders          prometheus.Counter
	FilteredRecords     prometheus.Gauge

	// Alert publishing metrics.
	AlertsPublished    prometheus.Counter
	AlertPublishErrors prometheus.Counter

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={reverse}, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method={reverse}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={reverse}
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.DataLoads,
		m.FetchDuration,
		m.RecordsLoaded,
		m.RowsSkipped,
		m.BreakerState,
		m.RefreshRunning,
		m.StaleLoadsDiscarded,
		m.MapRenders,
		m.FilteredRecords,
		m.AlertsPublished,
		m.AlertPublishErrors,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DataLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_loads_total",
			Help:      "Glacier data load attempts by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of fetching and parsing the glacier data source.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		RecordsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_loaded",
			Help:      "Number of records in the current collection.",
		}),
		RowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Total source rows dropped during parsing.",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_breaker_state",
			Help:      "Data source circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
		RefreshRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "auto_refresh_running",
			Help:      "1 when the periodic refresh is active, 0 otherwise.",
		}),
		StaleLoadsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_loads_discarded_total",
			Help:      "Loads whose result was dropped because the view changed or closed meanwhile.",
		}),
		MapRenders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "map_renders_total",
			Help:      "Full rebuilds of the map layers.",
		}),
		FilteredRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "filtered_records",
			Help:      "Number of records matching the current filter.",
		}),
		AlertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_published_total",
			Help:      "High risk alerts written to the alert topic.",
		}),
		AlertPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_publish_errors_total",
			Help:      "Failed alert publish attempts.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when reverse geocoding enrichment is enabled, 0 otherwise.",
		}),
	}
}
