package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quake_map"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	PipelineRunning   prometheus.Gauge
	CatalogReloads    prometheus.Counter
	CatalogLoadErrors prometheus.Counter
	LoadDuration      prometheus.Histogram
	QuakesLoaded      prometheus.Gauge
	QuakesRejected    prometheus.Gauge
	PlatesLoaded      prometheus.Gauge
	TimelineDays      prometheus.Gauge

	// Source fetch metrics.
	SourceFetches       *prometheus.CounterVec   // labels: source={quakes,plates}, outcome={success,error}
	SourceFetchDuration *prometheus.HistogramVec // labels: source={quakes,plates}
	SourceCache         *prometheus.CounterVec   // labels: result={hit,miss,error}

	// Timeline and playback metrics.
	FrameCache    *prometheus.CounterVec // labels: result={hit,miss}
	PlaybackTicks prometheus.Counter
	PlaybackState prometheus.Gauge // 0 stopped, 1 playing, 2 paused

	// Publishing metrics.
	QuakesPublished  prometheus.Counter
	FramesPublished  prometheus.Counter
	PublishErrors    *prometheus.CounterVec // labels: kind={quakes,frame}
	ExportsGenerated *prometheus.CounterVec // labels: format={csv,xls}
	ExportRows       prometheus.Histogram
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the load pipeline is active, 0 when shut down.",
		}),
		CatalogReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_reloads_total",
			Help:      "Total successful catalog replacements.",
		}),
		CatalogLoadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_load_errors_total",
			Help:      "Total failed load attempts.",
		}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of a complete fetch-decode-replace cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		QuakesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quakes_loaded",
			Help:      "Earthquakes in the current catalog.",
		}),
		QuakesRejected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quakes_rejected",
			Help:      "Features excluded from the current catalog for an invalid date or geometry.",
		}),
		PlatesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plates_loaded",
			Help:      "Plate boundary features in the current catalog.",
		}),
		TimelineDays: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "timeline_days",
			Help:      "Number of days on the current timeline.",
		}),
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Source document fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Source document fetch duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		SourceCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_cache_total",
			Help:      "Source cache lookups by result.",
		}, []string{"result"}),
		FrameCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_cache_total",
			Help:      "Timeline frame cache lookups by result.",
		}, []string{"result"}),
		PlaybackTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_ticks_total",
			Help:      "Total playback timer ticks.",
		}),
		PlaybackState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_state",
			Help:      "0 stopped, 1 playing, 2 paused.",
		}),
		QuakesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quakes_published_total",
			Help:      "Total earthquake events written to Kafka.",
		}),
		FramesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_published_total",
			Help:      "Total playback frames written to Kafka.",
		}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Kafka publish failures by kind.",
		}, []string{"kind"}),
		ExportsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Exports generated by format.",
		}, []string{"format"}),
		ExportRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_rows",
			Help:      "Rows written per export.",
			Buckets:   []float64{0, 10, 100, 500, 1000, 5000, 10000, 50000},
		}),
	}

	prometheus.MustRegister(
		m.PipelineRunning,
		m.CatalogReloads,
		m.CatalogLoadErrors,
		m.LoadDuration,
		m.QuakesLoaded,
		m.QuakesRejected,
		m.PlatesLoaded,
		m.TimelineDays,
		m.SourceFetches,
		m.SourceFetchDuration,
		m.SourceCache,
		m.FrameCache,
		m.PlaybackTicks,
		m.PlaybackState,
		m.QuakesPublished,
		m.FramesPublished,
		m.PublishErrors,
		m.ExportsGenerated,
		m.ExportRows,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		PipelineRunning:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pipeline_running"}),
		CatalogReloads:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "catalog_reloads_total"}),
		CatalogLoadErrors:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "catalog_load_errors_total"}),
		LoadDuration:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "load_duration_seconds"}),
		QuakesLoaded:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "quakes_loaded"}),
		QuakesRejected:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "quakes_rejected"}),
		PlatesLoaded:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "plates_loaded"}),
		TimelineDays:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "timeline_days"}),
		SourceFetches:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "source_fetches_total"}, []string{"source", "outcome"}),
		SourceFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "source_fetch_duration_seconds"}, []string{"source"}),
		SourceCache:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "source_cache_total"}, []string{"result"}),
		FrameCache:          prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "frame_cache_total"}, []string{"result"}),
		PlaybackTicks:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "playback_ticks_total"}),
		PlaybackState:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "playback_state"}),
		QuakesPublished:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "quakes_published_total"}),
		FramesPublished:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "frames_published_total"}),
		PublishErrors:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "publish_errors_total"}, []string{"kind"}),
		ExportsGenerated:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "exports_total"}, []string{"format"}),
		ExportRows:          prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "export_rows"}),
	}
}
