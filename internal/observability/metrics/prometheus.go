package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "formatter"

// Registry owns the process Prometheus collectors and serves /metrics.
type Registry struct {
	registry *prometheus.Registry

	Paginator *PaginatorMetrics
	Exports   *ExportMetrics
}

// NewRegistry creates a registry with Go runtime collectors and the export
// collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{
		registry:  reg,
		Paginator: NewPaginatorMetrics(reg),
		Exports:   NewExportMetrics(reg),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.registry }

// PaginatorMetrics tracks upstream page fetches and page-size backoff.
type PaginatorMetrics struct {
	pages    *prometheus.CounterVec
	records  prometheus.Counter
	duration prometheus.Histogram
	failures prometheus.Counter
	perPage  prometheus.Gauge
}

// NewPaginatorMetrics creates and registers paginator collectors.
func NewPaginatorMetrics(reg prometheus.Registerer) *PaginatorMetrics {
	m := &PaginatorMetrics{
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "pages_total",
			Help:      "Upstream pages fetched, by page size.",
		}, []string{"per_page"}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "records_total",
			Help:      "Records received from upstream.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "page_duration_seconds",
			Help:      "Latency of successful upstream page fetches.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "page_failures_total",
			Help:      "Failed upstream page fetches that triggered a page-size backoff.",
		}),
		perPage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "per_page",
			Help:      "Page size chosen after the most recent fetch.",
		}),
	}
	reg.MustRegister(m.pages, m.records, m.duration, m.failures, m.perPage)
	return m
}

// PageFetched records a successful fetch.
func (m *PaginatorMetrics) PageFetched(perPage, records int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(strconv.Itoa(perPage)).Inc()
	m.records.Add(float64(records))
	m.duration.Observe(elapsed.Seconds())
	m.perPage.Set(float64(perPage))
}

// PageFailed records a failed fetch and the reduced page size.
func (m *PaginatorMetrics) PageFailed(newPerPage int) {
	if m == nil {
		return
	}
	m.failures.Inc()
	m.perPage.Set(float64(newPerPage))
}

// ExportMetrics tracks export outcomes per format.
type ExportMetrics struct {
	completed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	bytes     *prometheus.CounterVec
}

// NewExportMetrics creates and registers export collectors.
func NewExportMetrics(reg prometheus.Registerer) *ExportMetrics {
	m := &ExportMetrics{
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exports",
			Name:      "completed_total",
			Help:      "Exports that reached a terminal state.",
		}, []string{"format", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exports",
			Name:      "duration_seconds",
			Help:      "Wall time from claim to terminal state.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}, []string{"format"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exports",
			Name:      "artifact_bytes_total",
			Help:      "Bytes of artifacts uploaded.",
		}, []string{"format"}),
	}
	reg.MustRegister(m.completed, m.duration, m.bytes)
	return m
}

// Completed records a terminal export.
func (m *ExportMetrics) Completed(format, status string, elapsed time.Duration, size int64) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(format, status).Inc()
	if elapsed > 0 {
		m.duration.WithLabelValues(format).Observe(elapsed.Seconds())
	}
	if size > 0 {
		m.bytes.WithLabelValues(format).Add(float64(size))
	}
}
