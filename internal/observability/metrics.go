package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	refreshBuckets      = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5}
	bodySizeBuckets     = []float64{100, 1024, 10240, 102400, 1048576}
)

// Load sources and results used as label values.
const (
	LoadSourceCatalog = "catalog"
	LoadSourceUpload  = "upload"

	LoadResultOK       = "ok"
	LoadResultNotFound = "not_found"
	LoadResultError    = "error"
)

// Metrics holds all Prometheus metric instruments for the editor.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Editor
	RefreshTotal             prometheus.Counter
	RefreshDuration          prometheus.Histogram
	LoadsTotal               *prometheus.CounterVec
	UploadParseFailuresTotal prometheus.Counter
	WidgetUpdatesTotal       *prometheus.CounterVec
	HintsEmittedTotal        *prometheus.CounterVec
	DownloadsTotal           prometheus.Counter
	SessionsActive           prometheus.Gauge

	// Catalog
	CatalogRecordsLoaded       prometheus.Gauge
	CatalogRecordsSkippedTotal prometheus.Counter
	CatalogReloadTotal         *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "editor_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "editor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "editor_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		RefreshTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "editor_refresh_total",
			Help: "Total number of output refreshes.",
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "editor_refresh_duration_seconds",
			Help:    "Time spent rebuilding the JSON and Markdown outputs.",
			Buckets: refreshBuckets,
		}),
		LoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "editor_loads_total",
			Help: "Total number of product loads by source and result.",
		}, []string{"source", "result"}),
		UploadParseFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "editor_upload_parse_failures_total",
			Help: "Total number of uploaded documents that failed to parse.",
		}),
		WidgetUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "editor_widget_updates_total",
			Help: "Total number of widget value updates.",
		}, []string{"field"}),
		HintsEmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "editor_hints_emitted_total",
			Help: "Total number of advisory hints attached to previews.",
		}, []string{"source"}),
		DownloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "editor_downloads_total",
			Help: "Total number of JSON documents downloaded.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "editor_sessions_active",
			Help: "Number of editor sessions created and not yet deleted.",
		}),

		CatalogRecordsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "editor_catalog_records_loaded",
			Help: "Number of product records in the active catalog snapshot.",
		}),
		CatalogRecordsSkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "editor_catalog_records_skipped_total",
			Help: "Total number of catalog files skipped because they failed to parse.",
		}),
		CatalogReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "editor_catalog_reload_total",
			Help: "Total catalog reloads.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSizeBytes,
		m.RefreshTotal,
		m.RefreshDuration,
		m.LoadsTotal,
		m.UploadParseFailuresTotal,
		m.WidgetUpdatesTotal,
		m.HintsEmittedTotal,
		m.DownloadsTotal,
		m.SessionsActive,
		m.CatalogRecordsLoaded,
		m.CatalogRecordsSkippedTotal,
		m.CatalogReloadTotal,
	)

	return m
}

// --- Recording helpers ---
// All helpers are safe to call on a nil *Metrics.

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, respSize int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordRefresh records one output refresh.
func (m *Metrics) RecordRefresh(duration time.Duration) {
	if m == nil {
		return
	}
	m.RefreshTotal.Inc()
	m.RefreshDuration.Observe(duration.Seconds())
}

// RecordLoad records a load attempt from source with the given result.
func (m *Metrics) RecordLoad(source, result string) {
	if m == nil {
		return
	}
	m.LoadsTotal.WithLabelValues(source, result).Inc()
	if source == LoadSourceUpload && result == LoadResultError {
		m.UploadParseFailuresTotal.Inc()
	}
}

// RecordWidgetUpdate records an update to the widget bound to field.
func (m *Metrics) RecordWidgetUpdate(field string) {
	if m == nil {
		return
	}
	m.WidgetUpdatesTotal.WithLabelValues(field).Inc()
}

// RecordHints records the hints attached to one preview, grouped by source.
func (m *Metrics) RecordHints(bySource map[string]int) {
	if m == nil {
		return
	}
	for source, n := range bySource {
		m.HintsEmittedTotal.WithLabelValues(source).Add(float64(n))
	}
}

// RecordDownload records a JSON download.
func (m *Metrics) RecordDownload() {
	if m == nil {
		return
	}
	m.DownloadsTotal.Inc()
}

// SessionCreated increments the active session gauge.
func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// SessionDeleted decrements the active session gauge.
func (m *Metrics) SessionDeleted() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// RecordCatalogLoad records the outcome of a catalog (re)load.
func (m *Metrics) RecordCatalogLoad(status string, loaded, skipped int) {
	if m == nil {
		return
	}
	m.CatalogReloadTotal.WithLabelValues(status).Inc()
	if status == LoadResultOK {
		m.CatalogRecordsLoaded.Set(float64(loaded))
	}
	m.CatalogRecordsSkippedTotal.Add(float64(skipped))
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start), sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	pattern = strings.ReplaceAll(pattern, "/*/", "/")
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
