package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RouteMetricsConfig selects which inbound metrics are collected.
type RouteMetricsConfig struct {
	Namespace        string
	Subsystem        string
	EnableLatency    bool // request duration histogram
	EnableThroughput bool // response size histogram
	EnableQPS        bool // request counter
	EnableErrors     bool // counter of responses with status >= 400
}

// RouteMetrics collects inbound request metrics labelled by route pattern,
// never by raw path, to keep label cardinality bounded.
type RouteMetrics struct {
	config    RouteMetricsConfig
	inflight  prometheus.Gauge
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	respBytes *prometheus.HistogramVec
}

// NewRouteMetrics creates the inbound collectors enabled in config and
// registers them with reg.
func NewRouteMetrics(reg prometheus.Registerer, config RouteMetricsConfig) (*RouteMetrics, error) {
	m := &RouteMetrics{config: config}
	var err error

	m.inflight, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "http_inflight_requests",
		Help:      "Current number of in-flight HTTP requests",
	}))
	if err != nil {
		return nil, err
	}

	if config.EnableQPS {
		m.requests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}))
		if err != nil {
			return nil, err
		}
	}

	if config.EnableErrors {
		m.errors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "http_errors_total",
			Help:      "Total HTTP responses with status >= 400 by method, route, and status",
		}, []string{"method", "route", "status"}))
		if err != nil {
			return nil, err
		}
	}

	if config.EnableLatency {
		m.latency, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "Request latency by method and route",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}))
		if err != nil {
			return nil, err
		}
	}

	if config.EnableThroughput {
		m.respBytes, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "http_response_size_bytes",
			Help:      "Response size by method and route",
			Buckets:   []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304},
		}, []string{"method", "route"}))
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Middleware returns a middleware recording metrics for requests served by
// the route registered under the given pattern.
func (m *RouteMetrics) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.inflight.Inc()
			defer m.inflight.Dec()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			if m.requests != nil {
				m.requests.WithLabelValues(r.Method, route, status).Inc()
			}
			if m.errors != nil && rw.statusCode >= 400 {
				m.errors.WithLabelValues(r.Method, route, status).Inc()
			}
			if m.latency != nil {
				m.latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			}
			if m.respBytes != nil {
				m.respBytes.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
			}
		})
	}
}

// responseWriter captures the status code and the number of bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Flush calls the underlying ResponseWriter.Flush if it implements http.Flusher.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
