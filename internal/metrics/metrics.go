// Package metrics exposes Prometheus collectors for the linkshelf service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	capturesTotal              *prometheus.CounterVec
	captureActiveWorkers       prometheus.Gauge
	captureQueueDepth          prometheus.Gauge
	titleResolutionsTotal      *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkshelf_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linkshelf_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		capturesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkshelf_captures_total",
				Help: "Total number of capture attempts, labeled by outcome.",
			},
			[]string{"status"},
		)

		captureActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "linkshelf_capture_active_workers",
				Help: "Number of capture workers currently processing a bookmark.",
			},
		)

		captureQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "linkshelf_capture_queue_depth",
				Help: "Number of capture jobs waiting for a worker.",
			},
		)

		titleResolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkshelf_title_resolutions_total",
				Help: "Total number of title lookups, labeled by result.",
			},
			[]string{"result"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveCapture increments the capture counter for the given status.
func ObserveCapture(status string) {
	Init()
	capturesTotal.WithLabelValues(status).Inc()
}

// ObserveTitle increments the title lookup counter for the given result.
func ObserveTitle(result string) {
	Init()
	titleResolutionsTotal.WithLabelValues(result).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	captureActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	captureActiveWorkers.Dec()
}

// SetQueueDepth records the number of pending capture jobs.
func SetQueueDepth(n int) {
	Init()
	captureQueueDepth.Set(float64(n))
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			routePattern = rctx.RoutePattern()
		}
		if routePattern == "" {
			routePattern = "unknown"
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
