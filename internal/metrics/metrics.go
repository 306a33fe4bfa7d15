// Package metrics exposes Prometheus collectors for the link preview service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	thumbnailJobsTotal         *prometheus.CounterVec
	thumbnailBytesTotal        prometheus.Counter
	microlinkFetchTotal        *prometheus.CounterVec
	activeWorkers              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		thumbnailJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thumbnail_jobs_total",
				Help: "Total number of thumbnail jobs processed, labeled by outcome.",
			},
			[]string{"status"},
		)

		thumbnailBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "thumbnail_bytes_total",
				Help: "Total number of thumbnail bytes downloaded and stored.",
			},
		)

		microlinkFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microlink_fetch_total",
				Help: "Total number of microlink unfurl calls, labeled by response status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "thumbnail_active_workers",
				Help: "Number of workers currently processing a thumbnail job.",
			},
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

// ObserveThumbnailJob increments the job counter for the given outcome.
func ObserveThumbnailJob(status string) {
	Init()
	thumbnailJobsTotal.WithLabelValues(status).Inc()
}

// ObserveThumbnailBytes adds stored thumbnail bytes.
func ObserveThumbnailBytes(n int64) {
	Init()
	if n > 0 {
		thumbnailBytesTotal.Add(float64(n))
	}
}

// ObserveMicrolinkFetch counts one unfurl call.
func ObserveMicrolinkFetch(status string) {
	Init()
	if status == "" {
		status = "unknown"
	}
	microlinkFetchTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}
