package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served.",
		},
		[]string{"route", "method", "status"},
	)
	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

func observeHTTPRequest(r *http.Request, status int, dur time.Duration) {
	route := routeLabel(r.URL.Path)
	method := r.Method

	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(route, method).Observe(dur.Seconds())
}

// routeLabel collapses paths with embedded IDs into stable label values to
// keep metric cardinality bounded.
func routeLabel(path string) string {
	switch path {
	case "/":
		return "index"
	case "/api/conversions":
		return "api_conversions"
	case "/api/preview":
		return "api_preview"
	case "/api/history":
		return "api_history"
	case "/api/queue":
		return "api_queue"
	case "/healthz":
		return "healthz"
	case "/metrics":
		return "metrics"
	}

	if strings.HasPrefix(path, "/api/conversions/") {
		switch {
		case strings.HasSuffix(path, "/events"):
			return "api_conversion_events"
		case strings.HasSuffix(path, "/readings"):
			return "api_conversion_readings"
		case strings.HasSuffix(path, "/sql"):
			return "api_conversion_sql"
		default:
			return "api_conversion"
		}
	}
	if strings.HasPrefix(path, "/admin/") {
		return "admin"
	}
	return "other"
}

// metricsMiddleware records request counts and latency for every route.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		observeHTTPRequest(r, sw.status, time.Since(start))
	})
}

// statusWriter captures the response status for metric labels.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach Flusher for SSE responses.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
