// Package middleware provides the HTTP middleware stack for the web server.
package middleware

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/nem2sql/internal/logging"
)

// Logger emits one structured log line per request: method, path, status,
// response size, latency, client IP, and user agent. The chi request ID is
// attached through logging.FromContext so the line can be correlated with
// anything the handler logged.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		// TrustedRealIP runs earlier and rewrites RemoteAddr when the
		// peer is a trusted proxy, so RemoteAddr is already the client.
		ip := r.RemoteAddr
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			ip = realIP
		}

		logging.FromContext(r.Context()).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", ip,
			"user_agent", r.UserAgent(),
		)
	})
}

// statusRecorder captures the status code and body size for the log line.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Unwrap exposes the wrapped writer so http.ResponseController can reach
// Flusher for SSE responses.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
