package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/eldtechnologies/donut/internal/metrics"
)

// statusWriter wraps http.ResponseWriter to capture status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Metrics returns middleware that records Prometheus metrics.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(wrapped.status),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(duration)
	})
}

// knownPaths are the routes recorded verbatim; anything else is grouped.
var knownPaths = map[string]bool{
	"/":                      true,
	"/api":                   true,
	"/health":                true,
	"/metrics":               true,
	"/rounds/start":          true,
	"/rounds/remind":         true,
	"/rounds/summary":        true,
	"/rounds/latest/summary": true,
	"/slack/interactions":    true,
	"/admin/config":          true,
	"/admin/config/channel":  true,
	"/admin/config/interval": true,
	"/admin/avoid":           true,
}

// normalizePath normalizes paths to avoid high cardinality in metrics.
func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	return "other"
}
