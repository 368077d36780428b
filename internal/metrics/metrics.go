// Package metrics provides Prometheus metrics for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "epiwatch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "epiwatch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks current in-flight requests
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "epiwatch",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

var (
	// SessionsIssued counts sessions created by successful logins
	SessionsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "epiwatch",
			Subsystem: "sessions",
			Name:      "issued_total",
			Help:      "Total number of sessions issued",
		},
	)

	// SessionValidations counts token validations by outcome
	// (valid, expired, not_found, inactive)
	SessionValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "epiwatch",
			Subsystem: "sessions",
			Name:      "validations_total",
			Help:      "Total number of session validations by outcome",
		},
		[]string{"outcome"},
	)

	// SessionsRevoked counts sessions removed by explicit logout or
	// administrative revocation
	SessionsRevoked = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "epiwatch",
			Subsystem: "sessions",
			Name:      "revoked_total",
			Help:      "Total number of sessions explicitly revoked",
		},
	)

	// SessionsReaped counts expired sessions removed by the reaper
	SessionsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "epiwatch",
			Subsystem: "sessions",
			Name:      "reaped_total",
			Help:      "Total number of expired sessions removed by the reaper",
		},
	)

	// LoginFailures counts refused login attempts
	LoginFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "epiwatch",
			Subsystem: "auth",
			Name:      "login_failures_total",
			Help:      "Total number of refused login attempts",
		},
	)
)

var (
	// DBConnectionsOpen tracks open database connections
	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "epiwatch",
			Subsystem: "db",
			Name:      "connections_open",
			Help:      "Number of open database connections",
		},
	)

	// DBConnectionsInUse tracks database connections currently in use
	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "epiwatch",
			Subsystem: "db",
			Name:      "connections_in_use",
			Help:      "Number of database connections currently in use",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "epiwatch",
			Subsystem: "db",
			Name:      "connections_idle",
			Help:      "Number of idle database connections",
		},
	)

	// DBReportConnectionsOpen tracks open connections on the reporting handle
	DBReportConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "epiwatch",
			Subsystem: "db",
			Name:      "report_connections_open",
			Help:      "Number of open connections on the reporting database handle",
		},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Middleware returns a chi middleware that records HTTP metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		path := getRoutePattern(r)

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// getRoutePattern returns the route pattern from chi context.
// Falls back to URL path if pattern not available.
func getRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
