package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	accessDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitetrack_access_decisions_total",
			Help: "Point access checks by resource kind and outcome.",
		},
		[]string{"kind", "result"},
	)

	auditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sitetrack_audit_write_failures_total",
		Help: "Audit entries that could not be persisted.",
	})

	mapSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sitetrack_map_stream_subscribers",
		Help: "Open map feed subscriptions.",
	})
)

// Init registers the collectors in the default registry. Safe to call more
// than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			accessDecisions, auditWriteFailures, mapSubscribers,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAccessDecision counts one point access check.
func ObserveAccessDecision(kind string, allowed bool, err error) {
	result := "deny"
	switch {
	case err != nil:
		result = "error"
	case allowed:
		result = "allow"
	}
	accessDecisions.WithLabelValues(kind, result).Inc()
}

// AuditWriteFailed counts an audit entry lost to a store failure.
func AuditWriteFailed() {
	auditWriteFailures.Inc()
}

// MapSubscribers tracks the number of open map feed subscriptions.
func MapSubscribers(delta float64) {
	mapSubscribers.Add(delta)
}

// Instrument records request count, latency and in-flight gauge.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath replaces identifiers in known routes with :id so metric
// labels stay bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return raw
	}
	switch parts[1] {
	case "projects":
		if len(parts) == 3 {
			return "/v1/projects/:id"
		}
	case "tasks":
		if len(parts) == 3 {
			return "/v1/tasks/:id"
		}
		if len(parts) == 4 && parts[3] == "comments" {
			return "/v1/tasks/:id/comments"
		}
	}
	return raw
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working behind the instrumentation wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
