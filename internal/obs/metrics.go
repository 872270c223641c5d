package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
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

	authDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_denials_total",
			Help: "Authentication and authorization denials by reason.",
		},
		[]string{"reason"},
	)

	emailsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Outbound notification emails by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
		authDenialsTotal, emailsSentTotal)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountAuthDenial increments the denial counter for the given reason
// (revoked, rate_limited, invalid, too_old, disabled, forbidden, ...).
func CountAuthDenial(reason string) {
	authDenialsTotal.WithLabelValues(reason).Inc()
}

// CountEmail records an outbound email outcome (sent, failed, skipped).
func CountEmail(outcome string) {
	emailsSentTotal.WithLabelValues(outcome).Inc()
}

// CanonicalPath collapses resource identifiers in metric labels so path
// cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(segs) >= 2 && segs[0] == "uploads":
		return "/uploads/:file"
	case segs[0] != "api" || len(segs) < 3:
		return path
	}
	switch segs[1] {
	case "groups":
		if segs[2] == "join-requests" {
			return "/api/groups/join-requests/:request_id"
		}
		out := []string{"api", "groups", ":id"}
		if len(segs) >= 4 {
			out = append(out, segs[3])
			switch {
			case len(segs) == 5 && segs[3] == "members":
				out = append(out, ":user_id")
			case len(segs) == 5 && segs[3] == "join-requests":
				out = append(out, ":request_id")
			case len(segs) >= 5:
				return path
			}
		}
		return "/" + strings.Join(out, "/")
	case "invitations":
		switch segs[2] {
		case "validate", "join":
			return "/api/invitations/" + segs[2] + "/:token"
		case "group":
			return "/api/invitations/group/:id"
		case "my-invitations":
			return path
		}
		if len(segs) == 4 && segs[3] == "regenerate" {
			return "/api/invitations/:id/regenerate"
		}
		if len(segs) == 3 {
			return "/api/invitations/:id"
		}
		return path
	case "users":
		switch segs[2] {
		case "register", "profile", "groups", "notifications":
			return path
		}
		if len(segs) == 3 {
			return "/api/users/:id"
		}
		return path
	case "uploads":
		if len(segs) == 4 {
			return "/api/uploads/" + segs[2] + "/:id"
		}
		return path
	default:
		return path
	}
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter records the response code written by the wrapped handler.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
