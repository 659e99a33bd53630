package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
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
)

// Auth metrics
var (
	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	tokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_refreshes_total",
			Help: "Refresh token exchanges by outcome.",
		},
		[]string{"outcome"},
	)

	accountLocks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_account_locks_total",
		Help: "Accounts locked after repeated login failures.",
	})

	refreshTokensSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_tokens_swept_total",
		Help: "Expired refresh tokens removed by the sweep job.",
	})

	auditEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_events_dropped_total",
		Help: "Security events dropped because the audit queue was full.",
	})

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the IP rate limiter.",
		},
		[]string{"scope"},
	)
)

// Collectors lists every metric owned by this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginAttempts, tokenRefreshes, accountLocks,
		refreshTokensSwept, auditEventsDropped, rateLimited,
	}
}

// Init registers the metrics in the default registry.
func Init() {
	prometheus.MustRegister(Collectors()...)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveLogin(outcome string) {
	loginAttempts.WithLabelValues(outcome).Inc()
}

func ObserveRefresh(outcome string) {
	tokenRefreshes.WithLabelValues(outcome).Inc()
}

func ObserveAccountLock() {
	accountLocks.Inc()
}

func ObserveSweep(count int64) {
	refreshTokensSwept.Add(float64(count))
}

func ObserveAuditDrop() {
	auditEventsDropped.Inc()
}

func ObserveRateLimited(scope string) {
	rateLimited.WithLabelValues(scope).Inc()
}

// Instrument records request count, latency and in-flight requests. The path
// label is the chi route pattern so that URL parameters do not explode
// cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
