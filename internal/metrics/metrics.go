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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkout_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	PurchaseOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_purchase_outcomes_total",
			Help: "Confirmed purchases by outcome (tickets or waitlisted)",
		},
		[]string{"outcome"},
	)

	WaitlistDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_waitlist_decisions_total",
			Help: "Waitlist entries decided, including no-show promotions",
		},
		[]string{"decision"},
	)

	NoShows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_no_shows_total",
			Help: "Tickets marked no-show",
		},
	)

	CapacityMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_capacity_mismatch_total",
			Help: "Checkouts whose server outcome disagreed with the client's capacity prediction",
		},
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_outbox_messages_total",
			Help: "Outbox publish attempts by result (sent, retry, dead)",
		},
		[]string{"result"},
	)

	ConsumedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_consumed_messages_total",
			Help: "Event snapshot messages consumed by routing key and result",
		},
		[]string{"routing_key", "result"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records HTTP RED metrics keyed by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
