package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "merkledrop_distributor_build_info",
			Help: "Build information of the distributor service",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merkledrop_distributor_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "merkledrop_distributor_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "merkledrop_distributor_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Distribution operation metrics
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merkledrop_distributor_operations_total",
			Help: "Total number of distribution operations",
		},
		[]string{"op", "status"}, // op: "open", "set_window", "set_commitment", "claim", "withdraw", "close_claim"
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "merkledrop_distributor_operation_duration_seconds",
			Help:    "Duration of distribution operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"op"},
	)

	ClaimedAmountTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "merkledrop_distributor_claimed_amount_total",
			Help: "Total amount released to recipients across all distributions, in base units",
		},
	)

	WithdrawnAmountTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "merkledrop_distributor_withdrawn_amount_total",
			Help: "Total amount returned to creators at teardown, in base units",
		},
	)

	DistributionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "merkledrop_distributor_distributions_open",
			Help: "Number of distributions currently open",
		},
	)

	// Event sink metrics
	EventsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merkledrop_distributor_events_emitted_total",
			Help: "Total number of events handed to the event sink",
		},
		[]string{"kind"},
	)

	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "merkledrop_distributor_events_dropped_total",
			Help: "Total number of events dropped because the sink buffer was full",
		},
	)

	EventFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merkledrop_distributor_event_flushes_total",
			Help: "Total number of event sink flushes to ClickHouse",
		},
		[]string{"status"},
	)

	EventRowsWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "merkledrop_distributor_event_rows_written_total",
			Help: "Total number of event rows written to ClickHouse",
		},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// RecordOperation records outcome and duration for a distribution operation.
func RecordOperation(op string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	OperationsTotal.WithLabelValues(op, status).Inc()
	OperationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordEventFlush records the outcome of one sink flush.
func RecordEventFlush(rows int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	EventFlushesTotal.WithLabelValues(status).Inc()
	if err == nil {
		EventRowsWrittenTotal.Add(float64(rows))
	}
}
