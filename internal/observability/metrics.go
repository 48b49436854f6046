package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the service: the HTTP request
// metrics plus counters for the settlement domain.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	movementsTotal  *prometheus.CounterVec
	creditConsumed  prometheus.Counter
	refundsTotal    *prometheus.CounterVec
}

// NewMetrics initialises the registry and all metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_stock_movements_total",
		Help: "Stock ledger movements by type.",
	}, []string{"type"})
	credit := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backoffice_store_credit_consumed_minor_total",
		Help: "Store credit consumed, in minor currency units.",
	})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_refunds_completed_total",
		Help: "Completed refunds by settlement method.",
	}, []string{"method"})
	registry.MustRegister(requests, duration, movements, credit, refunds)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		movementsTotal:  movements,
		creditConsumed:  credit,
		refundsTotal:    refunds,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// MovementPosted counts one stock ledger movement.
func (m *Metrics) MovementPosted(mtype string) {
	if m == nil {
		return
	}
	m.movementsTotal.WithLabelValues(mtype).Inc()
}

// CreditConsumed adds consumed store credit in minor units.
func (m *Metrics) CreditConsumed(amountMinor int64) {
	if m == nil || amountMinor <= 0 {
		return
	}
	m.creditConsumed.Add(float64(amountMinor))
}

// RefundCompleted counts one completed refund.
func (m *Metrics) RefundCompleted(method string) {
	if m == nil {
		return
	}
	m.refundsTotal.WithLabelValues(method).Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
