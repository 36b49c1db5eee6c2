// Package observability exposes the Prometheus metrics of the servicing
// engine.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	causationRuns   *prometheus.CounterVec
	causationLoans  *prometheus.CounterVec
	allocations     prometheus.Counter
	allocatedTotal  prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	causationRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_causation_runs_total",
		Help: "Completed causation runs by accrual kind.",
	}, []string{"kind"})
	causationLoans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_causation_loans_total",
		Help: "Loans handled by causation runs, by kind and outcome.",
	}, []string{"kind", "outcome"})
	allocations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_allocations_total",
		Help: "Payment events allocated.",
	})
	allocatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_allocated_amount_total",
		Help: "Total payment amount allocated, in currency units.",
	})
	registry.MustRegister(requests, duration, causationRuns, causationLoans, allocations, allocatedTotal)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		causationRuns:   causationRuns,
		causationLoans:  causationLoans,
		allocations:     allocations,
		allocatedTotal:  allocatedTotal,
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

// ObserveCausationRun records the outcome counters of one completed run.
func (m *Metrics) ObserveCausationRun(kind string, processed, skipped, exceptions int) {
	if m == nil {
		return
	}
	m.causationRuns.WithLabelValues(kind).Inc()
	m.causationLoans.WithLabelValues(kind, "processed").Add(float64(processed))
	m.causationLoans.WithLabelValues(kind, "skipped").Add(float64(skipped))
	m.causationLoans.WithLabelValues(kind, "exception").Add(float64(exceptions))
}

// ObserveAllocation records one allocated payment.
func (m *Metrics) ObserveAllocation(amount float64) {
	if m == nil {
		return
	}
	m.allocations.Inc()
	m.allocatedTotal.Add(amount)
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
