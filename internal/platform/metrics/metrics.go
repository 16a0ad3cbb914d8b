package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds process level Prometheus metrics: HTTP traffic, directory
// lookups and the outbox relay.
type Metrics struct {
	registry *prometheus.Registry

	RequestDuration  *prometheus.HistogramVec
	DirectoryLookups *prometheus.CounterVec
	BreakerOpen      *prometheus.GaugeVec
	EventsPublished  prometheus.Counter
	RelayFailures    prometheus.Counter
}

// New creates a registry with the Go and process collectors and registers
// the platform metrics on it.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "riskaccept_http_request_duration_seconds",
			Help:    "HTTP request latency by route, method and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		DirectoryLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "riskaccept_directory_lookups_total",
			Help: "Directory lookups by directory and result (hit, miss, error, unavailable)",
		}, []string{"directory", "result"}),
		BreakerOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "riskaccept_directory_breaker_open",
			Help: "1 while the directory circuit breaker is open",
		}, []string{"directory"}),
		EventsPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "riskaccept_outbox_events_published_total",
			Help: "Outbox events delivered to the publisher",
		}),
		RelayFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "riskaccept_outbox_relay_failures_total",
			Help: "Outbox drains that ended with an error",
		}),
	}
}

// Registerer exposes the registry so module metrics share one /metrics endpoint.
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request latency labelled by the matched chi route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// ObserveLookup counts one directory lookup.
func (m *Metrics) ObserveLookup(directory, result string) {
	m.DirectoryLookups.WithLabelValues(directory, result).Inc()
}

// SetBreakerOpen records the breaker state of a directory.
func (m *Metrics) SetBreakerOpen(directory string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.BreakerOpen.WithLabelValues(directory).Set(v)
}

// ObserveRelay is an outbox.WithResultHook callback.
func (m *Metrics) ObserveRelay(published int, err error) {
	m.EventsPublished.Add(float64(published))
	if err != nil {
		m.RelayFailures.Inc()
	}
}
