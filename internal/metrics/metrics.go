package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so tests can build as many as they like.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry          *prometheus.Registry
	billsCreated      prometheus.Counter
	sequenceFailures  prometheus.Counter
	analyticsDuration *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		billsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pos",
			Name:      "bills_created_total",
			Help:      "Bills persisted with an invoice number.",
		}),
		sequenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pos",
			Name:      "sequence_failures_total",
			Help:      "Invoice sequence advances that failed.",
		}),
		analyticsDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pos",
			Name:      "analytics_duration_seconds",
			Help:      "Time spent computing an analytics summary.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.billsCreated,
		m.sequenceFailures,
		m.analyticsDuration,
		m.httpRequests,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) BillCreated() {
	if m == nil {
		return
	}
	m.billsCreated.Inc()
}

func (m *Metrics) SequenceFailed() {
	if m == nil {
		return
	}
	m.sequenceFailures.Inc()
}

func (m *Metrics) ObserveAnalytics(strategy string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.analyticsDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRequest(method string, route string, status int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
