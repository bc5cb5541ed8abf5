package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported at /metrics.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	custodyOps      *prometheus.CounterVec
	cacheOps        *prometheus.CounterVec
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_http_requests_total",
			Help: "The total number of HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_http_errors_total",
			Help: "The total number of error responses by error code",
		}, []string{"method", "route", "code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custody_http_request_duration_seconds",
			Help:    "The request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		custodyOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_operations_total",
			Help: "The total number of ledger operations by kind and asset kind",
		}, []string{"operation", "asset_kind"}),
		cacheOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_cache_operations_total",
			Help: "The total number of dashboard cache lookups by result",
		}, []string{"result"}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(method, route, code).Inc()
}

// RecordCustody counts a completed ledger operation.
func (m *Metrics) RecordCustody(operation, assetKind string) {
	if m == nil {
		return
	}
	m.custodyOps.WithLabelValues(operation, assetKind).Inc()
}

// RecordCache counts a cache hit, miss or error.
func (m *Metrics) RecordCache(result string) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
