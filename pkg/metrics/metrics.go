package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Latency buckets in milliseconds
var latencyBuckets = []float64{
	5, 10, 25,
	50, 100, 250,
	500, 1000, 2500,
	5000, 10000, 30000,
}

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	CacheStatus     *prometheus.CounterVec
	RenderMethod    *prometheus.CounterVec
	Mutation        *prometheus.CounterVec
	UpstreamLatency prometheus.Histogram
	LoopbackLatency prometheus.Histogram
	RequestTotal    *prometheus.CounterVec
	RequestLatency  *prometheus.HistogramVec
}

// Config holds which optional collectors to enable
type Config struct {
	EnableRuntime bool // Go runtime and process collectors
}

func DefaultConfig() Config {
	return Config{EnableRuntime: true}
}

func New(cfg Config) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		CacheStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seo_cache_status_total",
				Help: "Suggestion lookups by cache status",
			},
			[]string{"status"},
		),
		RenderMethod: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seo_render_method_total",
				Help: "Processed requests by render method",
			},
			[]string{"method"},
		),
		Mutation: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seo_mutation_total",
				Help: "Mutation outcomes (applied, unchanged, reverted, skipped)",
			},
			[]string{"outcome"},
		),
		UpstreamLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "seo_upstream_latency_ms",
				Help:    "Suggestion API latency in milliseconds",
				Buckets: latencyBuckets,
			},
		),
		LoopbackLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "seo_loopback_latency_ms",
				Help:    "Internal loopback fetch latency in milliseconds",
				Buckets: latencyBuckets,
			},
		),
		RequestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seo_requests_total",
				Help: "Proxied requests by method and status class",
			},
			[]string{"method", "status"},
		),
		RequestLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seo_request_latency_ms",
				Help:    "End to end request latency in milliseconds",
				Buckets: latencyBuckets,
			},
			[]string{"render"},
		),
	}

	if cfg.EnableRuntime {
		registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
	}
	return m
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer is used by tests to read back counters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// The helpers below tolerate a nil receiver so components can run without metrics.

func (m *Metrics) ObserveCacheStatus(status string) {
	if m == nil {
		return
	}
	m.CacheStatus.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveRenderMethod(method string) {
	if m == nil {
		return
	}
	m.RenderMethod.WithLabelValues(method).Inc()
}

func (m *Metrics) ObserveMutation(outcome string) {
	if m == nil {
		return
	}
	m.Mutation.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveUpstreamLatency(ms float64) {
	if m == nil {
		return
	}
	m.UpstreamLatency.Observe(ms)
}

func (m *Metrics) ObserveLoopbackLatency(ms float64) {
	if m == nil {
		return
	}
	m.LoopbackLatency.Observe(ms)
}

// ObserveRequest records one finished request. render is empty when the
// request was not processed.
func (m *Metrics) ObserveRequest(method string, status int, render string, ms float64) {
	if m == nil {
		return
	}
	if render == "" {
		render = "NONE"
	}
	m.RequestTotal.WithLabelValues(method, StatusClass(status)).Inc()
	m.RequestLatency.WithLabelValues(render).Observe(ms)
}

// StatusClass collapses a status code into its class (e.g. "2xx").
func StatusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}
