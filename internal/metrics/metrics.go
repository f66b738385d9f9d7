// Package metrics exposes the Prometheus collectors of the dividis API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dividis"

// Registry owns a private Prometheus registry and the collectors registered on it.
type Registry struct {
	registry *prometheus.Registry

	commandOutcomes *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	feedSubscribers prometheus.Gauge
}

// NewRegistry builds a registry with the process and Go runtime collectors attached.
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &Registry{
		registry: registry,
		commandOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimistic_commands_total",
			Help:      "Optimistic commands by name and outcome",
		}, []string{"command", "outcome"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "docstore_cache_lookups_total",
			Help:      "Document cache lookups by operation and result",
		}, []string{"operation", "result"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		feedSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_subscribers",
			Help:      "Open realtime feed subscriptions",
		}),
	}
}

// ObserveCommand counts one optimistic command outcome.
func (r *Registry) ObserveCommand(command, outcome string) {
	if r == nil {
		return
	}
	r.commandOutcomes.WithLabelValues(command, outcome).Inc()
}

// ObserveCache counts one cache lookup.
func (r *Registry) ObserveCache(operation string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(operation, result).Inc()
}

// ObserveRequest records one served HTTP request.
func (r *Registry) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpLatency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// SubscriberOpened increments the realtime feed gauge.
func (r *Registry) SubscriberOpened() {
	if r != nil {
		r.feedSubscribers.Inc()
	}
}

// SubscriberClosed decrements the realtime feed gauge.
func (r *Registry) SubscriberClosed() {
	if r != nil {
		r.feedSubscribers.Dec()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer exposes the underlying registry for tests and embedding.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
