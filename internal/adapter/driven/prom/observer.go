// Package prom exports fetch outcomes as Prometheus metrics.
package prom

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

const namespace = "sungazer"

// Compile-time interface satisfaction check.
var _ driven.FetchObserver = (*Observer)(nil)

// Observer implements driven.FetchObserver on a dedicated registry.
type Observer struct {
	registry *prometheus.Registry

	fetchResults  *prometheus.CounterVec
	requests      *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	quotaUsed     *prometheus.GaugeVec

	mu       sync.Mutex
	lastSeen map[model.Vendor]quotaMark
}

type quotaMark struct {
	day   string
	count int
}

// NewObserver creates an Observer and registers its collectors, plus the Go
// runtime and process collectors, on a fresh registry.
func NewObserver() *Observer {
	o := &Observer{
		registry: prometheus.NewRegistry(),
		fetchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_results_total",
			Help:      "Fetch operations by vendor, resource and outcome.",
		}, []string{"vendor", "resource", "status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vendor_requests_total",
			Help:      "HTTP requests issued to each vendor API.",
		}, []string{"vendor"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of complete polling cycles.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		quotaUsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vendor_quota_used",
			Help:      "Requests issued today as a fraction of the vendor's daily quota.",
		}, []string{"vendor"}),
		lastSeen: make(map[model.Vendor]quotaMark),
	}

	o.registry.MustRegister(
		o.fetchResults,
		o.requests,
		o.cycleDuration,
		o.quotaUsed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return o
}

// Handler serves the registry in the Prometheus exposition format.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{Registry: o.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (o *Observer) Registry() *prometheus.Registry { return o.registry }

// ObserveFetch counts one orchestrator result.
func (o *Observer) ObserveFetch(result model.FetchResult) {
	o.fetchResults.WithLabelValues(string(result.Vendor), string(result.Resource), string(result.Status)).Inc()
}

// ObserveCycle records the duration of a finished cycle.
func (o *Observer) ObserveCycle(d time.Duration) {
	o.cycleDuration.Observe(d.Seconds())
}

// ObserveQuota updates the quota gauge and advances the request counter by
// the requests issued since the previous observation.
func (o *Observer) ObserveQuota(usage model.QuotaUsage) {
	if usage.Quota > 0 {
		o.quotaUsed.WithLabelValues(string(usage.Vendor)).Set(float64(usage.Count) / float64(usage.Quota))
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	prev := o.lastSeen[usage.Vendor]
	delta := usage.Count
	if prev.day == usage.Day && usage.Count >= prev.count {
		delta = usage.Count - prev.count
	}
	if delta > 0 {
		o.requests.WithLabelValues(string(usage.Vendor)).Add(float64(delta))
	}
	o.lastSeen[usage.Vendor] = quotaMark{day: usage.Day, count: usage.Count}
}
