// Package metrics exposes the worker's Prometheus instruments. Every method is
// safe to call on a nil *Metrics so components can run without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "estoca"
	subsystem = "worker"
)

// Fetch sources.
const (
	SourceCache     = "cache"
	SourceNetwork   = "network"
	SourceFallback  = "fallback"
	SourceSynthetic = "synthetic"
)

// Metrics holds all worker instruments on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	fetchTotal        *prometheus.CounterVec
	fetchDuration     *prometheus.HistogramVec
	cacheWrites       *prometheus.CounterVec
	partitionsEvicted prometheus.Counter
	lifecycleState    *prometheus.GaugeVec
	syncReplayed      *prometheus.CounterVec
	syncPending       prometheus.Gauge
	pushReceived      *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	eventsDispatched  *prometheus.CounterVec
	connectedClients  prometheus.Gauge
}

// New creates the instruments on a fresh registry that also carries the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		fetchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "fetch_total",
			Help: "Intercepted requests by strategy and response source",
		}, []string{"strategy", "source"}),
		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name:    "fetch_duration_seconds",
			Help:    "Time to produce a response for an intercepted request",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),
		cacheWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "cache_writes_total",
			Help: "Cache partition writes by partition and result",
		}, []string{"partition", "result"}),
		partitionsEvicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "partitions_evicted_total",
			Help: "Cache partitions deleted on activation",
		}),
		lifecycleState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "lifecycle_state",
			Help: "1 for the current lifecycle state of a worker version",
		}, []string{"version", "state"}),
		syncReplayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "sync_replayed_total",
			Help: "Sync tasks replayed by result",
		}, []string{"result"}),
		syncPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "sync_pending",
			Help: "Sync tasks waiting for replay",
		}),
		pushReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "push_received_total",
			Help: "Push messages received by transport",
		}, []string{"transport"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "notifications_total",
			Help: "Notifications by outcome (shown, clicked, closed, forward_failed)",
		}, []string{"outcome"}),
		eventsDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "events_dispatched_total",
			Help: "Worker events dispatched by kind and result",
		}, []string{"kind", "result"}),
		connectedClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "connected_clients",
			Help: "Pages connected to the message channel",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordFetch counts one intercepted request.
func (m *Metrics) RecordFetch(strategy, source string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(strategy, source).Inc()
	m.fetchDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// RecordCacheWrite counts a partition write.
func (m *Metrics) RecordCacheWrite(partition string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cacheWrites.WithLabelValues(partition, result).Inc()
}

// RecordEviction counts evicted partitions.
func (m *Metrics) RecordEviction(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.partitionsEvicted.Add(float64(n))
}

// SetLifecycleState marks state as current for version and clears the others.
func (m *Metrics) SetLifecycleState(version, state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.lifecycleState.WithLabelValues(version, s).Set(v)
	}
}

// RecordSync counts replayed tasks.
func (m *Metrics) RecordSync(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.syncReplayed.WithLabelValues(result).Add(float64(n))
}

// SetSyncPending sets the queue depth.
func (m *Metrics) SetSyncPending(n int64) {
	if m == nil {
		return
	}
	m.syncPending.Set(float64(n))
}

// RecordPush counts a received push message.
func (m *Metrics) RecordPush(transport string) {
	if m == nil {
		return
	}
	m.pushReceived.WithLabelValues(transport).Inc()
}

// RecordNotification counts a notification outcome.
func (m *Metrics) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

// RecordEvent counts a dispatched worker event.
func (m *Metrics) RecordEvent(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.eventsDispatched.WithLabelValues(kind, result).Inc()
}

// SetConnectedClients sets the number of connected pages.
func (m *Metrics) SetConnectedClients(n int) {
	if m == nil {
		return
	}
	m.connectedClients.Set(float64(n))
}
