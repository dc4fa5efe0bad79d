// Package metrics holds the prometheus collectors of derefd.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "derefd"

type Metrics struct {
	publishedEngines *prometheus.GaugeVec
	trackedServices  *prometheus.GaugeVec
	registryEvents   *prometheus.CounterVec
	dereferences     *prometheus.CounterVec
	dereferenceTime  *prometheus.HistogramVec
	siteReloads      *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	httpRejected     *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		publishedEngines: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "registrar",
				Name:      "engine_published",
				Help:      "1 while the dereference engine is published, 0 otherwise.",
			},
			[]string{"engine"},
		),
		trackedServices: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "registrar",
				Name:      "tracked_services",
				Help:      "Backing sites currently tracked per engine.",
			},
			[]string{"engine"},
		),
		registryEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "events_total",
				Help:      "Service registry events.",
			},
			[]string{"type"},
		),
		dereferences: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dereference",
				Name:      "requests_total",
				Help:      "Entity dereference requests.",
			},
			[]string{"engine", "result"},
		),
		dereferenceTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dereference",
				Name:      "duration_seconds",
				Help:      "Entity dereference duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"engine"},
		),
		siteReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sites",
				Name:      "reloads_total",
				Help:      "Site definition reloads.",
			},
			[]string{"result"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		httpRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "rejected_total",
				Help:      "HTTP requests rejected by access guards.",
			},
			[]string{"reason"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.publishedEngines,
			m.trackedServices,
			m.registryEvents,
			m.dereferences,
			m.dereferenceTime,
			m.siteReloads,
			m.httpRequests,
			m.httpDuration,
			m.httpRejected,
		)
	}
	return m
}

func (m *Metrics) SetPublished(engine string, published bool) {
	if m == nil {
		return
	}
	v := 0.0
	if published {
		v = 1
	}
	m.publishedEngines.WithLabelValues(engine).Set(v)
}

func (m *Metrics) SetTracked(engine string, n int) {
	if m == nil {
		return
	}
	m.trackedServices.WithLabelValues(engine).Set(float64(n))
}

func (m *Metrics) RegistryEvent(eventType string) {
	if m == nil {
		return
	}
	m.registryEvents.WithLabelValues(eventType).Inc()
}

// Dereference records one lookup. result is "hit", "cached", "miss" or "error".
func (m *Metrics) Dereference(engine, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.dereferences.WithLabelValues(engine, result).Inc()
	m.dereferenceTime.WithLabelValues(engine).Observe(d.Seconds())
}

func (m *Metrics) SiteReload(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.siteReloads.WithLabelValues(result).Inc()
}

func (m *Metrics) HTTPRequest(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// HTTPRejected records a request refused before reaching its handler.
// reason is "cidr", "host" or "rate".
func (m *Metrics) HTTPRejected(reason string) {
	if m == nil {
		return
	}
	m.httpRejected.WithLabelValues(reason).Inc()
}
