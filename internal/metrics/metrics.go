// Package metrics exports probe and HTTP metrics for Prometheus
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/siteprobe/siteprobe/internal/probe"
)

const namespace = "siteprobe"

// Metrics holds the collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	probes          *prometheus.CounterVec
	collectorErrors *prometheus.CounterVec
	lastProbed      prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates and registers all collectors, including the Go runtime and
// process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		// outcome is allowed, denied or failed
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Probe requests by outcome and access decision reason.",
		}, []string{"outcome", "reason"}),

		collectorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_failures_total",
			Help:      "Snapshot sections that failed and were reported empty.",
		}, []string{"section"}),

		lastProbed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_probed_timestamp_seconds",
			Help:      "Unix time of the last authorized probe.",
		}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.probes,
		m.collectorErrors,
		m.lastProbed,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ProbeAllowed(reason probe.Reason) {
	m.probes.WithLabelValues("allowed", string(reason)).Inc()
}

func (m *Metrics) ProbeDenied(reason probe.Reason) {
	m.probes.WithLabelValues("denied", string(reason)).Inc()
}

func (m *Metrics) ProbeFailed() {
	m.probes.WithLabelValues("failed", "").Inc()
}

func (m *Metrics) CollectorFailed(section string) {
	m.collectorErrors.WithLabelValues(section).Inc()
}

func (m *Metrics) LastProbed(at time.Time) {
	m.lastProbed.Set(float64(at.Unix()))
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
