// Package metrics exposes gateway counters to Prometheus on a listener
// separate from the public entry point.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cmsgate"

// Metrics holds the gateway collectors. It satisfies dispatch.Observer and
// proxy.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	requestDuration  *prometheus.HistogramVec
}

// New creates collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Requests routed, by dispatch rule.",
			},
			[]string{"route"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "CMS call latency in seconds, by proxy and response code (0 for transport failures).",
				Buckets:   []float64{0.05, 0.1, 0.2, 0.4, 0.6, 0.8, 1.0, 1.5, 2, 3, 5, 8, 10, 15, 30},
			},
			[]string{"proxy", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Response latency distribution in seconds for each verb and HTTP response code.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "code"},
		),
	}

	m.registry.MustRegister(
		m.dispatchTotal,
		m.upstreamDuration,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveDispatch counts a routed request.
func (m *Metrics) ObserveDispatch(rule string) {
	m.dispatchTotal.WithLabelValues(rule).Inc()
}

// ObserveUpstream records one CMS call.
func (m *Metrics) ObserveUpstream(proxy string, status int, elapsed time.Duration) {
	m.upstreamDuration.WithLabelValues(proxy, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// WithLatencyTracking tracks the number of seconds it took the wrapped
// handler to complete.
func (m *Metrics) WithLatencyTracking(delegate http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(m.requestDuration, delegate)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
