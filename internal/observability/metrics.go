// Package observability holds the Prometheus instruments for the service.
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

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	registry *prometheus.Registry

	Requests          *prometheus.CounterVec
	Detections        *prometheus.CounterVec
	DetectLatency     prometheus.Histogram
	ResponderFailures *prometheus.CounterVec
	RateLimited       prometheus.Counter
}

// NewMetrics registers the instruments on a fresh registry, together with
// the Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		Detections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Inputs in which a PII category was detected, by category.",
		}, []string{"category"}),
		DetectLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detect_latency_ms",
			Help:      "Detection latency in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}),
		ResponderFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responder_failures_total",
			Help:      "Downstream responder failures by responder.",
		}, []string{"responder"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}
}

// ObserveDetection records one Detect call and the labels it reported.
func (m *Metrics) ObserveDetection(labels []string, d time.Duration) {
	m.DetectLatency.Observe(float64(d.Microseconds()) / 1000)
	for _, l := range labels {
		m.Detections.WithLabelValues(l).Inc()
	}
}

func (m *Metrics) ObserveRequest(route string, code int) {
	m.Requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
