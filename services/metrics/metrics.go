package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/jumuiya/core"
)

// Metrics holds the application's prometheus collectors, on a registry of its own.
type Metrics struct {
	registry *prometheus.Registry

	redemptions *prometheus.CounterVec
	responses   *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

func New(conf *core.Config) *Metrics {
	constLabels := prometheus.Labels{"env": conf.Env}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "jumuiya_code_redemptions_total",
			Help:        "Invitation code redemptions by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "jumuiya_join_request_responses_total",
			Help:        "Manager responses to join requests by action and outcome.",
			ConstLabels: constLabels,
		}, []string{"action", "outcome"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "jumuiya_http_request_duration_seconds",
			Help:        "HTTP request latency by route.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.redemptions,
		m.responses,
		m.httpLatency,
	)
	return m
}

func (m *Metrics) ObserveRedeem(outcome string) {
	m.redemptions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveResponse(action, outcome string) {
	m.responses.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpLatency.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
