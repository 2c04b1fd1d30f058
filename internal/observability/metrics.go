package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/fedseries/fedseries/internal/errors"
	"github.com/fedseries/fedseries/internal/resilience"
)

// Metrics holds the Prometheus collectors for serve mode. A dedicated
// registry keeps test processes from fighting over the default one.
type Metrics struct {
	Registry *prometheus.Registry

	Attempts        *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateRemaining   *prometheus.GaugeVec
}

// NewMetrics builds and registers the collectors under the given
// namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: registry,
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_attempts_total",
			Help:      "Outbound request attempts by operation and outcome.",
		}, []string{"operation", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		RateRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limit_remaining",
			Help:      "Remaining admission slots in the current window.",
		}, []string{"source"}),
	}
	registry.MustRegister(m.Attempts, m.HTTPRequests, m.RequestDuration, m.RateRemaining)
	return m
}

// ObserveAttempt records one outbound attempt. It matches the executor's
// OnAttempt hook signature.
func (m *Metrics) ObserveAttempt(operation string, rec resilience.AttemptRecord) {
	outcome := "success"
	if rec.Err != nil {
		outcome = string(apperrors.KindOf(rec.Err))
	}
	m.Attempts.WithLabelValues(operation, outcome).Inc()
}

// ObserveRateStatus updates the remaining-slots gauge for a source.
func (m *Metrics) ObserveRateStatus(sourceName string, status resilience.Status) {
	m.RateRemaining.WithLabelValues(sourceName).Set(float64(status.Remaining))
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
