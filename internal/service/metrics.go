package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics receives observability events. Nothing in the quote pipeline depends on it.
type Metrics interface {
	IncRequests()
	IncErrors()
	IncRetries(service string)
	IncFailures(service string)
	ObserveDuration(d time.Duration)
	SetCircuitState(service string, state BreakerState)
}

type nopMetrics struct{}

func (nopMetrics) IncRequests() {}
func (nopMetrics) IncErrors() {}
func (nopMetrics) IncRetries(string) {}
func (nopMetrics) IncFailures(string) {}
func (nopMetrics) ObserveDuration(time.Duration) {}
func (nopMetrics) SetCircuitState(string, BreakerState) {}

// NopMetrics discards every event
func NopMetrics() Metrics { return nopMetrics{} }

// PrometheusMetrics exports the quote and dependency counters
type PrometheusMetrics struct {
	requests     prometheus.Counter
	errors       prometheus.Counter
	duration     prometheus.Histogram
	retries      *prometheus.CounterVec
	failures     *prometheus.CounterVec
	circuitState *prometheus.GaugeVec
}

func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		requests: factory.NewCounter(prometheus.CounterOpts{
			Name: "points_quote_requests_total",
			Help: "Total number of points quote requests",
		}),
		errors: factory.NewCounter(prometheus.CounterOpts{
			Name: "points_quote_errors_total",
			Help: "Total number of points quote errors",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "points_quote_duration_seconds",
			Help:    "Points quote duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5, 10},
		}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "points_quote_dependency_retries_total",
			Help: "Total number of retried dependency calls",
		}, []string{"service"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "points_quote_dependency_failures_total",
			Help: "Total number of failed logical dependency calls",
		}, []string{"service"}),
		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "points_quote_circuit_state",
			Help: "Circuit breaker state per dependency (0 closed, 1 open, 2 half-open)",
		}, []string{"service"}),
	}
}

func (m *PrometheusMetrics) IncRequests() { m.requests.Inc() }
func (m *PrometheusMetrics) IncErrors() { m.errors.Inc() }
func (m *PrometheusMetrics) IncRetries(service string) { m.retries.WithLabelValues(service).Inc() }
func (m *PrometheusMetrics) IncFailures(service string) { m.failures.WithLabelValues(service).Inc() }
func (m *PrometheusMetrics) ObserveDuration(d time.Duration) {
	m.duration.Observe(d.Seconds())
}

func (m *PrometheusMetrics) SetCircuitState(service string, state BreakerState) {
	m.circuitState.WithLabelValues(service).Set(float64(state))
}
