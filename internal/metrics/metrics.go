package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wtarget"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	responseSize     *prometheus.HistogramVec
	inFlight         prometheus.Gauge
	simulatedErrors  *prometheus.CounterVec
	simulatedDelay   prometheus.Histogram
	rateLimitDropped prometheus.Counter
	panicsRecovered  prometheus.Counter
}

var (
	// /api/slow routinely runs for seconds, so the top buckets reach further
	// than the usual request latency spread.
	durationBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}
)

// NewMetrics creates a new Metrics instance on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   durationBuckets,
			},
			[]string{"method", "route", "status"},
		),
		responseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(16, 4, 6),
			},
			[]string{"method", "route"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		simulatedErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "simulated_error_decisions_total",
				Help:      "Outcomes drawn by /api/error",
			},
			[]string{"outcome"},
		),
		simulatedDelay: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "simulated_delay_seconds",
				Help:      "Delays requested from /api/slow",
				Buckets:   durationBuckets,
			},
		),
		rateLimitDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_dropped_total",
				Help:      "Total number of requests dropped by rate limiter",
			},
		),
		panicsRecovered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "panic_recoveries_total",
				Help:      "Total number of panics recovered in HTTP handlers",
			},
		),
	}

	reg.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.responseSize,
		m.inFlight,
		m.simulatedErrors,
		m.simulatedDelay,
		m.rateLimitDropped,
		m.panicsRecovered,
	)

	return m
}

// RecordRequest records one completed request
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration, responseSize int64) {
	statusStr := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, route, statusStr).Inc()
	m.requestDuration.WithLabelValues(method, route, statusStr).Observe(duration.Seconds())
	m.responseSize.WithLabelValues(method, route).Observe(float64(responseSize))
}

// RecordSimulatedError records an /api/error decision
func (m *Metrics) RecordSimulatedError(failed bool) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.simulatedErrors.WithLabelValues(outcome).Inc()
}

// RecordSimulatedDelay records the wait chosen for an /api/slow request
func (m *Metrics) RecordSimulatedDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	m.simulatedDelay.Observe(d.Seconds())
}

// RecordRateLimitDrop records a rate limit drop
func (m *Metrics) RecordRateLimitDrop() {
	m.rateLimitDropped.Inc()
}

// RecordPanic records a recovered handler panic
func (m *Metrics) RecordPanic() {
	m.panicsRecovered.Inc()
}

// IncInFlight increments in-flight requests
func (m *Metrics) IncInFlight() {
	m.inFlight.Inc()
}

// DecInFlight decrements in-flight requests
func (m *Metrics) DecInFlight() {
	m.inFlight.Dec()
}

// TrackReadiness exports ready() as a 0/1 gauge
func (m *Metrics) TrackReadiness(ready func() bool) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready",
			Help:      "1 once the service reports ready, else 0",
		},
		func() float64 {
			if ready() {
				return 1
			}
			return 0
		},
	))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
