package health

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ResponseStatus    *prometheus.CounterVec
	RequestsInFlight  prometheus.Gauge
	RegisteredClients prometheus.Gauge
	ClientHealth      *prometheus.GaugeVec

	stats *Stats
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mtlsbridge",
				Name:      "requests_total",
				Help:      "Total number of dispatched requests by client and outcome",
			},
			[]string{"client", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mtlsbridge",
				Name:      "request_duration_seconds",
				Help:      "Round trip latency including the body read",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"client"},
		),
		ResponseStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mtlsbridge",
				Name:      "response_status_total",
				Help:      "Responses received by client and status class",
			},
			[]string{"client", "class"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mtlsbridge",
				Name:      "requests_in_flight",
				Help:      "Current number of requests being dispatched",
			},
		),
		RegisteredClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mtlsbridge",
				Name:      "registered_clients",
				Help:      "Number of clients in the registry",
			},
		),
		ClientHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "mtlsbridge",
				Name:      "client_health",
				Help:      "Probe result per client (1=healthy, 0=unhealthy)",
			},
			[]string{"client"},
		),
		stats: NewStats(),
	}
}

// RecordRequest records a finished dispatch. status is 0 when no response
// arrived; outcome is "ok" or the failure kind.
func (m *Metrics) RecordRequest(client, outcome string, status int, d time.Duration) {
	m.RequestsTotal.WithLabelValues(client, outcome).Inc()
	m.RequestDuration.WithLabelValues(client).Observe(d.Seconds())
	if status > 0 {
		m.ResponseStatus.WithLabelValues(client, strconv.Itoa(status/100)+"xx").Inc()
	}
	m.stats.Record(client, d, outcome != "ok")
}

// SetClientHealth updates the probe result for a client.
func (m *Metrics) SetClientHealth(client string, healthy bool) {
	if healthy {
		m.ClientHealth.WithLabelValues(client).Set(1)
	} else {
		m.ClientHealth.WithLabelValues(client).Set(0)
	}
}

// DeleteClientHealth removes the probe gauge of a client.
func (m *Metrics) DeleteClientHealth(client string) {
	m.ClientHealth.DeleteLabelValues(client)
}

// SetRegisteredClients updates the registry size.
func (m *Metrics) SetRegisteredClients(n int) {
	m.RegisteredClients.Set(float64(n))
}

// IncRequestsInFlight increments the in-flight requests gauge.
func (m *Metrics) IncRequestsInFlight() {
	m.RequestsInFlight.Inc()
}

// DecRequestsInFlight decrements the in-flight requests gauge.
func (m *Metrics) DecRequestsInFlight() {
	m.RequestsInFlight.Dec()
}

// Stats returns the per-client latency tracker.
func (m *Metrics) Stats() *Stats {
	return m.stats
}
