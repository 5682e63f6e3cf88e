// Package metrics exposes simulation counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the simulation counters on a private registry.
type Metrics struct {
	registry          *prometheus.Registry
	SimulationsStart  prometheus.Counter
	SimulationsStop   prometheus.Counter
	MessagesPublished *prometheus.CounterVec
	PublishErrors     *prometheus.CounterVec
}

// New creates the counters and registers them together with the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SimulationsStart: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetsim_simulations_started_total",
			Help: "Simulations started",
		}),
		SimulationsStop: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetsim_simulations_stopped_total",
			Help: "Simulations stopped",
		}),
		MessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetsim_messages_published_total",
			Help: "Telemetry messages published by profile",
		}, []string{"profile"}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetsim_publish_errors_total",
			Help: "Failed telemetry publishes by profile",
		}, []string{"profile"}),
	}
	m.registry.MustRegister(
		m.SimulationsStart,
		m.SimulationsStop,
		m.MessagesPublished,
		m.PublishErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// SimulationStarted counts one simulation start.
func (m *Metrics) SimulationStarted() { m.SimulationsStart.Inc() }

// SimulationStopped counts one simulation stop.
func (m *Metrics) SimulationStopped() { m.SimulationsStop.Inc() }

// MessagePublished counts one successful publish for profileID.
func (m *Metrics) MessagePublished(profileID string) {
	m.MessagesPublished.WithLabelValues(profileID).Inc()
}

// PublishError counts one failed publish for profileID.
func (m *Metrics) PublishError(profileID string) {
	m.PublishErrors.WithLabelValues(profileID).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
