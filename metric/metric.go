// Package metric provides the service's Prometheus instrumentation and
// the process-metrics snapshot served on the control surface.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the platform-level instruments of a device service.
type Metrics struct {
	registry *prometheus.Registry

	ServiceStatus  prometheus.Gauge
	DevicesManaged prometheus.Gauge
	EventsPosted   *prometheus.CounterVec
	PostErrors     prometheus.Counter
	ReadingsTaken  *prometheus.CounterVec
	CallbacksSeen  *prometheus.CounterVec
}

// New creates the instrument set on a fresh registry, including the
// standard Go and process collectors.
func New(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	constLabels := prometheus.Labels{"service": serviceName}
	m := &Metrics{
		registry: reg,
		ServiceStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "devicesdk",
			Subsystem:   "service",
			Name:        "status",
			Help:        "Service lifecycle state (0=new, 1=configuring, 2=bringup, 3=loading, 4=serving, 5=stopping, 6=stopped, 7=failed)",
			ConstLabels: constLabels,
		}),
		DevicesManaged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "devicesdk",
			Subsystem:   "devices",
			Name:        "managed",
			Help:        "Number of devices currently in the device map",
			ConstLabels: constLabels,
		}),
		EventsPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "devicesdk",
			Subsystem:   "events",
			Name:        "posted_total",
			Help:        "Total cooked events handed to the data sink",
			ConstLabels: constLabels,
		}, []string{"sink"}),
		PostErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "devicesdk",
			Subsystem:   "events",
			Name:        "post_errors_total",
			Help:        "Total event posts that failed",
			ConstLabels: constLabels,
		}),
		ReadingsTaken: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "devicesdk",
			Subsystem:   "readings",
			Name:        "taken_total",
			Help:        "Total readings accepted from the driver",
			ConstLabels: constLabels,
		}, []string{"device"}),
		CallbacksSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "devicesdk",
			Subsystem:   "callbacks",
			Name:        "seen_total",
			Help:        "Metadata callbacks processed by action",
			ConstLabels: constLabels,
		}, []string{"action"}),
	}
	reg.MustRegister(
		m.ServiceStatus,
		m.DevicesManaged,
		m.EventsPosted,
		m.PostErrors,
		m.ReadingsTaken,
		m.CallbacksSeen,
	)
	return m
}

// Registerer exposes the underlying registry for subsystems that attach
// their own instruments (e.g. the worker pool).
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registry
}

// PromHandler serves the registry in Prometheus exposition format.
func (m *Metrics) PromHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
