package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "devicelink"

// Reasons a received message is discarded without an acknowledgement.
const (
	DropMalformed   = "malformed"
	DropRateLimited = "rate_limited"
	DropUnhandled   = "unhandled"
	DropStoreError  = "store_error"
)

// Metrics holds the server collectors.
type Metrics struct {
	registry *prometheus.Registry

	ActiveConnections prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	MessagesReceived  *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec
	AcksSent          *prometheus.CounterVec
	HandleDuration    *prometheus.HistogramVec
	Devices           *prometheus.GaugeVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "active_connections",
			Help:      "Number of open device connections",
		}),

		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Total number of accepted device connections",
		}),

		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "received_total",
			Help:      "Total number of parsed messages by type",
		}, []string{"type"}),

		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "dropped_total",
			Help:      "Total number of messages discarded without an acknowledgement",
		}, []string{"reason"}),

		AcksSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acks",
			Name:      "sent_total",
			Help:      "Total number of acknowledgements sent by code",
		}, []string{"code"}),

		HandleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "handle_duration_seconds",
			Help:      "Time spent handling one message",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),

		Devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "devices",
			Help:      "Number of devices in the registry by state",
		}, []string{"state"}),
	}

	m.registry.MustRegister(
		m.ActiveConnections,
		m.ConnectionsTotal,
		m.MessagesReceived,
		m.MessagesDropped,
		m.AcksSent,
		m.HandleDuration,
		m.Devices,
	)
	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ConnectionOpened records an accepted connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ActiveConnections.Inc()
}

// ConnectionClosed records the end of a connection.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

// MessageReceived counts a parsed message of the given type tag.
func (m *Metrics) MessageReceived(msgType string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(msgType).Inc()
}

// MessageDropped counts a discarded message.
func (m *Metrics) MessageDropped(reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

// AckSent counts an acknowledgement written to a device.
func (m *Metrics) AckSent(code string) {
	if m == nil {
		return
	}
	m.AcksSent.WithLabelValues(code).Inc()
}

// ObserveHandle records how long a message of msgType took to handle.
func (m *Metrics) ObserveHandle(msgType string, d time.Duration) {
	if m == nil {
		return
	}
	m.HandleDuration.WithLabelValues(msgType).Observe(d.Seconds())
}

// SetDevices publishes the registry totals.
func (m *Metrics) SetDevices(total, active int) {
	if m == nil {
		return
	}
	m.Devices.WithLabelValues("registered").Set(float64(total))
	m.Devices.WithLabelValues("active").Set(float64(active))
}
