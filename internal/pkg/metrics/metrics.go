/*
Package metrics exposes the Prometheus instruments of the realtime subsystem.

Usage:

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.DeliveryResult(metrics.ResultDelivered)
	http.Handle("/metrics", m.Handler())

All methods are safe on a nil *Collector, so components can run without metrics in tests.
*/
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery results used as the "result" label of dmchat_message_deliveries_total.
const (
	ResultDelivered = "delivered"
	ResultFailed    = "failed"
	ResultOffline   = "offline"
)

// Collector groups every instrument registered by New.
type Collector struct {
	registry *prometheus.Registry

	// Connections is the number of live realtime connections.
	Connections prometheus.Gauge

	// OnlineUsers is the number of distinct users with at least one live connection.
	OnlineUsers prometheus.Gauge

	// PresenceBroadcasts counts presence:update fan-outs.
	PresenceBroadcasts prometheus.Counter

	// Deliveries counts message:new pushes per connection.
	// Labels: result (delivered|failed|offline)
	Deliveries *prometheus.CounterVec

	// StaleEvictions counts connections removed after a failed send.
	StaleEvictions prometheus.Counter

	// MessagesPersisted counts messages written by the send path.
	MessagesPersisted prometheus.Counter
}

// New creates every instrument and registers it on reg, together with the
// Go runtime and process collectors.
func New(reg *prometheus.Registry) *Collector {
	f := promauto.With(reg)

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Collector{
		registry: reg,
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "dmchat_connections",
			Help: "Number of live realtime connections",
		}),
		OnlineUsers: f.NewGauge(prometheus.GaugeOpts{
			Name: "dmchat_online_users",
			Help: "Number of distinct users with at least one live connection",
		}),
		PresenceBroadcasts: f.NewCounter(prometheus.CounterOpts{
			Name: "dmchat_presence_broadcasts_total",
			Help: "Total number of presence:update broadcasts",
		}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dmchat_message_deliveries_total",
			Help: "Total number of message:new pushes by result",
		}, []string{"result"}),
		StaleEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "dmchat_stale_connections_total",
			Help: "Total number of connections evicted after a failed send",
		}),
		MessagesPersisted: f.NewCounter(prometheus.CounterOpts{
			Name: "dmchat_messages_persisted_total",
			Help: "Total number of messages persisted by the send path",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// SetPresence records the registry size after a change.
func (c *Collector) SetPresence(connections, users int) {
	if c == nil {
		return
	}
	c.Connections.Set(float64(connections))
	c.OnlineUsers.Set(float64(users))
}

// PresenceBroadcast counts one presence fan-out.
func (c *Collector) PresenceBroadcast() {
	if c == nil {
		return
	}
	c.PresenceBroadcasts.Inc()
}

// DeliveryResult counts one message push outcome.
func (c *Collector) DeliveryResult(result string) {
	if c == nil {
		return
	}
	c.Deliveries.WithLabelValues(result).Inc()
}

// StaleEviction counts one evicted connection.
func (c *Collector) StaleEviction() {
	if c == nil {
		return
	}
	c.StaleEvictions.Inc()
}

// MessagePersisted counts one stored message.
func (c *Collector) MessagePersisted() {
	if c == nil {
		return
	}
	c.MessagesPersisted.Inc()
}
