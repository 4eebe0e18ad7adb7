// Package metrics exposes Prometheus instrumentation for the chat backend.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/friendchat/backend/internal/models"
)

const namespace = "friendchat"

// Push outcomes recorded by the delivery router.
const (
	PushDelivered = "delivered"
	PushOffline   = "offline"
	PushFailed    = "failed"
)

// OnlineCounter reports how many users hold a live connection.
type OnlineCounter interface {
	Len() int
}

// Metrics holds the collectors on a private Prometheus registry.
type Metrics struct {
	registry    *prometheus.Registry
	messages    *prometheus.CounterVec
	pushes      *prometheus.CounterVec
	connections prometheus.Counter
}

// New registers the collectors. online may be nil, in which case the gauge is
// omitted.
func New(online OnlineCounter) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_stored_total",
			Help:      "Messages persisted, by message type.",
		}, []string{"type"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_total",
			Help:      "Live push attempts, by outcome.",
		}, []string{"result"}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_connections_total",
			Help:      "Websocket connections accepted.",
		}),
	}

	reg.MustRegister(m.messages, m.pushes, m.connections)
	reg.MustRegister(prometheus.NewGoCollector())
	if online != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users with an active websocket connection.",
		}, func() float64 { return float64(online.Len()) }))
	}
	return m
}

// MessageStored counts a persisted message.
func (m *Metrics) MessageStored(t models.MessageType) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(string(t)).Inc()
}

// PushResult counts a live push outcome.
func (m *Metrics) PushResult(result string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(result).Inc()
}

// ConnectionOpened counts an accepted websocket connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// Handler serves the registry in the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
