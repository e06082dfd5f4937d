// Package server registers the relay's prometheus collectors.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Disconnect reasons reported on relay_disconnects_total.
const (
	reasonLeave     = "leave"
	reasonClosed    = "closed"
	reasonError     = "error"
	reasonHandshake = "handshake"
	reasonShutdown  = "shutdown"
)

// Metrics holds the relay's prometheus collectors.
type Metrics struct {
	connectionsActive      prometheus.Gauge
	connectionsTotal       prometheus.Counter
	connectionsRejected    prometheus.Counter
	messagesRelayed        prometheus.Counter
	messagesRateLimited    prometheus.Counter
	broadcastWriteFailures prometheus.Counter
	disconnects            *prometheus.CounterVec
}

// NewMetrics registers the relay collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Connections currently holding a registry slot",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_connections_total",
			Help: "Connections admitted into the registry",
		}),
		connectionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_connections_rejected_total",
			Help: "Connections turned away because the registry was full or closing",
		}),
		messagesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_relayed_total",
			Help: "Client messages relayed to other members",
		}),
		messagesRateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_rate_limited_total",
			Help: "Client messages dropped by the per-connection rate limiter",
		}),
		broadcastWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_broadcast_write_failures_total",
			Help: "Failed writes to a single member during a broadcast",
		}),
		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_disconnects_total",
			Help: "Handler exits by reason",
		}, []string{"reason"}),
	}
}
