package finuraws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "finura_gateway"

// handshake outcomes
const (
	outcomeSuccess       = "success"
	outcomeInvalid       = "invalid"
	outcomeUnavailable   = "unavailable"
	outcomeTimeout       = "timeout"
	outcomeProtocolError = "protocol_error"
)

type Metrics struct {
	Connections       prometheus.Gauge
	Authorized        prometheus.Gauge
	Handshakes        *prometheus.CounterVec
	Superseded        prometheus.Counter
	HeartbeatsStarted prometheus.Counter
	Heartbeats        *prometheus.CounterVec
	Closes            *prometheus.CounterVec
	Dropped           prometheus.Counter
}

// NewMetrics registers the gateway collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "open_connections",
			Help:      "Open websocket connections in any state.",
		}),
		Authorized: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "authorized_connections",
			Help:      "Entries in the presence registry.",
		}),
		Handshakes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handshakes_total",
			Help:      "Completed handshakes by outcome.",
		}, []string{"outcome"}),
		Superseded: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "superseded_total",
			Help:      "Connections closed because the same user connected again.",
		}),
		HeartbeatsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "heartbeat_loops_started_total",
			Help:      "Heartbeat loops started after authorization.",
		}),
		Heartbeats: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeat revalidations by result.",
		}, []string{"result"}),
		Closes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "closes_total",
			Help:      "Connections closed by close code.",
		}, []string{"code"}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_messages_total",
			Help:      "Outbound messages dropped because a connection outbox was full.",
		}),
	}
}
