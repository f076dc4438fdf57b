// Package metrics exposes signaling counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons.
const (
	DropNoChannel    = "no_channel"
	DropNotInSession = "not_in_session"
	DropBackpressure = "backpressure"
	DropRateLimited  = "rate_limited"
)

// Leave reasons.
const (
	LeaveExplicit   = "leave"
	LeaveDisconnect = "disconnect"
)

type Metrics struct {
	registry *prometheus.Registry

	Relayed    *prometheus.CounterVec
	Dropped    *prometheus.CounterVec
	Joins      prometheus.Counter
	Leaves     *prometheus.CounterVec
	Broadcasts *prometheus.CounterVec
	Channels   prometheus.Gauge
	Sessions   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mesh", Subsystem: "signal", Name: "relayed_total",
			Help: "Negotiation messages forwarded to their recipient.",
		}, []string{"kind"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mesh", Subsystem: "signal", Name: "dropped_total",
			Help: "Messages dropped by the relay.",
		}, []string{"reason"}),
		Joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mesh", Subsystem: "session", Name: "joins_total",
			Help: "Successful session joins.",
		}),
		Leaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mesh", Subsystem: "session", Name: "leaves_total",
			Help: "Session exits by reason.",
		}, []string{"reason"}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mesh", Subsystem: "lifecycle", Name: "broadcasts_total",
			Help: "Session lifecycle broadcasts by kind.",
		}, []string{"kind"}),
		Channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mesh", Subsystem: "signal", Name: "open_channels",
			Help: "Currently open signaling channels.",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mesh", Subsystem: "session", Name: "active",
			Help: "Sessions with at least one member.",
		}),
	}
	m.registry.MustRegister(m.Relayed, m.Dropped, m.Joins, m.Leaves, m.Broadcasts, m.Channels, m.Sessions)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
