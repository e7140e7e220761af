package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the server's Prometheus collectors, kept on a private registry.
type Metrics struct {
	Registry    *prometheus.Registry
	Rooms       prometheus.Gauge
	Connections prometheus.Gauge
	Messages    *prometheus.CounterVec
	Dropped     prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "warpcall",
			Name:      "rooms_active",
			Help:      "Rooms currently held by the signaling hub.",
		}),
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "warpcall",
			Name:      "connections_active",
			Help:      "Open signaling websocket connections.",
		}),
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warpcall",
			Name:      "signaling_messages_total",
			Help:      "Signaling messages handled, by type.",
		}, []string{"type"}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "warpcall",
			Name:      "signaling_frames_dropped_total",
			Help:      "Outbound frames dropped because a client's buffer was full.",
		}),
	}
}
