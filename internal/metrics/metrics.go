package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	DrawEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "boardsync", Name: "draw_events_total", Help: "Number of relayed drawing messages by board."},
		[]string{"board"},
	)
	ElementsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "boardsync", Name: "elements_created_total", Help: "Number of elements committed to boards."},
		[]string{"board"},
	)
	CanvasBroadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "boardsync", Name: "canvas_broadcasts_total", Help: "Number of authoritative full-canvas broadcasts."},
		[]string{"board"},
	)
	ConnectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "boardsync", Name: "connected_clients", Help: "Currently connected websocket clients."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(DrawEvents)
	reg.MustRegister(ElementsCreated)
	reg.MustRegister(CanvasBroadcasts)
	reg.MustRegister(ConnectedClients)
}
