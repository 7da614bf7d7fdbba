package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coscribe_active_connections",
		Help: "Number of open websocket connections.",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coscribe_active_rooms",
		Help: "Number of document rooms with at least one member.",
	})

	SessionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coscribe_session_events_total",
		Help: "Inbound session events by type.",
	}, []string{"event"})

	DroppedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coscribe_dropped_clients_total",
		Help: "Connections dropped because their send buffer filled up.",
	})
)
