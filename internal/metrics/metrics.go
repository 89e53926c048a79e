package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "comms_connections_active",
			Help: "Currently registered websocket connections",
		},
	)

	AuthRefused = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comms_auth_refused_total",
			Help: "Upgrade attempts refused at the auth gate",
		},
	)

	SlowClientsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comms_slow_clients_dropped_total",
			Help: "Connections dropped because their send buffer filled",
		},
	)

	// Business metrics
	CommandsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comms_commands_dispatched_total",
			Help: "Inbound commands dispatched to handlers",
		},
		[]string{"action"},
	)

	CommandErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comms_command_errors_total",
			Help: "Commands that failed, by error kind",
		},
		[]string{"kind"},
	)

	EventsBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comms_events_broadcast_total",
			Help: "Outbound events delivered to connections",
		},
		[]string{"type"},
	)

	NotificationsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comms_notifications_published_total",
			Help: "Best-effort push notifications published",
		},
	)
)
