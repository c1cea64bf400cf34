package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicespaces_active_connections",
		Help: "Number of registered signaling connections",
	})

	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicespaces_connections_total",
		Help: "Total number of signaling connections",
	})

	Rooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicespaces_rooms",
		Help: "Number of rooms with an allocated routing context",
	})

	RoomMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicespaces_room_members",
		Help: "Number of joined connections across all rooms",
	})

	// LedgerEntries tracks live entities per ledger.
	LedgerEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voicespaces_ledger_entries",
		Help: "Number of live entries per ledger",
	}, []string{"ledger"}) // "transport" | "producer" | "consumer"

	LateResourcesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicespaces_late_resources_closed_total",
		Help: "Engine resources closed because their connection left while the call was in flight",
	}, []string{"ledger"})

	SignalMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicespaces_signal_messages_total",
		Help: "Total signaling messages",
	}, []string{"type", "direction"}) // direction: "in" | "out"

	SignalErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicespaces_signal_errors_total",
		Help: "Signaling requests answered with an error",
	}, []string{"type", "code"})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicespaces_rate_limited_total",
		Help: "Signaling messages rejected by the per-connection rate limiter",
	})

	BroadcastDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicespaces_broadcast_dropped_total",
		Help: "Room broadcasts not delivered because the receiver was backpressured",
	})

	EngineCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voicespaces_engine_call_seconds",
		Help:    "Duration of media engine calls",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"op", "result"}) // result: "ok" | "error"

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicespaces_events_published_total",
		Help: "Membership events handed to the event publisher",
	}, []string{"kind", "result"})

	ConfigReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicespaces_config_reloads_total",
		Help: "Number of configuration reloads",
	})

	StartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicespaces_start_time_seconds",
		Help: "Server start time in Unix seconds",
	})
)
