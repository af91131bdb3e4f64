package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Chat metrics for monitoring message lifecycle and real-time delivery.
// They are registered by NewRegistry.
var (
	// Message lifecycle metrics
	ChatMessageCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_message_created_total",
		Help: "Total number of messages created",
	}, []string{"message_type"})

	ChatMessageDeliveryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_message_delivery_duration_seconds",
		Help:    "Time taken by each step of a send",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"step"}) // "persist", "broadcast", "push"

	ChatMessagesMarkedReadTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_marked_read_total",
		Help: "Total number of messages flipped to read",
	})

	// Realtime hub metrics
	ChatBroadcastTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_broadcast_total",
		Help: "Total number of events broadcast to rooms",
	}, []string{"event"})

	ChatBroadcastReorderedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_broadcast_reordered_total",
		Help: "Total number of new_message events held back to restore commit order",
	})

	ChatBroadcastSeqGapTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_broadcast_seq_gap_total",
		Help: "Total number of sequence gaps skipped after the reorder window expired",
	})

	ChatBroadcastPanicTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_broadcast_panic_total",
		Help: "Total number of panics during broadcast",
	})

	ChatClientMessageDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_client_message_dropped_total",
		Help: "Total number of subscribers dropped from a room",
	}, []string{"reason"})

	ChatRoomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_rooms_active",
		Help: "Current number of conversation rooms with local subscribers",
	})

	// Redis fan-out metrics
	ChatRedisPublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_redis_publish_total",
		Help: "Total number of Redis fan-out publishes",
	}, []string{"status"})

	ChatRedisSubscriptionActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_redis_subscription_active",
		Help: "1 while the Redis fan-out subscription is running",
	})

	// WebSocket lifecycle metrics
	ChatWebSocketConnectionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_websocket_connection_total",
		Help: "Total number of WebSocket connections",
	}, []string{"status"})

	ChatWebSocketConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_websocket_connections",
		Help: "Current number of active WebSocket connections",
	})

	ChatWebSocketMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_websocket_messages_total",
		Help: "Total number of WebSocket messages",
	}, []string{"direction"}) // "in" for received, "out" for sent

	ChatWebSocketErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_websocket_errors_total",
		Help: "Total number of WebSocket errors",
	}, []string{"error_type"})

	// Push metrics
	ChatPushNotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_push_notifications_total",
		Help: "Total number of push notifications by outcome",
	}, []string{"provider", "status"}) // "sent", "failed", "no_token", "foreground"
)
