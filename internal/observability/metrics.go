// Package observability provides logging, metrics, and tracing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpboard_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// WebSocketConnections is the gauge of open chat connections.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "helpboard_websocket_connections",
		Help: "Number of open chat websocket connections",
	})

	// WebSocketFrames counts inbound frames by command and outcome.
	WebSocketFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpboard_websocket_frames_total",
		Help: "Inbound websocket frames by command and outcome",
	}, []string{"command", "outcome"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpboard_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// ChannelDeliveries counts frames handed to subscriber buffers.
	ChannelDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helpboard_channel_deliveries_total",
		Help: "Frames delivered to request channel subscribers",
	})

	// MessagesRelayed counts persisted chat messages.
	MessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helpboard_messages_relayed_total",
		Help: "Chat messages persisted and published",
	})

	// RequestTransitions counts lifecycle transitions by target status.
	RequestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpboard_request_transitions_total",
		Help: "Request lifecycle transitions by resulting status",
	}, []string{"status"})

	// CredentialRejections counts failed authentications by reason code.
	CredentialRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpboard_credential_rejections_total",
		Help: "Rejected credentials by reason",
	}, []string{"reason"})
)
