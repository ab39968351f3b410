package observability

import (
	"context"
	"log/slog"
)

// WSLogger provides structured logging for WebSocket operations.
type WSLogger struct {
	hubName string
	logger  *slog.Logger
}

// NewWSLogger creates a WSLogger writing through logger.
func NewWSLogger(hubName string, logger *slog.Logger) *WSLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSLogger{hubName: hubName, logger: logger}
}

// LogConnect logs an authenticated connection.
func (l *WSLogger) LogConnect(ctx context.Context, userID uint) {
	l.logger.InfoContext(ctx, "websocket connected",
		slog.String("hub", l.hubName),
		slog.Uint64("subject", uint64(userID)),
	)
}

// LogReject logs a connection closed for a credential failure.
func (l *WSLogger) LogReject(ctx context.Context, reason string) {
	l.logger.WarnContext(ctx, "websocket rejected",
		slog.String("hub", l.hubName),
		slog.String("reason", reason),
	)
}

// LogDisconnect logs a WebSocket disconnection event.
func (l *WSLogger) LogDisconnect(ctx context.Context, userID uint, reason string) {
	l.logger.InfoContext(ctx, "websocket disconnected",
		slog.String("hub", l.hubName),
		slog.Uint64("subject", uint64(userID)),
		slog.String("reason", reason),
	)
}

// LogFrameError logs a frame answered with an error.
func (l *WSLogger) LogFrameError(ctx context.Context, command string, requestID uint, err error) {
	l.logger.WarnContext(ctx, "websocket frame failed",
		slog.String("hub", l.hubName),
		slog.String("command", command),
		slog.Uint64("request_id", uint64(requestID)),
		slog.String("error", err.Error()),
	)
}

// LogFrame logs a handled frame at debug level.
func (l *WSLogger) LogFrame(ctx context.Context, command string, requestID uint) {
	l.logger.DebugContext(ctx, "websocket frame",
		slog.String("hub", l.hubName),
		slog.String("command", command),
		slog.Uint64("request_id", uint64(requestID)),
	)
}
