package server

import (
	"context"
	"time"

	"helpboard/internal/gateway"
	"helpboard/internal/middleware"
	"helpboard/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// flushTimeout bounds how long a closing handler waits for queued frames.
const flushTimeout = 5 * time.Second

// UpgradeRequired rejects plain HTTP requests on websocket routes.
func (s *Server) UpgradeRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// WebSocketChatHandler serves the request chat channel. The connection is
// unauthenticated until its first frame, a CONNECT carrying a bearer token.
func (s *Server) WebSocketChatHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		connID := uuid.NewString()
		ctx := middleware.WithConnID(context.Background(), connID)

		client := notifications.NewClient(s.requestHub, conn, connID)
		sess := gateway.NewSession(connID, s.attrs.Bag(connID))
		s.requestHub.Register(client)

		client.IncomingHandler = func(c *notifications.Client, message []byte) error {
			return s.gateway.HandleFrame(ctx, sess, c, message)
		}

		go client.WritePump()
		client.ReadPump()

		s.gateway.Disconnect(ctx, sess, client, "connection closed")
		client.Wait(flushTimeout)
	})
}
