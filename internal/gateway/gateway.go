// Package gateway dispatches chat websocket frames. Each connection owns a
// Session; frames are handled one at a time on the connection's read loop.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"helpboard/internal/auth"
	"helpboard/internal/middleware"
	"helpboard/internal/models"
	"helpboard/internal/notifications"
	"helpboard/internal/observability"
)

// ErrCloseConnection tells the read loop to stop and close the socket after
// queued frames are flushed.
var ErrCloseConnection = errors.New("close connection")

// Authenticator verifies a CONNECT credential.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (models.Identity, *auth.Subject, error)
}

// ChatGate authorizes channel access and relays messages.
type ChatGate interface {
	AuthorizeSubscribe(ctx context.Context, who models.Identity, requestID uint) (*models.Request, error)
	Send(ctx context.Context, who models.Identity, requestID uint, text string) (*models.MessageView, error)
	History(ctx context.Context, who models.Identity, requestID uint, page models.HistoryPage) ([]models.MessageView, error)
}

// Channels tracks which connections listen on which request.
type Channels interface {
	Subscribe(requestID uint, c *notifications.Client)
	Unsubscribe(requestID uint, c *notifications.Client)
	UnregisterClient(c *notifications.Client)
}

// Limiter throttles sends per user.
type Limiter interface {
	Allow(ctx context.Context, userID uint) error
}

// Gateway handles inbound frames for every chat connection.
type Gateway struct {
	auth     Authenticator
	gate     ChatGate
	channels Channels
	limiter  Limiter
	log      *observability.WSLogger
}

// New builds a Gateway. limiter may be nil.
func New(authn Authenticator, gate ChatGate, channels Channels, limiter Limiter, logger *slog.Logger) *Gateway {
	return &Gateway{
		auth:     authn,
		gate:     gate,
		channels: channels,
		limiter:  limiter,
		log:      observability.NewWSLogger("chat gateway", logger),
	}
}

type connectedPayload struct {
	User models.Identity `json:"user"`
}

type subscribedPayload struct {
	Status     string `json:"status"`
	ItemStatus string `json:"item_status"`
	ChatActive bool   `json:"chat_active"`
}

type historyPayload struct {
	Messages []models.MessageView `json:"messages"`
	Final    bool                 `json:"final"`
}

// replayPageSize bounds the messages carried by one history event.
const replayPageSize = 200

type receiptPayload struct {
	Receipt string `json:"receipt"`
	Seq     uint64 `json:"seq"`
}

// HandleFrame processes one raw frame. A returned error means the connection
// must be closed; every recoverable failure is answered with an error event.
func (g *Gateway) HandleFrame(ctx context.Context, sess *Session, client *notifications.Client, raw []byte) error {
	ctx = middleware.WithConnID(ctx, sess.ConnID())

	frame, err := ParseFrame(raw)
	if err != nil {
		if sess.State() == StateUnauthenticated {
			return g.reject(ctx, sess, client, "", models.NewUnauthorizedError("first frame must be CONNECT"))
		}
		g.fail(ctx, client, "invalid", nil, models.NewValidationError("malformed frame"))
		return nil
	}
	cmd := "unknown"
	if frame.Command.Valid() {
		cmd = string(frame.Command)
	}

	if frame.Command == CommandConnect {
		return g.connect(ctx, sess, client, frame)
	}

	// Restamp only consults the bag while no identity is bound, so any
	// failure here means the connection never completed CONNECT.
	who, err := sess.Restamp(ctx)
	if err != nil {
		switch {
		case errors.Is(err, errSessionEnded):
			return ErrCloseConnection
		case errors.Is(err, errBagUnavailable):
			g.log.LogFrameError(ctx, cmd, frame.RequestID, err)
			return g.reject(ctx, sess, client, cmd, models.NewUnauthorizedError("connection identity unavailable"))
		default:
			return g.reject(ctx, sess, client, cmd, models.NewUnauthorizedError("first frame must be CONNECT"))
		}
	}
	client.SetUserID(who.ID)
	ctx = middleware.WithUserID(ctx, who.ID)

	switch frame.Command {
	case CommandSubscribe:
		err = g.subscribe(ctx, who, client, frame)
	case CommandUnsubscribe:
		err = g.unsubscribe(ctx, client, frame)
	case CommandSend:
		err = g.send(ctx, who, client, frame)
	case CommandDisconnect:
		observability.WebSocketFrames.WithLabelValues(cmd, "ok").Inc()
		g.Disconnect(ctx, sess, client, "client disconnect")
		return ErrCloseConnection
	default:
		err = models.NewValidationError("unknown command")
	}

	if err != nil {
		g.log.LogFrameError(ctx, cmd, frame.RequestID, err)
		g.fail(ctx, client, cmd, frame, err)
		return nil
	}
	observability.WebSocketFrames.WithLabelValues(cmd, "ok").Inc()
	g.log.LogFrame(ctx, cmd, frame.RequestID)
	return nil
}

func (g *Gateway) connect(ctx context.Context, sess *Session, client *notifications.Client, frame *InboundFrame) error {
	cmd := string(CommandConnect)

	switch sess.State() {
	case StateAuthenticated:
		who, _ := sess.Identity()
		observability.WebSocketFrames.WithLabelValues(cmd, "ok").Inc()
		g.emit(client, notifications.ChatEvent{
			Type:    notifications.EventConnected,
			UserID:  who.ID,
			Payload: connectedPayload{User: who},
		})
		return nil
	case StateClosed, StateRejected:
		return ErrCloseConnection
	}

	who, _, err := g.auth.Authenticate(ctx, frame.Token)
	if err != nil {
		return g.reject(ctx, sess, client, cmd, err)
	}

	who, err = sess.Authenticate(ctx, who)
	if err != nil {
		if errors.Is(err, errSessionEnded) {
			return ErrCloseConnection
		}
		slog.WarnContext(ctx, "connection identity not mirrored",
			slog.String("conn_id", sess.ConnID()),
			slog.String("error", err.Error()),
		)
	}
	client.SetUserID(who.ID)
	ctx = middleware.WithUserID(ctx, who.ID)

	observability.WebSocketFrames.WithLabelValues(cmd, "ok").Inc()
	g.log.LogConnect(ctx, who.ID)
	g.emit(client, notifications.ChatEvent{
		Type:    notifications.EventConnected,
		UserID:  who.ID,
		Payload: connectedPayload{User: who},
	})
	return nil
}

func (g *Gateway) subscribe(ctx context.Context, who models.Identity, client *notifications.Client, frame *InboundFrame) error {
	if frame.RequestID == 0 {
		return models.NewValidationError("request_id is required")
	}
	req, err := g.gate.AuthorizeSubscribe(ctx, who, frame.RequestID)
	if err != nil {
		return err
	}

	// Join before reading history so nothing falls between the two.
	g.channels.Subscribe(frame.RequestID, client)

	state := subscribedPayload{
		Status:     string(req.Status),
		ChatActive: req.Status == models.RequestApproved,
	}
	if req.Item != nil {
		state.ItemStatus = string(req.Item.Status)
	}
	g.emit(client, notifications.ChatEvent{
		Type:      notifications.EventSubscribed,
		RequestID: frame.RequestID,
		Payload:   state,
	})

	if err := g.replay(ctx, who, client, frame.RequestID); err != nil {
		g.channels.Unsubscribe(frame.RequestID, client)
		return err
	}
	return nil
}

// replay sends the whole log in seq order, one history event per page. The
// last event has Final set, even when the log is empty.
func (g *Gateway) replay(ctx context.Context, who models.Identity, client *notifications.Client, requestID uint) error {
	page := models.HistoryPage{Limit: replayPageSize}
	for {
		msgs, err := g.gate.History(ctx, who, requestID, page)
		if err != nil {
			return err
		}
		final := len(msgs) < replayPageSize
		g.emit(client, notifications.ChatEvent{
			Type:      notifications.EventHistory,
			RequestID: requestID,
			Payload:   historyPayload{Messages: msgs, Final: final},
		})
		if final {
			return nil
		}
		page.AfterSeq = msgs[len(msgs)-1].Seq
	}
}

func (g *Gateway) unsubscribe(_ context.Context, client *notifications.Client, frame *InboundFrame) error {
	if frame.RequestID == 0 {
		return models.NewValidationError("request_id is required")
	}
	g.channels.Unsubscribe(frame.RequestID, client)
	g.emit(client, notifications.ChatEvent{
		Type:      notifications.EventUnsubscribed,
		RequestID: frame.RequestID,
		Payload:   struct{}{},
	})
	return nil
}

func (g *Gateway) send(ctx context.Context, who models.Identity, client *notifications.Client, frame *InboundFrame) error {
	if frame.RequestID == 0 {
		return models.NewValidationError("request_id is required")
	}
	if g.limiter != nil {
		if err := g.limiter.Allow(ctx, who.ID); err != nil {
			return err
		}
	}
	view, err := g.gate.Send(ctx, who, frame.RequestID, frame.Text)
	if err != nil {
		return err
	}
	if frame.Receipt != "" {
		g.emit(client, notifications.ChatEvent{
			Type:      notifications.EventReceipt,
			RequestID: frame.RequestID,
			Payload:   receiptPayload{Receipt: frame.Receipt, Seq: view.Seq},
		})
	}
	return nil
}

// Disconnect tears the connection out of every channel and ends its session.
// It is safe to call more than once.
func (g *Gateway) Disconnect(ctx context.Context, sess *Session, client *notifications.Client, reason string) {
	g.channels.UnregisterClient(client)
	if sess.State() == StateAuthenticated {
		g.log.LogDisconnect(ctx, client.UserID(), reason)
	}
	sess.Close(ctx)
}

func (g *Gateway) reject(ctx context.Context, sess *Session, client *notifications.Client, cmd string, err error) error {
	appErr := models.AsAppError(err)
	if appErr.Code == models.CodeInternal {
		slog.ErrorContext(ctx, "connect failed", slog.String("error", err.Error()))
	}
	if cmd == "" {
		cmd = "invalid"
	}
	observability.WebSocketFrames.WithLabelValues(cmd, "rejected").Inc()
	g.log.LogReject(ctx, appErr.Code)
	g.emitError(client, 0, appErr, "")
	sess.Reject(ctx)
	return ErrCloseConnection
}

func (g *Gateway) fail(_ context.Context, client *notifications.Client, cmd string, frame *InboundFrame, err error) {
	observability.WebSocketFrames.WithLabelValues(cmd, "error").Inc()
	var requestID uint
	var receipt string
	if frame != nil {
		requestID = frame.RequestID
		receipt = frame.Receipt
	}
	g.emitError(client, requestID, models.AsAppError(err), receipt)
}

func (g *Gateway) emitError(client *notifications.Client, requestID uint, appErr *models.AppError, receipt string) {
	g.emit(client, notifications.ChatEvent{
		Type:      notifications.EventError,
		RequestID: requestID,
		Payload: notifications.ErrorPayload{
			Code:    appErr.Code,
			Message: appErr.Message,
			Receipt: receipt,
		},
	})
}

func (g *Gateway) emit(client *notifications.Client, event notifications.ChatEvent) {
	b, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal chat event", slog.String("type", event.Type), slog.String("error", err.Error()))
		return
	}
	client.TrySend(b)
}
