package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"helpboard/internal/models"
	"helpboard/internal/observability"
	"helpboard/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// DefaultMaxMessageLength caps message text when no limit is configured.
const DefaultMaxMessageLength = 2000

// ChatGate decides who may subscribe to and send on a request's channel.
type ChatGate struct {
	requests *RequestService
	relay    *MessageRelay
	messages repository.MessageRepository
	maxLen   int
}

// NewChatGate wires the gate. maxLen <= 0 uses DefaultMaxMessageLength.
func NewChatGate(requests *RequestService, relay *MessageRelay, messages repository.MessageRepository, maxLen int) *ChatGate {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	return &ChatGate{requests: requests, relay: relay, messages: messages, maxLen: maxLen}
}

// AuthorizeSubscribe lets either participant join the channel whatever the
// request status, so they can wait for approval.
func (g *ChatGate) AuthorizeSubscribe(ctx context.Context, who models.Identity, requestID uint) (*models.Request, error) {
	return g.requests.GetForParticipant(ctx, requestID, who.ID)
}

// Send persists text as a message from who and publishes it. Status is checked
// under the same lock and transaction as the write, so a concurrent reject or
// return cannot let the message land afterwards.
func (g *ChatGate) Send(ctx context.Context, who models.Identity, requestID uint, text string) (view *models.MessageView, err error) {
	span, ctx := observability.StartSpan(ctx, "chat.send",
		attribute.Int64("request.id", int64(requestID)),
		attribute.Int64("sender.id", int64(who.ID)),
	)
	defer func() { span.End(err) }()

	text = strings.TrimSpace(text)

	var msg *models.Message
	err = g.requests.WithLockedRequest(ctx, requestID, func(tx *gorm.DB, req *models.Request) error {
		if req.Status != models.RequestApproved {
			return models.ErrChatNotActive
		}
		if !req.IsParticipant(who.ID) {
			return models.NewForbiddenError("not a participant of this request")
		}
		if text == "" {
			return models.ErrEmptyMessage
		}
		if utf8.RuneCountInString(text) > g.maxLen {
			return models.NewValidationError(fmt.Sprintf("message exceeds %d characters", g.maxLen))
		}

		var perr error
		msg, perr = g.relay.persist(tx, requestID, who, text)
		return perr
	})
	if err != nil {
		return nil, err
	}

	g.relay.publish(ctx, msg)
	v := msg.View()
	return &v, nil
}

// History returns the request's messages in order to a participant.
func (g *ChatGate) History(ctx context.Context, who models.Identity, requestID uint, page models.HistoryPage) ([]models.MessageView, error) {
	if _, err := g.requests.GetForParticipant(ctx, requestID, who.ID); err != nil {
		return nil, err
	}
	msgs, err := g.messages.History(ctx, requestID, page)
	if err != nil {
		return nil, err
	}
	views := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, m.View())
	}
	return views, nil
}
