package service

import (
	"context"
	"log/slog"
	"time"

	"helpboard/internal/models"
	"helpboard/internal/notifications"
	"helpboard/internal/observability"

	"gorm.io/gorm"
)

// MessageRelay appends messages to a request's log and fans them out.
type MessageRelay struct {
	publisher Publisher
	now       func() time.Time
}

// NewMessageRelay returns a relay publishing through publisher, which may be nil.
func NewMessageRelay(publisher Publisher) *MessageRelay {
	return &MessageRelay{publisher: publisher, now: time.Now}
}

// persist appends text to requestID's log inside tx. The caller holds the
// request lock, so seq and timestamp are read and written without a race.
func (r *MessageRelay) persist(tx *gorm.DB, requestID uint, sender models.Identity, text string) (*models.Message, error) {
	var last models.Message
	if err := tx.Where("request_id = ?", requestID).
		Order("seq DESC").
		Limit(1).
		Find(&last).Error; err != nil {
		return nil, err
	}

	ts := r.now().UTC()
	if ts.Before(last.CreatedAt) {
		ts = last.CreatedAt
	}

	msg := &models.Message{
		RequestID: requestID,
		Seq:       last.Seq + 1,
		SenderID:  sender.ID,
		Sender:    &models.User{ID: sender.ID, Name: sender.DisplayName},
		Text:      text,
		CreatedAt: ts,
	}
	if err := tx.Omit("Sender").Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

// publish fans a committed message out. Delivery problems are logged and never
// undo the write.
func (r *MessageRelay) publish(ctx context.Context, msg *models.Message) {
	observability.MessagesRelayed.Inc()
	if r.publisher == nil {
		return
	}
	err := r.publisher.Publish(ctx, msg.RequestID, notifications.ChatEvent{
		Type:    notifications.EventMessage,
		UserID:  msg.SenderID,
		Payload: msg.View(),
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to publish chat message",
			"request_id", msg.RequestID, "seq", msg.Seq, "err", err)
	}
}
