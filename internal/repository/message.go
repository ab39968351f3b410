package repository

import (
	"context"

	"helpboard/internal/models"

	"gorm.io/gorm"
)

const maxHistoryPage = 500

// MessageRepository reads the per-request message log. Appends happen inside
// the send transaction.
type MessageRepository interface {
	History(ctx context.Context, requestID uint, page models.HistoryPage) ([]*models.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository returns a new MessageRepository implementation.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) History(ctx context.Context, requestID uint, page models.HistoryPage) ([]*models.Message, error) {
	limit := page.Limit
	if limit <= 0 || limit > maxHistoryPage {
		limit = maxHistoryPage
	}

	var msgs []*models.Message
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Where("request_id = ? AND seq > ?", requestID, page.AfterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return msgs, nil
}
