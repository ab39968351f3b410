// Package service holds the request lifecycle and the chat rules built on it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"helpboard/internal/database"
	"helpboard/internal/models"
	"helpboard/internal/notifications"
	"helpboard/internal/observability"
	"helpboard/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Publisher delivers an event to every subscriber of a request's channel.
type Publisher interface {
	Publish(ctx context.Context, requestID uint, event notifications.ChatEvent) error
}

// RequestService owns the request state machine and keeps the item status in
// step with it. Every mutation runs in one transaction under a per-key lock.
type RequestService struct {
	db        *gorm.DB
	requests  repository.RequestRepository
	publisher Publisher
	locks     *keyedMutex
	now       func() time.Time
}

// NewRequestService returns a RequestService. publisher may be nil.
func NewRequestService(db *gorm.DB, requests repository.RequestRepository, publisher Publisher) *RequestService {
	return &RequestService{
		db:        db,
		requests:  requests,
		publisher: publisher,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

func itemLockKey(id uint) string    { return fmt.Sprintf("item:%d", id) }
func requestLockKey(id uint) string { return fmt.Sprintf("request:%d", id) }

func forUpdate() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}

// storageError passes domain errors through and hides everything else.
func storageError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return models.NewInternalError(err)
}

// Open creates a PENDING request for itemID and marks the item REQUESTED.
func (s *RequestService) Open(ctx context.Context, itemID, requesterID uint) (*models.Request, error) {
	unlock := s.locks.Lock(itemLockKey(itemID))
	defer unlock()

	var created models.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.Item
		if err := tx.Clauses(forUpdate()).First(&item, itemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Item", itemID)
			}
			return err
		}
		if item.OwnerID == requesterID {
			return models.ErrSelfReference
		}
		if item.Status != models.ItemAvailable {
			return models.ErrTargetUnavailable
		}

		var open int64
		if err := tx.Model(&models.Request{}).
			Where("item_id = ? AND status IN ?", itemID, []models.RequestStatus{models.RequestPending, models.RequestApproved}).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return models.ErrDuplicateOpenRequest
		}

		created = models.Request{
			ItemID:      itemID,
			RequesterID: requesterID,
			Status:      models.RequestPending,
		}
		if err := tx.Create(&created).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return models.ErrDuplicateOpenRequest
			}
			return err
		}

		res := tx.Model(&models.Item{}).
			Where("id = ? AND status = ?", itemID, models.ItemAvailable).
			Update("status", models.ItemRequested)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrTargetUnavailable
		}
		return nil
	})
	if err != nil {
		return nil, storageError(err)
	}

	observability.RequestTransitions.WithLabelValues(string(models.RequestPending)).Inc()
	return s.requests.GetByID(ctx, created.ID)
}

// Transition moves a request along one lifecycle edge on behalf of the item
// owner and publishes the new status to the request's channel.
func (s *RequestService) Transition(ctx context.Context, requestID, actorID uint, to models.RequestStatus) (req *models.Request, err error) {
	span, ctx := observability.StartSpan(ctx, "request.transition",
		attribute.Int64("request.id", int64(requestID)),
		attribute.String("request.to", string(to)),
	)
	defer func() { span.End(err) }()

	err = s.WithLockedRequest(ctx, requestID, func(tx *gorm.DB, r *models.Request) error {
		if r.OwnerID() != actorID {
			return models.NewForbiddenError("only the item owner can change a request's status")
		}
		if !models.CanTransition(r.Status, to) {
			return models.NewInvalidTransitionError(r.Status, to)
		}

		now := s.now().UTC()
		updates := map[string]any{"status": to}
		switch to {
		case models.RequestApproved:
			updates["approved_at"] = now
		case models.RequestRejected, models.RequestReturned:
			updates["closed_at"] = now
		}
		if err := tx.Model(&models.Request{}).Where("id = ?", r.ID).Updates(updates).Error; err != nil {
			return err
		}

		return tx.Unscoped().Model(&models.Item{}).
			Where("id = ?", r.ItemID).
			Update("status", models.ItemStatusFor(to)).Error
	})
	if err != nil {
		return nil, err
	}

	observability.RequestTransitions.WithLabelValues(string(to)).Inc()
	s.publish(ctx, requestID, notifications.ChatEvent{
		Type:   notifications.EventStatus,
		UserID: actorID,
		Payload: notifications.StatusPayload{
			Status:     string(to),
			ItemStatus: string(models.ItemStatusFor(to)),
			ChatActive: to == models.RequestApproved,
		},
	})
	return s.requests.GetByID(ctx, requestID)
}

// WithLockedRequest runs fn in a transaction holding the request's lock and
// row lock. The request passed to fn has its Item loaded.
func (s *RequestService) WithLockedRequest(ctx context.Context, requestID uint, fn func(tx *gorm.DB, req *models.Request) error) error {
	unlock := s.locks.Lock(requestLockKey(requestID))
	defer unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.Request
		if err := tx.Clauses(forUpdate()).First(&req, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Request", requestID)
			}
			return err
		}
		var item models.Item
		if err := tx.Unscoped().Clauses(forUpdate()).First(&item, req.ItemID).Error; err != nil {
			return err
		}
		req.Item = &item
		return fn(tx, &req)
	})
	return storageError(err)
}

// IsOpenForMessaging reports whether the request is APPROVED. It reads
// current state on every call.
func (s *RequestService) IsOpenForMessaging(ctx context.Context, requestID uint) (bool, error) {
	var req models.Request
	err := s.db.WithContext(ctx).Select("id", "status").First(&req, requestID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, models.NewNotFoundError("Request", requestID)
		}
		return false, models.NewInternalError(err)
	}
	return req.Status == models.RequestApproved, nil
}

// GetForParticipant returns the request if viewerID is one of its two parties.
func (s *RequestService) GetForParticipant(ctx context.Context, requestID, viewerID uint) (*models.Request, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.IsParticipant(viewerID) {
		return nil, models.NewForbiddenError("not a participant of this request")
	}
	return req, nil
}

// ListForUser returns the user's requests from one side.
func (s *RequestService) ListForUser(ctx context.Context, userID uint, role repository.RequestRole) ([]*models.Request, error) {
	return s.requests.ListForUser(ctx, userID, role)
}

func (s *RequestService) publish(ctx context.Context, requestID uint, event notifications.ChatEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, requestID, event); err != nil {
		slog.WarnContext(ctx, "failed to publish request event",
			"request_id", requestID, "type", event.Type, "err", err)
	}
}
