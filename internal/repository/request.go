package repository

import (
	"context"
	"errors"

	"helpboard/internal/models"

	"gorm.io/gorm"
)

// RequestRole selects which side of a request a listing is for.
type RequestRole string

const (
	RoleRequester RequestRole = "requester"
	RoleOwner     RequestRole = "owner"
	// RoleAny lists requests from both sides.
	RoleAny RequestRole = "any"
)

// RequestRepository reads requests. Writes go through the lifecycle service,
// which owns the transaction boundary.
type RequestRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Request, error)
	ListForUser(ctx context.Context, userID uint, role RequestRole) ([]*models.Request, error)
}

type requestRepository struct {
	db *gorm.DB
}

// NewRequestRepository returns a new RequestRepository implementation.
func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) GetByID(ctx context.Context, id uint) (*models.Request, error) {
	var req models.Request
	err := r.db.WithContext(ctx).
		Preload("Item", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Item.Owner").
		Preload("Requester").
		First(&req, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Request", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &req, nil
}

func (r *requestRepository) ListForUser(ctx context.Context, userID uint, role RequestRole) ([]*models.Request, error) {
	q := r.db.WithContext(ctx).Model(&models.Request{}).
		Preload("Item", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Requester")

	switch role {
	case RoleOwner:
		q = q.Joins("JOIN items ON items.id = requests.item_id").Where("items.owner_id = ?", userID)
	case RoleAny:
		q = q.Joins("JOIN items ON items.id = requests.item_id").
			Where("requests.requester_id = ? OR items.owner_id = ?", userID, userID)
	default:
		q = q.Where("requests.requester_id = ?", userID)
	}

	var reqs []*models.Request
	if err := q.Order("requests.created_at DESC, requests.id DESC").Find(&reqs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}
