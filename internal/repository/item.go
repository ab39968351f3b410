package repository

import (
	"context"
	"errors"
	"strings"

	"helpboard/internal/models"

	"gorm.io/gorm"
)

// ItemFilter narrows an item listing. Zero values match everything.
type ItemFilter struct {
	OwnerID  uint
	Category string
	Type     models.ItemType
	Status   models.ItemStatus
	Location string
	Query    string
	Limit    int
	Offset   int
}

// ItemRepository defines persistence operations for catalog items.
type ItemRepository interface {
	Create(ctx context.Context, item *models.Item) error
	GetByID(ctx context.Context, id uint) (*models.Item, error)
	List(ctx context.Context, filter ItemFilter) ([]*models.Item, error)
	Update(ctx context.Context, item *models.Item) error
	Delete(ctx context.Context, id uint) error
}

type itemRepository struct {
	db *gorm.DB
}

// NewItemRepository returns a new ItemRepository implementation.
func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) Create(ctx context.Context, item *models.Item) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *itemRepository) GetByID(ctx context.Context, id uint) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).Preload("Owner").First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Item", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &item, nil
}

func (r *itemRepository) List(ctx context.Context, f ItemFilter) ([]*models.Item, error) {
	q := r.db.WithContext(ctx).Model(&models.Item{}).Preload("Owner")
	if f.OwnerID != 0 {
		q = q.Where("items.owner_id = ?", f.OwnerID)
	}
	if f.Category != "" {
		q = q.Where("items.category = ?", f.Category)
	}
	if f.Type != "" {
		q = q.Where("items.type = ?", f.Type)
	}
	if f.Status != "" {
		q = q.Where("items.status = ?", f.Status)
	}
	if f.Location != "" {
		q = q.Joins("JOIN users owners ON owners.id = items.owner_id").
			Where("LOWER(owners.location) = ?", strings.ToLower(f.Location))
	}
	if f.Query != "" {
		like := "%" + strings.ToLower(f.Query) + "%"
		q = q.Where("LOWER(items.title) LIKE ? OR LOWER(items.description) LIKE ?", like, like)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var items []*models.Item
	if err := q.Order("items.created_at DESC, items.id DESC").Find(&items).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return items, nil
}

// Update writes the descriptive fields only. Status belongs to the lifecycle.
func (r *itemRepository) Update(ctx context.Context, item *models.Item) error {
	err := r.db.WithContext(ctx).Model(item).
		Select("title", "description", "category", "type", "image_url").
		Updates(item).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Delete soft-deletes an item unless a request is open against it.
func (r *itemRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status IN ?", id, []models.ItemStatus{models.ItemAvailable, models.ItemCompleted}).
		Delete(&models.Item{})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrTargetUnavailable
	}
	return nil
}
