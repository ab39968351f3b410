package models

import (
	"time"

	"gorm.io/gorm"
)

// ItemStatus mirrors the lifecycle of the open request against an item.
type ItemStatus string

const (
	ItemAvailable ItemStatus = "AVAILABLE"
	ItemRequested ItemStatus = "REQUESTED"
	ItemApproved  ItemStatus = "APPROVED"
	ItemCompleted ItemStatus = "COMPLETED"
)

// ItemType describes what the owner offers or asks for.
type ItemType string

const (
	ItemTypeBorrow ItemType = "BORROW"
	ItemTypeLend   ItemType = "LEND"
	ItemTypeDonate ItemType = "DONATE"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeBorrow, ItemTypeLend, ItemTypeDonate:
		return true
	}
	return false
}

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemAvailable, ItemRequested, ItemApproved, ItemCompleted:
		return true
	}
	return false
}

// Item is the target of a request.
type Item struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	OwnerID     uint           `gorm:"not null;index" json:"owner_id"`
	Owner       *User          `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Title       string         `gorm:"not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Category    string         `gorm:"index" json:"category"`
	Type        ItemType       `gorm:"type:varchar(16);not null" json:"type"`
	Status      ItemStatus     `gorm:"type:varchar(16);not null;default:'AVAILABLE';index" json:"status"`
	ImageURL    string         `json:"image_url"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
