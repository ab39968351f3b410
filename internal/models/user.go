// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// User represents a neighbour registered on the board.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	Location  string    `gorm:"index" json:"location"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Items     []Item    `gorm:"foreignKey:OwnerID" json:"items,omitempty"`
}

// Identity is the authenticated subject attached to a connection or request.
// It is immutable once issued.
type Identity struct {
	ID          uint   `json:"id"`
	DisplayName string `json:"display_name"`
}

// Identity returns the subject view of the user.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, DisplayName: u.Name}
}
