package models

import (
	"time"
)

// RequestStatus is the lifecycle state of a request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
	RequestReturned RequestStatus = "RETURNED"
)

// requestEdges lists every permitted transition. Anything else is invalid.
var requestEdges = map[RequestStatus][]RequestStatus{
	RequestPending:  {RequestApproved, RequestRejected},
	RequestApproved: {RequestReturned},
}

// ParseRequestStatus validates a status coming from a client.
func ParseRequestStatus(s string) (RequestStatus, bool) {
	switch st := RequestStatus(s); st {
	case RequestPending, RequestApproved, RequestRejected, RequestReturned:
		return st, true
	}
	return "", false
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range requestEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsOpen reports whether the status still holds the item.
func (s RequestStatus) IsOpen() bool {
	return s == RequestPending || s == RequestApproved
}

// ItemStatusFor is the item status implied by a request status.
func ItemStatusFor(s RequestStatus) ItemStatus {
	switch s {
	case RequestPending:
		return ItemRequested
	case RequestApproved:
		return ItemApproved
	case RequestReturned:
		return ItemCompleted
	default:
		return ItemAvailable
	}
}

// Request ties a requester to an item and gates the chat between the two parties.
// Rows are never deleted, only closed.
type Request struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	ItemID      uint          `gorm:"not null;index" json:"item_id"`
	Item        *Item         `gorm:"foreignKey:ItemID" json:"item,omitempty"`
	RequesterID uint          `gorm:"not null;index" json:"requester_id"`
	Requester   *User         `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	Status      RequestStatus `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	ApprovedAt  *time.Time    `json:"approved_at,omitempty"`
	ClosedAt    *time.Time    `json:"closed_at,omitempty"`
}

// OwnerID is the owner of the requested item. The Item must be loaded.
func (r *Request) OwnerID() uint {
	if r.Item == nil {
		return 0
	}
	return r.Item.OwnerID
}

// IsParticipant reports whether userID is the requester or the item owner.
func (r *Request) IsParticipant(userID uint) bool {
	return userID != 0 && (userID == r.RequesterID || userID == r.OwnerID())
}
