package models

import (
	"time"
)

// Message is an append-only chat entry on a request.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RequestID uint      `gorm:"not null;uniqueIndex:idx_messages_request_seq,priority:1" json:"request_id"`
	Seq       uint64    `gorm:"not null;uniqueIndex:idx_messages_request_seq,priority:2" json:"seq"`
	SenderID  uint      `gorm:"not null;index" json:"sender_id"`
	Sender    *User     `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"not null" json:"timestamp"`
}

// MessageView is the wire shape of a message on the channel and in history.
type MessageView struct {
	ID         uint      `json:"id"`
	RequestID  uint      `json:"request_id"`
	Seq        uint64    `json:"seq"`
	SenderID   uint      `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// View converts a stored message. Sender should be preloaded for the name.
func (m *Message) View() MessageView {
	v := MessageView{
		ID:        m.ID,
		RequestID: m.RequestID,
		Seq:       m.Seq,
		SenderID:  m.SenderID,
		Text:      m.Text,
		Timestamp: m.CreatedAt,
	}
	if m.Sender != nil {
		v.SenderName = m.Sender.Name
	}
	return v
}

// HistoryPage bounds a history read. AfterSeq 0 reads from the start.
type HistoryPage struct {
	AfterSeq uint64
	Limit    int
}
