package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Message is a single chat message. Immutable once created except for
// the unread -> read transition (IsRead/ReadAt, one-way).
type Message struct {
	// ID is the unique identifier for the message (UUID).
	ID string `gorm:"primaryKey" json:"id"`

	// ChatID is the owning conversation.
	ChatID string `gorm:"not null;index:idx_chat_msg" json:"chatId"`
	// SenderID must equal the chat's TenantID or ManagerID.
	SenderID string `gorm:"not null;index:idx_chat_msg" json:"senderId"`

	// Content is the message text.
	Content string `gorm:"type:text;not null" json:"content"`
	// Attachments holds references to uploaded files (storage is external).
	Attachments pq.StringArray `gorm:"type:text[]" json:"attachments,omitempty"`

	// IsRead flips to true exactly once, when the counterparty reads the message.
	IsRead bool `gorm:"not null;default:false" json:"isRead"`
	// ReadAt is set together with IsRead.
	ReadAt *time.Time `json:"readAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// BeforeCreate generates a UUID for the message if the ID is not yet set.
func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}
