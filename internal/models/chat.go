package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Participant roles. The token's custom:role claim is folded to one of these.
const (
	RoleTenant  = "tenant"
	RoleManager = "manager"
)

// Chat represents one conversation scoped to exactly one
// (property, tenant, manager) triple. At most one non-deleted chat
// exists per triple; deletion is a soft-delete flag, never a hard delete.
type Chat struct {
	// ID is the unique identifier for the chat (UUID).
	ID string `gorm:"primaryKey" json:"id"`

	// PropertyID references the listing the conversation is about.
	// The partial unique index lets the store enforce at most one
	// non-deleted chat per triple; soft-deleted rows stay out of it.
	PropertyID string `gorm:"not null;uniqueIndex:idx_chat_triple,where:is_deleted = false" json:"propertyId"`
	// PropertyTitle and PropertyPrice are denormalized at creation time
	// so realtime payloads don't need a property lookup.
	PropertyTitle string `gorm:"type:text" json:"propertyTitle"`
	PropertyPrice int    `json:"propertyPrice"`

	// TenantID is the tenant participant.
	TenantID string `gorm:"not null;uniqueIndex:idx_chat_triple" json:"tenantId"`
	// ManagerID is the property manager participant.
	ManagerID string `gorm:"not null;uniqueIndex:idx_chat_triple" json:"managerId"`

	// IsDeleted marks the chat as soft-deleted.
	IsDeleted bool `gorm:"not null;default:false" json:"isDeleted"`

	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is bumped on every new message so inbox lists can sort by activity.
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate generates a UUID for the chat if the ID is not yet set.
func (c *Chat) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// IsParticipant reports whether userID is the chat's tenant or manager.
func (c *Chat) IsParticipant(userID string) bool {
	return userID == c.TenantID || userID == c.ManagerID
}

// OtherParticipant returns the counterparty of userID in the chat.
// Returns "" if userID is not a participant.
func (c *Chat) OtherParticipant(userID string) string {
	switch userID {
	case c.TenantID:
		return c.ManagerID
	case c.ManagerID:
		return c.TenantID
	}
	return ""
}

// RoleOf returns the role userID plays in the chat, or "" for non-participants.
func (c *Chat) RoleOf(userID string) string {
	switch userID {
	case c.TenantID:
		return RoleTenant
	case c.ManagerID:
		return RoleManager
	}
	return ""
}
