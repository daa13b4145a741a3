package models

import "time"

// UserStatus is the presence record for one user: online flag plus
// last-seen timestamp. Written on connect/authenticate and disconnect,
// keyed by user id with last-writer-wins semantics.
type UserStatus struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}
