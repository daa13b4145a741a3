package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"rentline/backend/internal/models"
)

// SimilarityWindow bounds how far apart two timestamps may sit for a
// message to count as a duplicate of one already in the list. Client
// and server clocks disagree, so equality is useless here.
const SimilarityWindow = 2 * time.Second

// ClientMessage is a message as the client's view model holds it,
// including the delivery flags a server-side Message never carries.
type ClientMessage struct {
	ID           string    `json:"id"`
	ChatID       string    `json:"chatId"`
	SenderID     string    `json:"senderId"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	IsSending    bool      `json:"isSending,omitempty"`
	IsOptimistic bool      `json:"isOptimistic,omitempty"`
	IsError      bool      `json:"isError,omitempty"`
}

// TempID produces a placeholder identifier that cannot collide with a
// server-assigned one.
func TempID() string {
	var buf [4]byte
	rand.Read(buf[:])
	return fmt.Sprintf("temp-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(buf[:]))
}

// NewOptimistic builds the placeholder entry shown while a send is in
// flight.
func NewOptimistic(chatID, senderID, content string) ClientMessage {
	return ClientMessage{
		ID:           TempID(),
		ChatID:       chatID,
		SenderID:     senderID,
		Content:      content,
		Timestamp:    time.Now(),
		IsSending:    true,
		IsOptimistic: true,
	}
}

// FromServer converts a broadcast message into the client's shape.
func FromServer(msg models.Message) ClientMessage {
	return ClientMessage{
		ID:        msg.ID,
		ChatID:    msg.ChatID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		Timestamp: msg.CreatedAt,
	}
}

// Merge folds an incoming message into the list. Exact id matches and
// near-duplicates of confirmed entries are dropped; a confirmed arrival
// that matches an optimistic placeholder replaces it in place, keeping
// the list position stable; everything else appends.
func Merge(list []ClientMessage, in ClientMessage) []ClientMessage {
	for i := range list {
		if list[i].ID == in.ID {
			return list
		}
	}

	for i := range list {
		if !list[i].IsOptimistic && similar(list[i], in) {
			return list
		}
	}

	if !in.IsOptimistic {
		for i := range list {
			if list[i].IsOptimistic && similar(list[i], in) {
				out := make([]ClientMessage, len(list))
				copy(out, list)
				out[i] = in
				return out
			}
		}
	}

	return append(list, in)
}

func similar(a, b ClientMessage) bool {
	if a.SenderID != b.SenderID || a.Content != b.Content {
		return false
	}
	d := a.Timestamp.Sub(b.Timestamp)
	if d < 0 {
		d = -d
	}
	return d < SimilarityWindow
}

// MarkSent records a successful ack against a placeholder: the entry
// takes the server's id and stops spinning, but stays flagged
// optimistic so the eventual broadcast still dedups against it by id.
func MarkSent(list []ClientMessage, tempID, messageID string) []ClientMessage {
	for i := range list {
		if list[i].ID == tempID {
			list[i].ID = messageID
			list[i].IsSending = false
		}
	}
	return list
}

// MarkFailed flips a placeholder into its error presentation. The
// content stays on the entry so the caller can offer a retry.
func MarkFailed(list []ClientMessage, tempID string) []ClientMessage {
	for i := range list {
		if list[i].ID == tempID {
			list[i].IsSending = false
			list[i].IsError = true
		}
	}
	return list
}
