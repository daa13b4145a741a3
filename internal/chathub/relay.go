package chathub

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"rentline/backend/internal/models"
	"rentline/backend/internal/storage"
)

// Failure classes for relay operations. Each maps to a distinct
// precondition in the send/read/join contracts; the wire carries the
// wrapped message in the ack's error field.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrValidation       = errors.New("validation failed")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrGone             = errors.New("gone")
)

// previewLimit is the number of characters kept in message_notification
// content previews.
const previewLimit = 50

// handleSend validates, persists, and fans out one inbound message.
// Preconditions are checked in order; any failure acks the sender only,
// with nothing persisted and nothing broadcast.
func (m *ManagerService) handleSend(c Client, ev models.ClientEvent) {
	fail := func(err error) {
		m.deliverTo(c, models.MessageAckEvent{
			Type:     models.EvtMessageAck,
			Success:  false,
			ClientID: ev.ClientID,
			Error:    err.Error(),
		})
	}

	if ev.ChatID == "" || ev.Content == "" || ev.SenderID == "" {
		fail(fmt.Errorf("%w: chatId, content and senderId are required", ErrValidation))
		return
	}

	e := m.registry.bySocket(c.GetSocketID())
	if e == nil || e.userID == "" {
		fail(ErrNotAuthenticated)
		return
	}
	// A connection must not impersonate another sender.
	if ev.SenderID != e.userID {
		fail(fmt.Errorf("%w: senderId does not match the authenticated user", ErrForbidden))
		return
	}

	chat, err := m.Storage.GetChatByID(ev.ChatID)
	if errors.Is(err, storage.ErrChatNotFound) {
		fail(fmt.Errorf("%w: chat %s", ErrNotFound, ev.ChatID))
		return
	}
	if err != nil {
		fail(fmt.Errorf("failed to load chat: %v", err))
		return
	}
	if chat.IsDeleted {
		fail(fmt.Errorf("%w: chat has been deleted", ErrGone))
		return
	}
	if !chat.IsParticipant(ev.SenderID) {
		fail(fmt.Errorf("%w: sender is not a participant of this chat", ErrForbidden))
		return
	}

	msg := &models.Message{
		ChatID:      chat.ID,
		SenderID:    ev.SenderID,
		Content:     ev.Content,
		Attachments: ev.Attachments,
	}
	if err := m.Storage.SaveMessage(msg); err != nil {
		fail(fmt.Errorf("failed to save message: %v", err))
		return
	}
	if err := m.Storage.TouchChat(chat.ID); err != nil {
		log.Printf("ERROR: Failed to touch chat %s: %v", chat.ID, err)
	}

	senderType := chat.RoleOf(ev.SenderID)
	recipient := chat.OtherParticipant(ev.SenderID)

	m.broadcastToChat(chat, models.NewMessageEvent{
		Type:          models.EvtNewMessage,
		Message:       msg,
		ChatID:        chat.ID,
		SenderID:      ev.SenderID,
		SenderType:    senderType,
		ClientID:      ev.ClientID,
		PropertyID:    chat.PropertyID,
		PropertyTitle: chat.PropertyTitle,
		PropertyPrice: chat.PropertyPrice,
		Content:       msg.Content,
	})

	// Direct ack to the originating connection, not broadcast.
	m.deliverTo(c, models.MessageAckEvent{
		Type:      models.EvtMessageAck,
		Success:   true,
		MessageID: msg.ID,
		ClientID:  ev.ClientID,
	})

	unread, err := m.Storage.CountUnread(chat.ID, recipient)
	if err != nil {
		log.Printf("ERROR: Failed to count unread for chat %s: %v", chat.ID, err)
	}

	m.sendToUserRoom(recipient, models.MessageNotificationEvent{
		Type:          models.EvtMessageNotification,
		ChatID:        chat.ID,
		MessageID:     msg.ID,
		SenderID:      ev.SenderID,
		SenderType:    senderType,
		PropertyID:    chat.PropertyID,
		PropertyTitle: chat.PropertyTitle,
		Content:       truncateContent(msg.Content),
	})

	m.broadcastToChat(chat, models.ChatUpdatedEvent{
		Type:        models.EvtChatUpdated,
		ChatID:      chat.ID,
		UnreadCount: unread,
	})
}

// handleMarkRead flips one message to read. Only the message's
// non-sender participant may do this; re-marking an already-read
// message is a silent no-op (no duplicate message_read).
func (m *ManagerService) handleMarkRead(c Client, ev models.ClientEvent) {
	e := m.registry.bySocket(c.GetSocketID())
	if e == nil || e.userID == "" {
		m.deliverTo(c, models.ErrorEvent{Type: models.EvtError, Error: ErrNotAuthenticated.Error()})
		return
	}
	if ev.MessageID == "" {
		m.deliverTo(c, models.ErrorEvent{Type: models.EvtError, Error: "messageId is required"})
		return
	}

	msg, err := m.Storage.GetMessageByID(ev.MessageID)
	if err != nil {
		m.deliverTo(c, models.ErrorEvent{Type: models.EvtError, Error: "message not found"})
		return
	}
	chat, err := m.Storage.GetChatByID(msg.ChatID)
	if err != nil || chat.IsDeleted {
		m.deliverTo(c, models.ErrorEvent{Type: models.EvtError, Error: "chat is gone"})
		return
	}
	if !chat.IsParticipant(e.userID) || msg.SenderID == e.userID {
		m.deliverTo(c, models.ErrorEvent{Type: models.EvtError, Error: "only the recipient can mark a message as read"})
		return
	}

	updated, transitioned, err := m.Storage.MarkMessageRead(msg.ID)
	if err != nil {
		m.deliverTo(c, models.ErrorEvent{Type: models.EvtError, Error: "failed to mark message as read"})
		return
	}
	if !transitioned {
		return
	}

	m.sendToUserRoom(msg.SenderID, models.MessageReadEvent{
		Type:      models.EvtMessageRead,
		MessageID: updated.ID,
		ChatID:    updated.ChatID,
		ReadBy:    e.userID,
		ReadAt:    *updated.ReadAt,
	})
}

// handleMarkChatRead marks every unread message from the other party
// in one operation and emits one message_read per affected message.
func (m *ManagerService) handleMarkChatRead(c Client, ev models.ClientEvent) {
	e := m.registry.bySocket(c.GetSocketID())
	if e == nil || e.userID == "" {
		m.deliverTo(c, models.ErrorEvent{Type: models.EvtError, Error: ErrNotAuthenticated.Error()})
		return
	}

	chat, err := m.Storage.GetChatByID(ev.ChatID)
	if err != nil || chat.IsDeleted {
		m.deliverTo(c, models.ErrorEvent{Type: models.EvtError, Error: "chat is gone"})
		return
	}
	if !chat.IsParticipant(e.userID) {
		m.deliverTo(c, models.ErrorEvent{Type: models.EvtError, Error: ErrForbidden.Error()})
		return
	}

	affected, err := m.Storage.MarkChatMessagesRead(chat.ID, e.userID)
	if err != nil {
		m.deliverTo(c, models.ErrorEvent{Type: models.EvtError, Error: "failed to mark chat as read"})
		return
	}

	for i := range affected {
		m.sendToUserRoom(affected[i].SenderID, models.MessageReadEvent{
			Type:      models.EvtMessageRead,
			MessageID: affected[i].ID,
			ChatID:    affected[i].ChatID,
			ReadBy:    e.userID,
			ReadAt:    *affected[i].ReadAt,
		})
	}
}

// handleTyping relays an ephemeral typing signal to the chat room,
// excluding the sender. No persistence, no ack; silently dropped when
// the chat is missing, deleted, or the sender is not a participant.
func (m *ManagerService) handleTyping(c Client, ev models.ClientEvent) {
	e := m.registry.bySocket(c.GetSocketID())
	if e == nil || e.userID == "" {
		return
	}

	chat, err := m.Storage.GetChatByID(ev.ChatID)
	if err != nil || chat.IsDeleted || !chat.IsParticipant(e.userID) {
		return
	}

	m.broadcastToChatExcept(chat, c.GetSocketID(), models.UserTypingEvent{
		Type:     models.EvtUserTyping,
		ChatID:   chat.ID,
		UserID:   e.userID,
		UserType: e.role,
		IsTyping: ev.IsTyping,
	})
}

// handleJoinRoom joins a room after checking the connection may be in
// it: its own user room, or a chat room of a live chat it participates
// in. Join is idempotent per connection.
func (m *ManagerService) handleJoinRoom(c Client, ev models.ClientEvent) {
	ack := func(ok bool) {
		m.deliverTo(c, models.RoomAckEvent{Type: models.EvtRoomJoined, Success: ok, Room: ev.Room})
	}

	e := m.registry.bySocket(c.GetSocketID())
	if e == nil || e.userID == "" || ev.Room == "" {
		ack(false)
		return
	}

	switch {
	case ev.Room == UserRoom(e.userID):
		// Own inbox channel, always allowed.
	case strings.HasPrefix(ev.Room, "chat:"):
		chat, err := m.Storage.GetChatByID(strings.TrimPrefix(ev.Room, "chat:"))
		if err != nil || chat.IsDeleted || !chat.IsParticipant(e.userID) {
			ack(false)
			return
		}
	default:
		ack(false)
		return
	}

	m.registry.joinRoom(e, ev.Room)
	ack(true)
}

func (m *ManagerService) handleLeaveRoom(c Client, ev models.ClientEvent) {
	e := m.registry.bySocket(c.GetSocketID())
	if e != nil {
		m.registry.leaveRoom(e, ev.Room)
	}
	m.deliverTo(c, models.RoomAckEvent{Type: models.EvtRoomLeft, Success: true, Room: ev.Room})
}

func truncateContent(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLimit {
		return content
	}
	return string(runes[:previewLimit]) + "..."
}
