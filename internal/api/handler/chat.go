package handler

import (
	"errors"
	"log"
	"net/http"

	"rentline/backend/internal/models"
	"rentline/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

// The REST surface is the durability companion to the socket path:
// history retrieval, chat lifecycle, and a fallback message POST for
// clients whose socket is down. Realtime fan-out stays on the hub.

type createChatInput struct {
	PropertyID    string `json:"propertyId" binding:"required"`
	PropertyTitle string `json:"propertyTitle"`
	PropertyPrice int    `json:"propertyPrice"`
	ManagerID     string `json:"managerId" binding:"required"`
	Message       string `json:"message"`
}

type postMessageInput struct {
	Content     string   `json:"content" binding:"required"`
	Attachments []string `json:"attachments"`
}

// ListChats returns the caller's non-deleted chats, newest activity
// first, each with its unread count and the counterparty's presence.
func (h *Handler) ListChats(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}

	chats, err := h.Storage.GetChatsForUser(id.UserID, id.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list chats"})
		return
	}

	out := make([]gin.H, 0, len(chats))
	for i := range chats {
		other := chats[i].OtherParticipant(id.UserID)
		unread, err := h.Storage.CountUnread(chats[i].ID, id.UserID)
		if err != nil {
			log.Printf("ERROR: Failed to count unread for chat %s: %v", chats[i].ID, err)
		}
		status, err := h.Storage.GetUserStatus(other)
		if err != nil {
			log.Printf("ERROR: Failed to read presence for user %s: %v", other, err)
		}
		out = append(out, gin.H{
			"chat":        chats[i],
			"unreadCount": unread,
			"otherUser":   status,
		})
	}

	c.JSON(http.StatusOK, gin.H{"chats": out})
}

// GetChat returns one chat with its full message history. Reading the
// chat marks the other party's unread messages as read as a side
// effect, matching what a user opening the conversation expects.
func (h *Handler) GetChat(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}

	chat, ok := h.loadLiveChat(c, c.Param("id"), id.UserID)
	if !ok {
		return
	}

	if _, err := h.Storage.MarkChatMessagesRead(chat.ID, id.UserID); err != nil {
		log.Printf("ERROR: Failed to mark chat %s read: %v", chat.ID, err)
	}

	messages, err := h.Storage.GetChatMessages(chat.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat": chat, "messages": messages})
}

// CreateChat is the contact-manager action: it creates the chat for
// the (property, tenant, manager) triple or returns the existing one.
// Only tenants initiate contact.
func (h *Handler) CreateChat(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	if id.Role != models.RoleTenant {
		c.JSON(http.StatusForbidden, gin.H{"error": "only tenants can start a conversation"})
		return
	}

	var input createChatInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "propertyId and managerId are required"})
		return
	}

	chat := &models.Chat{
		PropertyID:    input.PropertyID,
		PropertyTitle: input.PropertyTitle,
		PropertyPrice: input.PropertyPrice,
		TenantID:      id.UserID,
		ManagerID:     input.ManagerID,
	}
	created, err := h.Storage.FindOrCreateChat(chat)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create chat"})
		return
	}

	if input.Message != "" {
		msg := &models.Message{ChatID: chat.ID, SenderID: id.UserID, Content: input.Message}
		if err := h.Storage.SaveMessage(msg); err == nil {
			if err := h.Storage.TouchChat(chat.ID); err != nil {
				log.Printf("ERROR: Failed to touch chat %s: %v", chat.ID, err)
			}
		}
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	c.JSON(code, gin.H{"chat": chat})
}

// DeleteChat soft-deletes the chat and publishes a deletion notice so
// the hub can tell both participants' live sockets.
func (h *Handler) DeleteChat(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}

	chat, ok := h.loadLiveChat(c, c.Param("id"), id.UserID)
	if !ok {
		return
	}

	if err := h.Storage.SoftDeleteChat(chat.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete chat"})
		return
	}

	err := h.Storage.PublishEvent(models.DeletionEvent{
		Type:      models.EvtChatDeleted,
		ChatID:    chat.ID,
		TenantID:  chat.TenantID,
		ManagerID: chat.ManagerID,
	})
	if err != nil {
		log.Printf("ERROR: Failed to publish chat_deleted for %s: %v", chat.ID, err)
	}

	c.Status(http.StatusNoContent)
}

// PostMessage persists one message over REST. Used as a durability
// fallback alongside the socket path; the client's reconciliation
// handles the potential double-surface of the same message.
func (h *Handler) PostMessage(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}

	chat, ok := h.loadLiveChat(c, c.Param("id"), id.UserID)
	if !ok {
		return
	}

	var input postMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	msg := &models.Message{
		ChatID:      chat.ID,
		SenderID:    id.UserID,
		Content:     input.Content,
		Attachments: input.Attachments,
	}
	if err := h.Storage.SaveMessage(msg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save message"})
		return
	}
	if err := h.Storage.TouchChat(chat.ID); err != nil {
		log.Printf("ERROR: Failed to touch chat %s: %v", chat.ID, err)
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// MarkMessageRead flips one message to read over REST.
func (h *Handler) MarkMessageRead(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}

	msg, err := h.Storage.GetMessageByID(c.Param("id"))
	if errors.Is(err, storage.ErrMessageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}

	if _, ok := h.loadLiveChat(c, msg.ChatID, id.UserID); !ok {
		return
	}
	if msg.SenderID == id.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the recipient can mark a message as read"})
		return
	}

	updated, _, err := h.Storage.MarkMessageRead(msg.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark message as read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": updated})
}

// MarkChatRead marks all unread messages from the other party as read.
func (h *Handler) MarkChatRead(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}

	chat, ok := h.loadLiveChat(c, c.Param("id"), id.UserID)
	if !ok {
		return
	}

	affected, err := h.Storage.MarkChatMessagesRead(chat.ID, id.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark chat as read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": len(affected)})
}

// loadLiveChat fetches a chat and enforces the shared precondition
// ladder: 404 unknown, 410 soft-deleted, 403 non-participant.
func (h *Handler) loadLiveChat(c *gin.Context, chatID, userID string) (*models.Chat, bool) {
	chat, err := h.Storage.GetChatByID(chatID)
	if errors.Is(err, storage.ErrChatNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
		return nil, false
	}
	if chat.IsDeleted {
		c.JSON(http.StatusGone, gin.H{"error": "chat has been deleted"})
		return nil, false
	}
	if !chat.IsParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this chat"})
		return nil, false
	}
	return chat, true
}
