package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"rentline/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// EventsChannel is the Redis Pub/Sub channel the REST layer publishes
// deletion notices on; the chat hub subscribes to it.
const EventsChannel = "rentline:events"

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrMessageNotFound = errors.New("message not found")
)

type Storage interface {
	// Chats
	FindOrCreateChat(chat *models.Chat) (created bool, err error)
	GetChatByID(chatID string) (*models.Chat, error)
	GetChatsForUser(userID, role string) ([]models.Chat, error)
	SoftDeleteChat(chatID string) error
	TouchChat(chatID string) error

	// Messages
	SaveMessage(msg *models.Message) error
	GetChatMessages(chatID string) ([]models.Message, error)
	GetMessageByID(messageID string) (*models.Message, error)
	MarkMessageRead(messageID string) (*models.Message, bool, error)
	MarkChatMessagesRead(chatID, readerID string) ([]models.Message, error)
	CountUnread(chatID, userID string) (int64, error)

	// Presence
	SetUserStatus(userID string, online bool) (models.UserStatus, error)
	GetUserStatus(userID string) (models.UserStatus, error)

	// Cross-process events
	PublishEvent(event models.DeletionEvent) error
	SubscribeEvents() *redis.PubSub
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

// FindOrCreateChat returns the existing non-deleted chat for the
// (property, tenant, manager) triple, or creates one. A soft-deleted
// chat never matches, so deleting and contacting again starts fresh.
// The partial unique index on the triple backs the at-most-one
// invariant; losing a concurrent create falls back to the winner's row.
func (s *Service) FindOrCreateChat(chat *models.Chat) (bool, error) {
	var existing models.Chat
	find := func() error {
		return s.DB.
			Where("property_id = ? AND tenant_id = ? AND manager_id = ? AND is_deleted = ?",
				chat.PropertyID, chat.TenantID, chat.ManagerID, false).
			First(&existing).Error
	}

	err := find()
	if err == nil {
		*chat = existing
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	if err := s.DB.Create(chat).Error; err != nil {
		if ferr := find(); ferr == nil {
			*chat = existing
			return false, nil
		}
		log.Printf("ERROR: Failed to create chat for property %s: %v", chat.PropertyID, err)
		return false, err
	}
	return true, nil
}

// GetChatByID returns the chat regardless of its soft-delete flag;
// callers decide whether a deleted chat is acceptable.
func (s *Service) GetChatByID(chatID string) (*models.Chat, error) {
	var chat models.Chat
	err := s.DB.Where("id = ?", chatID).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		log.Printf("ERROR: Failed to get chat %s: %v", chatID, err)
		return nil, err
	}
	return &chat, nil
}

// GetChatsForUser lists the user's non-deleted chats, newest activity
// first. The role decides which participant column is matched.
func (s *Service) GetChatsForUser(userID, role string) ([]models.Chat, error) {
	column := "tenant_id"
	if role == models.RoleManager {
		column = "manager_id"
	}

	var chats []models.Chat
	err := s.DB.
		Where(column+" = ? AND is_deleted = ?", userID, false).
		Order("updated_at desc").
		Find(&chats).Error
	if err != nil {
		log.Printf("ERROR: Failed to list chats for user %s: %v", userID, err)
		return nil, err
	}
	return chats, nil
}

// SoftDeleteChat flips the chat's is_deleted flag. The row stays.
func (s *Service) SoftDeleteChat(chatID string) error {
	return s.DB.Model(&models.Chat{}).
		Where("id = ?", chatID).
		Update("is_deleted", true).Error
}

// TouchChat bumps the chat's updated_at so inbox lists resort on activity.
func (s *Service) TouchChat(chatID string) error {
	return s.DB.Model(&models.Chat{}).
		Where("id = ?", chatID).
		Update("updated_at", time.Now()).Error
}

func (s *Service) SaveMessage(msg *models.Message) error {
	if err := s.DB.Create(msg).Error; err != nil {
		log.Printf("ERROR: Failed to save message for chat %s: %v", msg.ChatID, err)
		return err
	}
	return nil
}

// GetChatMessages returns a chat's messages in chronological order.
func (s *Service) GetChatMessages(chatID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.DB.Where("chat_id = ?", chatID).Order("created_at asc").Find(&messages).Error
	if err != nil {
		log.Printf("ERROR: Failed to get messages for chat %s: %v", chatID, err)
		return nil, err
	}
	return messages, nil
}

func (s *Service) GetMessageByID(messageID string) (*models.Message, error) {
	var msg models.Message
	err := s.DB.Where("id = ?", messageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkMessageRead flips the message to read. The transition is one-way
// and idempotent: re-marking an already-read message reports
// transitioned=false and changes nothing.
func (s *Service) MarkMessageRead(messageID string) (*models.Message, bool, error) {
	msg, err := s.GetMessageByID(messageID)
	if err != nil {
		return nil, false, err
	}
	if msg.IsRead {
		return msg, false, nil
	}

	now := time.Now()
	err = s.DB.Model(&models.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{"is_read": true, "read_at": now}).Error
	if err != nil {
		return nil, false, err
	}

	msg.IsRead = true
	msg.ReadAt = &now
	return msg, true, nil
}

// MarkChatMessagesRead marks every unread message in the chat sent by
// the other party as read, returning the affected messages.
func (s *Service) MarkChatMessagesRead(chatID, readerID string) ([]models.Message, error) {
	var unread []models.Message
	err := s.DB.
		Where("chat_id = ? AND sender_id <> ? AND is_read = ?", chatID, readerID, false).
		Order("created_at asc").
		Find(&unread).Error
	if err != nil {
		return nil, err
	}
	if len(unread) == 0 {
		return nil, nil
	}

	now := time.Now()
	err = s.DB.Model(&models.Message{}).
		Where("chat_id = ? AND sender_id <> ? AND is_read = ?", chatID, readerID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now}).Error
	if err != nil {
		return nil, err
	}

	for i := range unread {
		unread[i].IsRead = true
		unread[i].ReadAt = &now
	}
	return unread, nil
}

// CountUnread counts the chat's messages the given user has not read
// yet, i.e. unread messages sent by the other party.
func (s *Service) CountUnread(chatID, userID string) (int64, error) {
	var count int64
	err := s.DB.Model(&models.Message{}).
		Where("chat_id = ? AND sender_id <> ? AND is_read = ?", chatID, userID, false).
		Count(&count).Error
	return count, err
}

func presenceKey(userID string) string {
	return "presence:" + userID
}

// SetUserStatus upserts the user's presence record in Redis.
// Writes are keyed by user id with last-writer-wins semantics.
func (s *Service) SetUserStatus(userID string, online bool) (models.UserStatus, error) {
	status := models.UserStatus{
		UserID:   userID,
		IsOnline: online,
		LastSeen: time.Now(),
	}

	onlineVal := "0"
	if online {
		onlineVal = "1"
	}
	err := s.Redis.HSet(s.Ctx, presenceKey(userID),
		"is_online", onlineVal,
		"last_seen", status.LastSeen.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		log.Printf("ERROR: Failed to write presence for user %s: %v", userID, err)
		return status, err
	}
	return status, nil
}

// GetUserStatus reads the user's presence record. A user with no
// record yet reads as offline with a zero last-seen.
func (s *Service) GetUserStatus(userID string) (models.UserStatus, error) {
	fields, err := s.Redis.HGetAll(s.Ctx, presenceKey(userID)).Result()
	if err != nil {
		return models.UserStatus{UserID: userID}, err
	}

	status := models.UserStatus{UserID: userID}
	if fields["is_online"] == "1" {
		status.IsOnline = true
	}
	if raw, ok := fields["last_seen"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			status.LastSeen = ts
		}
	}
	return status, nil
}

// PublishEvent publishes a deletion notice on the events channel.
func (s *Service) PublishEvent(event models.DeletionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.Redis.Publish(s.Ctx, EventsChannel, string(payload)).Err()
}

func (s *Service) SubscribeEvents() *redis.PubSub {
	return s.Redis.Subscribe(s.Ctx, EventsChannel)
}
