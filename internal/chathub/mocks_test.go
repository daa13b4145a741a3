package chathub_test

import (
	"rentline/backend/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

// MockStorage is a mock implementation of the storage.Storage
// interface, built on testify/mock for flexible expectation setting.
type MockStorage struct {
	mock.Mock
}

// Chat operations

func (m *MockStorage) FindOrCreateChat(chat *models.Chat) (bool, error) {
	args := m.Called(chat)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) GetChatByID(chatID string) (*models.Chat, error) {
	args := m.Called(chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockStorage) GetChatsForUser(userID, role string) ([]models.Chat, error) {
	args := m.Called(userID, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Chat), args.Error(1)
}

func (m *MockStorage) SoftDeleteChat(chatID string) error {
	args := m.Called(chatID)
	return args.Error(0)
}

func (m *MockStorage) TouchChat(chatID string) error {
	args := m.Called(chatID)
	return args.Error(0)
}

// Message operations

// SaveMessage fills in the id the way the real store's create hook
// does, so relay code sees a persisted-looking message.
func (m *MockStorage) SaveMessage(msg *models.Message) error {
	args := m.Called(msg)
	if args.Error(0) == nil && msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	return args.Error(0)
}

func (m *MockStorage) GetChatMessages(chatID string) ([]models.Message, error) {
	args := m.Called(chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) GetMessageByID(messageID string) (*models.Message, error) {
	args := m.Called(messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) MarkMessageRead(messageID string) (*models.Message, bool, error) {
	args := m.Called(messageID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Message), args.Bool(1), args.Error(2)
}

func (m *MockStorage) MarkChatMessagesRead(chatID, readerID string) ([]models.Message, error) {
	args := m.Called(chatID, readerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) CountUnread(chatID, userID string) (int64, error) {
	args := m.Called(chatID, userID)
	return args.Get(0).(int64), args.Error(1)
}

// Presence operations

func (m *MockStorage) SetUserStatus(userID string, online bool) (models.UserStatus, error) {
	args := m.Called(userID, online)
	return args.Get(0).(models.UserStatus), args.Error(1)
}

func (m *MockStorage) GetUserStatus(userID string) (models.UserStatus, error) {
	args := m.Called(userID)
	return args.Get(0).(models.UserStatus), args.Error(1)
}

// Event operations

func (m *MockStorage) PublishEvent(event models.DeletionEvent) error {
	args := m.Called(event)
	return args.Error(0)
}

func (m *MockStorage) SubscribeEvents() *redis.PubSub {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*redis.PubSub)
}
