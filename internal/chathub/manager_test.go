package chathub_test

import (
	"testing"
	"time"

	"rentline/backend/internal/chathub"
	"rentline/backend/internal/models"
	"rentline/backend/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func fixtureChat() *models.Chat {
	return &models.Chat{
		ID:            "chat-1",
		PropertyID:    "prop-1",
		PropertyTitle: "Loft on Main St",
		PropertyPrice: 1200,
		TenantID:      "tenant-1",
		ManagerID:     "manager-1",
	}
}

func startHub(storageMock *MockStorage) *chathub.ManagerService {
	hub := chathub.NewManagerService(storageMock)
	storageMock.On("SubscribeEvents").Return(nil)
	go hub.Run()
	return hub
}

// register pushes a client through the hub's registration path with
// the given identity and waits for the loop to process it.
func register(hub *chathub.ManagerService, storageMock *MockStorage, c chathub.Client, userID, role string, chats []models.Chat) {
	storageMock.On("SetUserStatus", userID, true).Return(models.UserStatus{UserID: userID, IsOnline: true, LastSeen: time.Now()}, nil)
	storageMock.On("GetChatsForUser", userID, role).Return(chats, nil)
	hub.RegisterCh <- chathub.Registration{Client: c, Identity: token.Identity{UserID: userID, Role: role}}
	time.Sleep(50 * time.Millisecond)
}

func eventsOfType(events []models.ServerEvent, match func(models.ServerEvent) bool) int {
	n := 0
	for _, ev := range events {
		if match(ev) {
			n++
		}
	}
	return n
}

func TestManager_RegisterAuthenticatesAndJoinsRooms(t *testing.T) {
	storageMock := new(MockStorage)
	hub := startHub(storageMock)
	chat := fixtureChat()

	tenant := newMockClient("sock-t1")
	register(hub, storageMock, tenant, "tenant-1", models.RoleTenant, []models.Chat{*chat})

	events := tenant.drain()
	found := false
	for _, ev := range events {
		if auth, ok := ev.(models.AuthenticatedEvent); ok {
			assert.Equal(t, "tenant-1", auth.UserID)
			assert.Equal(t, models.RoleTenant, auth.Role)
			found = true
		}
	}
	assert.True(t, found, "client should receive an authenticated event")
	storageMock.AssertCalled(t, "SetUserStatus", "tenant-1", true)
}

func TestManager_PresenceBroadcastScopedPerChat(t *testing.T) {
	storageMock := new(MockStorage)
	hub := startHub(storageMock)
	chat := fixtureChat()

	manager := newMockClient("sock-m1")
	register(hub, storageMock, manager, "manager-1", models.RoleManager, []models.Chat{*chat})

	// An unrelated manager with no shared chat must hear nothing.
	bystander := newMockClient("sock-m2")
	register(hub, storageMock, bystander, "manager-2", models.RoleManager, nil)
	manager.drain()
	bystander.drain()

	tenant := newMockClient("sock-t1")
	register(hub, storageMock, tenant, "tenant-1", models.RoleTenant, []models.Chat{*chat})

	online := 0
	for _, ev := range manager.drain() {
		if status, ok := ev.(models.UserStatusChangedEvent); ok {
			assert.Equal(t, "tenant-1", status.UserID)
			assert.True(t, status.IsOnline)
			assert.Equal(t, chat.ID, status.ChatID, "presence must be scoped to the shared chat")
			online++
		}
	}
	assert.Equal(t, 1, online, "one presence event per shared chat")
	assert.Empty(t, bystander.drain(), "no presence leak to users without a shared chat")

	// Disconnect flips the counterparty to offline, same scoping.
	storageMock.On("SetUserStatus", "tenant-1", false).Return(models.UserStatus{UserID: "tenant-1", LastSeen: time.Now()}, nil)
	hub.UnregisterCh <- tenant
	time.Sleep(50 * time.Millisecond)

	offline := 0
	for _, ev := range manager.drain() {
		if status, ok := ev.(models.UserStatusChangedEvent); ok {
			assert.False(t, status.IsOnline)
			assert.Equal(t, chat.ID, status.ChatID)
			offline++
		}
	}
	assert.Equal(t, 1, offline)
}

func TestManager_MultiTabDisconnectKeepsUserOnline(t *testing.T) {
	storageMock := new(MockStorage)
	hub := startHub(storageMock)
	chat := fixtureChat()

	tabA := newMockClient("sock-a")
	tabB := newMockClient("sock-b")
	register(hub, storageMock, tabA, "tenant-1", models.RoleTenant, []models.Chat{*chat})
	register(hub, storageMock, tabB, "tenant-1", models.RoleTenant, []models.Chat{*chat})

	hub.UnregisterCh <- tabA
	time.Sleep(50 * time.Millisecond)
	storageMock.AssertNotCalled(t, "SetUserStatus", "tenant-1", false)

	storageMock.On("SetUserStatus", "tenant-1", false).Return(models.UserStatus{UserID: "tenant-1", LastSeen: time.Now()}, nil)
	hub.UnregisterCh <- tabB
	time.Sleep(50 * time.Millisecond)
	storageMock.AssertCalled(t, "SetUserStatus", "tenant-1", false)
}

func TestManager_JoinRoomIdempotent(t *testing.T) {
	storageMock := new(MockStorage)
	hub := startHub(storageMock)
	chat := fixtureChat()

	tenant := newMockClient("sock-t1")
	manager := newMockClient("sock-m1")
	register(hub, storageMock, tenant, "tenant-1", models.RoleTenant, []models.Chat{*chat})
	register(hub, storageMock, manager, "manager-1", models.RoleManager, []models.Chat{*chat})

	storageMock.On("GetChatByID", chat.ID).Return(chat, nil)

	// Registration already auto-joined the room; two explicit joins on
	// top must still leave exactly one membership.
	hub.IncomingCh <- chathub.Inbound{Client: tenant, Event: models.ClientEvent{Type: models.EvtJoinRoom, Room: chathub.ChatRoom(chat.ID)}}
	hub.IncomingCh <- chathub.Inbound{Client: tenant, Event: models.ClientEvent{Type: models.EvtJoinRoom, Room: chathub.ChatRoom(chat.ID)}}
	time.Sleep(50 * time.Millisecond)
	tenant.drain()

	storageMock.On("SaveMessage", mock.AnythingOfType("*models.Message")).Return(nil)
	storageMock.On("TouchChat", chat.ID).Return(nil)
	storageMock.On("CountUnread", chat.ID, "tenant-1").Return(int64(1), nil)

	hub.IncomingCh <- chathub.Inbound{Client: manager, Event: models.ClientEvent{
		Type:     models.EvtSendMessage,
		ChatID:   chat.ID,
		Content:  "The unit is still available.",
		SenderID: "manager-1",
	}}
	time.Sleep(50 * time.Millisecond)

	delivered := eventsOfType(tenant.drain(), func(ev models.ServerEvent) bool {
		_, ok := ev.(models.NewMessageEvent)
		return ok
	})
	assert.Equal(t, 1, delivered, "duplicate room joins must not duplicate delivery")
}

func TestManager_DeletionEventFanout(t *testing.T) {
	storageMock := new(MockStorage)
	hub := startHub(storageMock)
	chat := fixtureChat()

	tenant := newMockClient("sock-t1")
	manager := newMockClient("sock-m1")
	register(hub, storageMock, tenant, "tenant-1", models.RoleTenant, []models.Chat{*chat})
	register(hub, storageMock, manager, "manager-1", models.RoleManager, []models.Chat{*chat})
	tenant.drain()
	manager.drain()

	hub.PubSubCh <- models.DeletionEvent{
		Type:      models.EvtChatDeleted,
		ChatID:    chat.ID,
		TenantID:  chat.TenantID,
		ManagerID: chat.ManagerID,
	}
	time.Sleep(50 * time.Millisecond)

	for name, c := range map[string]*mockClient{"tenant": tenant, "manager": manager} {
		got := eventsOfType(c.drain(), func(ev models.ServerEvent) bool {
			deleted, ok := ev.(models.ChatDeletedEvent)
			return ok && deleted.ChatID == chat.ID
		})
		assert.Equal(t, 1, got, "%s should be notified once", name)
	}
}

func TestManager_DisconnectClosesClient(t *testing.T) {
	storageMock := new(MockStorage)
	hub := startHub(storageMock)
	chat := fixtureChat()

	tenant := newMockClient("sock-t1")
	register(hub, storageMock, tenant, "tenant-1", models.RoleTenant, []models.Chat{*chat})

	storageMock.On("SetUserStatus", "tenant-1", false).Return(models.UserStatus{UserID: "tenant-1", LastSeen: time.Now()}, nil)
	hub.UnregisterCh <- tenant

	select {
	case <-tenant.Done:
	case <-time.After(time.Second):
		t.Fatal("hub must close the client on disconnect to stop its write pump")
	}
}
