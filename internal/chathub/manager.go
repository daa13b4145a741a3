package chathub

import (
	"log"

	"rentline/backend/internal/models"
	"rentline/backend/internal/storage"
	"rentline/backend/internal/token"
)

// Registration enters a new socket into the hub. Identity is the
// result of decoding the token supplied at the HTTP upgrade.
type Registration struct {
	Client   Client
	Identity token.Identity
}

// ManagerService is the chat hub. All connection, room, and presence
// state is owned by the Run goroutine; handlers across different
// connections are serialized through the command channels, so the
// registry needs no locks.
type ManagerService struct {
	RegisterCh   chan Registration
	UnregisterCh chan Client
	IncomingCh   chan Inbound
	PubSubCh     chan models.DeletionEvent

	Storage storage.Storage
	Auth    *token.Authenticator

	registry *registry
}

func NewManagerService(s storage.Storage) *ManagerService {
	return &ManagerService{
		RegisterCh:   make(chan Registration),
		UnregisterCh: make(chan Client),
		IncomingCh:   make(chan Inbound),
		PubSubCh:     make(chan models.DeletionEvent),
		Storage:      s,
		Auth:         token.NewAuthenticator(),
		registry:     newRegistry(),
	}
}

// Run services the hub's command channels. It never returns.
func (m *ManagerService) Run() {
	m.startPubSubListener()

	for {
		select {
		case reg := <-m.RegisterCh:
			m.registry.add(reg.Client)
			if reg.Identity.UserID != "" {
				m.authenticateClient(reg.Client, reg.Identity)
			}

		case c := <-m.UnregisterCh:
			m.handleDisconnect(c)

		case in := <-m.IncomingCh:
			m.dispatch(in.Client, in.Event)

		case ev := <-m.PubSubCh:
			m.handleDeletionEvent(ev)
		}
	}
}

func (m *ManagerService) dispatch(c Client, ev models.ClientEvent) {
	switch ev.Type {
	case models.EvtAuthenticate:
		m.handleAuthenticate(c, ev)
	case models.EvtJoinRoom:
		m.handleJoinRoom(c, ev)
	case models.EvtLeaveRoom:
		m.handleLeaveRoom(c, ev)
	case models.EvtSendMessage:
		m.handleSend(c, ev)
	case models.EvtMarkAsRead:
		m.handleMarkRead(c, ev)
	case models.EvtMarkChatRead:
		m.handleMarkChatRead(c, ev)
	case models.EvtTyping:
		m.handleTyping(c, ev)
	default:
		log.Printf("Unknown event type %q from socket %s", ev.Type, c.GetSocketID())
	}
}

// handleAuthenticate re-runs the token contract on a live connection,
// e.g. after a token refresh.
func (m *ManagerService) handleAuthenticate(c Client, ev models.ClientEvent) {
	identity, err := m.Auth.Decode(ev.Token)
	if err != nil {
		m.deliverTo(c, models.ErrorEvent{Type: models.EvtError, Error: err.Error()})
		return
	}
	m.authenticateClient(c, identity)
}

// authenticateClient binds the identity to the socket, marks the user
// online, auto-joins the user's rooms, and notifies each chat
// counterparty of the presence change.
func (m *ManagerService) authenticateClient(c Client, identity token.Identity) {
	e := m.registry.identify(c, identity.UserID, identity.Role)

	status, err := m.Storage.SetUserStatus(identity.UserID, true)
	if err != nil {
		log.Printf("ERROR: Failed to set user %s online: %v", identity.UserID, err)
	}

	m.registry.joinRoom(e, UserRoom(identity.UserID))

	chats, err := m.Storage.GetChatsForUser(identity.UserID, identity.Role)
	if err != nil {
		log.Printf("ERROR: Failed to load chats for user %s: %v", identity.UserID, err)
	}
	for i := range chats {
		m.registry.joinRoom(e, ChatRoom(chats[i].ID))
	}

	m.deliverTo(c, models.AuthenticatedEvent{
		Type:   models.EvtAuthenticated,
		UserID: identity.UserID,
		Role:   identity.Role,
	})

	// One presence event per shared chat, each scoped to that chat's
	// counterparty, not a single global broadcast.
	for i := range chats {
		m.sendToUserRoom(chats[i].OtherParticipant(identity.UserID), models.UserStatusChangedEvent{
			Type:     models.EvtUserStatusChanged,
			UserID:   identity.UserID,
			IsOnline: true,
			LastSeen: status.LastSeen,
			ChatID:   chats[i].ID,
		})
	}
}

func (m *ManagerService) handleDisconnect(c Client) {
	e := m.registry.remove(c)
	if e == nil {
		return
	}
	// Stops the write pump; the registry no longer references the
	// socket, so nothing can deliver to the closed channel.
	c.Close()
	if e.userID == "" {
		return
	}

	// Another tab still holds a socket for this user: the user is not
	// offline, so neither the presence record nor the counterparties
	// get an update.
	if m.registry.userSocketCount(e.userID) > 0 {
		return
	}

	status, err := m.Storage.SetUserStatus(e.userID, false)
	if err != nil {
		log.Printf("ERROR: Failed to set user %s offline: %v", e.userID, err)
	}

	chats, err := m.Storage.GetChatsForUser(e.userID, e.role)
	if err != nil {
		log.Printf("ERROR: Failed to load chats for user %s: %v", e.userID, err)
		return
	}
	for i := range chats {
		m.sendToUserRoom(chats[i].OtherParticipant(e.userID), models.UserStatusChangedEvent{
			Type:     models.EvtUserStatusChanged,
			UserID:   e.userID,
			IsOnline: false,
			LastSeen: status.LastSeen,
			ChatID:   chats[i].ID,
		})
	}
}

// handleDeletionEvent fans a deletion notice from the Redis events
// channel out to both participants' user rooms.
func (m *ManagerService) handleDeletionEvent(ev models.DeletionEvent) {
	var out models.ServerEvent
	switch ev.Type {
	case models.EvtPropertyDeleted:
		out = models.PropertyDeletedEvent{Type: models.EvtPropertyDeleted, PropertyID: ev.PropertyID, ChatID: ev.ChatID}
	case models.EvtChatDeleted:
		out = models.ChatDeletedEvent{Type: models.EvtChatDeleted, ChatID: ev.ChatID}
	default:
		log.Printf("Unknown deletion event type %q", ev.Type)
		return
	}

	for _, userID := range []string{ev.TenantID, ev.ManagerID} {
		m.sendToUserRoom(userID, out)
	}
}

// deliverTo hands an event to one connection without blocking the hub
// loop. A full send buffer means a stalled consumer; the event is
// dropped rather than stalling everyone else.
func (m *ManagerService) deliverTo(c Client, ev models.ServerEvent) {
	select {
	case c.GetSendChannel() <- ev:
	default:
		log.Printf("Dropping event for slow socket %s", c.GetSocketID())
	}
}

// sendToUserRoom delivers to every socket joined to user:<userID>.
// No-op when the user has no live sockets. A member whose bound user
// no longer matches the room gets nothing.
func (m *ManagerService) sendToUserRoom(userID string, ev models.ServerEvent) {
	for _, e := range m.registry.roomMembers(UserRoom(userID)) {
		if e.userID != userID {
			continue
		}
		m.deliverTo(e.client, ev)
	}
}

// broadcastToChat delivers to every socket in chat:<id> whose user is
// one of the chat's participants.
func (m *ManagerService) broadcastToChat(chat *models.Chat, ev models.ServerEvent) {
	m.broadcastToChatExcept(chat, "", ev)
}

func (m *ManagerService) broadcastToChatExcept(chat *models.Chat, exceptSocketID string, ev models.ServerEvent) {
	for _, e := range m.registry.roomMembers(ChatRoom(chat.ID)) {
		if e.client.GetSocketID() == exceptSocketID {
			continue
		}
		if !chat.IsParticipant(e.userID) {
			continue
		}
		m.deliverTo(e.client, ev)
	}
}
