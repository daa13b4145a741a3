package models

import "time"

// Client -> server event types.
const (
	EvtAuthenticate = "authenticate"
	EvtJoinRoom     = "join_room"
	EvtLeaveRoom    = "leave_room"
	EvtSendMessage  = "send_message"
	EvtMarkAsRead   = "mark_as_read"
	EvtMarkChatRead = "mark_chat_read"
	EvtTyping       = "typing"
)

// Server -> client event types.
const (
	EvtAuthenticated       = "authenticated"
	EvtRoomJoined          = "room_joined"
	EvtRoomLeft            = "room_left"
	EvtMessageAck          = "message_ack"
	EvtNewMessage          = "new_message"
	EvtChatUpdated         = "chat_updated"
	EvtMessageNotification = "message_notification"
	EvtMessageRead         = "message_read"
	EvtUserTyping          = "user_typing"
	EvtUserStatusChanged   = "user_status_changed"
	EvtPropertyDeleted     = "property_deleted"
	EvtChatDeleted         = "chat_deleted"
	EvtError               = "error"
)

// ClientEvent is the single inbound envelope. Fields are a union over
// all client -> server events; the handler switches on Type.
type ClientEvent struct {
	Type string `json:"type"`

	// authenticate
	Token string `json:"token,omitempty"`

	// join_room / leave_room
	Room string `json:"room,omitempty"`

	// send_message / mark_as_read / mark_chat_read / typing
	ChatID    string `json:"chatId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	SenderID  string `json:"senderId,omitempty"`
	Content   string `json:"content,omitempty"`
	// ClientID is an optional sender-generated correlation id, echoed
	// back in message_ack and new_message so the sender can match its
	// optimistic entry without a similarity scan.
	ClientID    string   `json:"clientId,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	IsTyping    bool     `json:"isTyping,omitempty"`
	Timestamp   int64    `json:"timestamp,omitempty"`
}

// ServerEvent is implemented by every outbound payload. Each struct
// carries its own "type" field, set at construction.
type ServerEvent interface {
	serverEvent()
}

type AuthenticatedEvent struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// RoomAckEvent answers join_room/leave_room (Type is room_joined or room_left).
type RoomAckEvent struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Room    string `json:"room"`
}

type MessageAckEvent struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type NewMessageEvent struct {
	Type          string   `json:"type"`
	Message       *Message `json:"message"`
	ChatID        string   `json:"chatId"`
	SenderID      string   `json:"senderId"`
	SenderType    string   `json:"senderType"`
	ClientID      string   `json:"clientId,omitempty"`
	PropertyID    string   `json:"propertyId"`
	PropertyTitle string   `json:"propertyTitle"`
	PropertyPrice int      `json:"propertyPrice"`
	Content       string   `json:"content"`
}

type ChatUpdatedEvent struct {
	Type        string `json:"type"`
	ChatID      string `json:"chatId"`
	UnreadCount int64  `json:"unreadCount"`
}

// MessageNotificationEvent goes to the recipient's user room with a
// truncated content preview, for inbox badges and toasts.
type MessageNotificationEvent struct {
	Type          string `json:"type"`
	ChatID        string `json:"chatId"`
	MessageID     string `json:"messageId"`
	SenderID      string `json:"senderId"`
	SenderType    string `json:"senderType"`
	PropertyID    string `json:"propertyId"`
	PropertyTitle string `json:"propertyTitle"`
	Content       string `json:"content"`
}

type MessageReadEvent struct {
	Type      string    `json:"type"`
	MessageID string    `json:"messageId"`
	ChatID    string    `json:"chatId"`
	ReadBy    string    `json:"readBy"`
	ReadAt    time.Time `json:"readAt"`
}

type UserTypingEvent struct {
	Type     string `json:"type"`
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	UserType string `json:"userType"`
	IsTyping bool   `json:"isTyping"`
}

type UserStatusChangedEvent struct {
	Type     string    `json:"type"`
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
	// ChatID scopes the presence change to one shared conversation;
	// a user with several chats notifies each counterparty separately.
	ChatID string `json:"chatId"`
}

type PropertyDeletedEvent struct {
	Type       string `json:"type"`
	PropertyID string `json:"propertyId"`
	ChatID     string `json:"chatId"`
}

type ChatDeletedEvent struct {
	Type   string `json:"type"`
	ChatID string `json:"chatId"`
}

type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (AuthenticatedEvent) serverEvent()       {}
func (RoomAckEvent) serverEvent()             {}
func (MessageAckEvent) serverEvent()          {}
func (NewMessageEvent) serverEvent()          {}
func (ChatUpdatedEvent) serverEvent()         {}
func (MessageNotificationEvent) serverEvent() {}
func (MessageReadEvent) serverEvent()         {}
func (UserTypingEvent) serverEvent()          {}
func (UserStatusChangedEvent) serverEvent()   {}
func (PropertyDeletedEvent) serverEvent()     {}
func (ChatDeletedEvent) serverEvent()         {}
func (ErrorEvent) serverEvent()               {}

// DeletionEvent is the payload the REST layer publishes on the Redis
// events channel when a chat or a property goes away; the hub fans it
// out to both participants' user rooms.
type DeletionEvent struct {
	Type       string `json:"type"` // property_deleted | chat_deleted
	ChatID     string `json:"chatId"`
	PropertyID string `json:"propertyId,omitempty"`
	TenantID   string `json:"tenantId"`
	ManagerID  string `json:"managerId"`
}
