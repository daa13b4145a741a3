package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"rentline/backend/internal/models"

	"github.com/gorilla/websocket"
)

// State is the session's connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	}
	return "disconnected"
}

var (
	ErrConfiguration = errors.New("configuration error")
	ErrTimeout       = errors.New("timeout")
	ErrSendFailed    = errors.New("send failed")
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultAckTimeout     = 10 * time.Second
	defaultReconnectDelay = 3 * time.Second
)

// transport is the slice of *websocket.Conn the session needs; tests
// substitute a fake.
type transport interface {
	WriteJSON(v interface{}) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Config identifies the server and the user the session acts for.
type Config struct {
	ServerURL string // ws:// or wss:// endpoint
	UserID    string
	Token     string
}

// Handlers are the optional callbacks for server-pushed events. They
// run on the session's read goroutine; keep them short.
type Handlers struct {
	OnNewMessage      func(models.NewMessageEvent)
	OnMessageRead     func(models.MessageReadEvent)
	OnChatUpdated     func(models.ChatUpdatedEvent)
	OnNotification    func(models.MessageNotificationEvent)
	OnUserTyping      func(models.UserTypingEvent)
	OnStatusChanged   func(models.UserStatusChangedEvent)
	OnChatDeleted     func(models.ChatDeletedEvent)
	OnPropertyDeleted func(models.PropertyDeletedEvent)
	OnDisconnect      func(error)
}

// Session owns one socket connection to the chat server: it
// authenticates on connect, keeps the set of joined rooms (replayed
// after a reconnect), and correlates message acks with sends.
type Session struct {
	cfg      Config
	handlers Handlers

	dial           func(ctx context.Context, rawURL string) (transport, error)
	connectTimeout time.Duration
	ackTimeout     time.Duration
	reconnectDelay time.Duration

	mu     sync.Mutex
	state  State
	conn   transport
	closed bool                // client-initiated shutdown, no auto-reconnect
	rooms  map[string]struct{} // desired rooms; queued while disconnected
	acks   map[string]chan models.MessageAckEvent
	authCh chan error
}

func NewSession(cfg Config, handlers Handlers) *Session {
	return &Session{
		cfg:            cfg,
		handlers:       handlers,
		dial:           dialWebSocket,
		connectTimeout: defaultConnectTimeout,
		ackTimeout:     defaultAckTimeout,
		reconnectDelay: defaultReconnectDelay,
		rooms:          make(map[string]struct{}),
		acks:           make(map[string]chan models.MessageAckEvent),
	}
}

func dialWebSocket(ctx context.Context, rawURL string) (transport, error) {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the server and waits for the authenticated event. The
// whole attempt is bounded; callers get ErrTimeout instead of hanging.
func (s *Session) Connect(ctx context.Context) error {
	if s.cfg.ServerURL == "" || s.cfg.UserID == "" {
		return fmt.Errorf("%w: server url and user id are required", ErrConfiguration)
	}

	s.mu.Lock()
	if s.state == StateAuthenticated {
		s.mu.Unlock()
		return nil
	}
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("connect already in progress")
	}
	s.state = StateConnecting
	s.closed = false
	authCh := make(chan error, 1)
	s.authCh = authCh
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	conn, err := s.dial(ctx, s.endpoint())
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: no connection within %s", ErrTimeout, s.connectTimeout)
		}
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()

	go s.readLoop(conn)

	select {
	case err := <-authCh:
		return err
	case <-ctx.Done():
		conn.Close()
		return fmt.Errorf("%w: not authenticated within %s", ErrTimeout, s.connectTimeout)
	}
}

func (s *Session) endpoint() string {
	return s.cfg.ServerURL + "?token=" + url.QueryEscape(s.cfg.Token)
}

// Authenticate re-runs the token contract on the live connection,
// typically after a token refresh.
func (s *Session) Authenticate(tok string) error {
	s.mu.Lock()
	s.cfg.Token = tok
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: not connected", ErrSendFailed)
	}
	return conn.WriteJSON(models.ClientEvent{Type: models.EvtAuthenticate, Token: tok})
}

// Close shuts the session down. Client-initiated, so no auto-reconnect.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// JoinRoom records the room in the desired set and joins it if the
// socket is up; otherwise the join replays on the next connect.
func (s *Session) JoinRoom(room string) {
	s.mu.Lock()
	s.rooms[room] = struct{}{}
	conn := s.conn
	ready := s.state == StateAuthenticated
	s.mu.Unlock()

	if ready && conn != nil {
		if err := conn.WriteJSON(models.ClientEvent{Type: models.EvtJoinRoom, Room: room}); err != nil {
			log.Printf("Failed to join room %s: %v", room, err)
		}
	}
}

func (s *Session) LeaveRoom(room string) {
	s.mu.Lock()
	delete(s.rooms, room)
	conn := s.conn
	ready := s.state == StateAuthenticated
	s.mu.Unlock()

	if ready && conn != nil {
		if err := conn.WriteJSON(models.ClientEvent{Type: models.EvtLeaveRoom, Room: room}); err != nil {
			log.Printf("Failed to leave room %s: %v", room, err)
		}
	}
}

// SendMessage submits one message and resolves only on a positive
// message_ack. An unauthenticated session connects first, so callers
// can fire-and-await without managing the lifecycle themselves.
func (s *Session) SendMessage(ctx context.Context, chatID, content string) (string, error) {
	if s.State() != StateAuthenticated {
		if err := s.Connect(ctx); err != nil {
			return "", err
		}
	}

	clientID := TempID()
	ackCh := make(chan models.MessageAckEvent, 1)

	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: not connected", ErrSendFailed)
	}
	s.acks[clientID] = ackCh
	s.mu.Unlock()

	err := conn.WriteJSON(models.ClientEvent{
		Type:      models.EvtSendMessage,
		ChatID:    chatID,
		Content:   content,
		SenderID:  s.cfg.UserID,
		ClientID:  clientID,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		s.dropAck(clientID)
		return "", err
	}

	timer := time.NewTimer(s.ackTimeout)
	defer timer.Stop()

	select {
	case ack := <-ackCh:
		if !ack.Success {
			return "", fmt.Errorf("%w: %s", ErrSendFailed, ack.Error)
		}
		return ack.MessageID, nil
	case <-timer.C:
		// The server may still land the message; reconciliation's
		// similarity check absorbs the late broadcast.
		s.dropAck(clientID)
		return "", fmt.Errorf("%w: no ack within %s", ErrTimeout, s.ackTimeout)
	case <-ctx.Done():
		s.dropAck(clientID)
		return "", ctx.Err()
	}
}

// SendTyping emits an ephemeral typing signal. Fire-and-forget.
func (s *Session) SendTyping(chatID string, isTyping bool) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.WriteJSON(models.ClientEvent{Type: models.EvtTyping, ChatID: chatID, IsTyping: isTyping}); err != nil {
		log.Printf("Failed to send typing signal: %v", err)
	}
}

// MarkAsRead asks the server to flip one message to read.
func (s *Session) MarkAsRead(messageID string) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.WriteJSON(models.ClientEvent{Type: models.EvtMarkAsRead, MessageID: messageID}); err != nil {
		log.Printf("Failed to mark message %s as read: %v", messageID, err)
	}
}

func (s *Session) dropAck(clientID string) {
	s.mu.Lock()
	delete(s.acks, clientID)
	s.mu.Unlock()
}

func (s *Session) readLoop(conn transport) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleConnectionLost(err)
			return
		}
		s.dispatch(data)
	}
}

func (s *Session) dispatch(data []byte) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		log.Printf("Error decoding server event: %v", err)
		return
	}

	switch probe.Type {
	case models.EvtAuthenticated:
		s.handleAuthenticated()

	case models.EvtMessageAck:
		var ack models.MessageAckEvent
		if err := json.Unmarshal(data, &ack); err != nil {
			return
		}
		s.mu.Lock()
		ch := s.acks[ack.ClientID]
		delete(s.acks, ack.ClientID)
		s.mu.Unlock()
		if ch != nil {
			ch <- ack
		}

	case models.EvtNewMessage:
		forward(data, s.handlers.OnNewMessage)
	case models.EvtMessageRead:
		forward(data, s.handlers.OnMessageRead)
	case models.EvtChatUpdated:
		forward(data, s.handlers.OnChatUpdated)
	case models.EvtMessageNotification:
		forward(data, s.handlers.OnNotification)
	case models.EvtUserTyping:
		forward(data, s.handlers.OnUserTyping)
	case models.EvtUserStatusChanged:
		forward(data, s.handlers.OnStatusChanged)
	case models.EvtChatDeleted:
		forward(data, s.handlers.OnChatDeleted)
	case models.EvtPropertyDeleted:
		forward(data, s.handlers.OnPropertyDeleted)
	}
}

func forward[E any](data []byte, handler func(E)) {
	if handler == nil {
		return
	}
	var ev E
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("Error decoding server event: %v", err)
		return
	}
	handler(ev)
}

// handleAuthenticated completes a pending Connect and replays the
// desired room set onto the fresh connection.
func (s *Session) handleAuthenticated() {
	s.mu.Lock()
	s.state = StateAuthenticated
	authCh := s.authCh
	s.authCh = nil
	conn := s.conn
	rooms := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.mu.Unlock()

	for _, room := range rooms {
		if conn == nil {
			break
		}
		if err := conn.WriteJSON(models.ClientEvent{Type: models.EvtJoinRoom, Room: room}); err != nil {
			log.Printf("Failed to rejoin room %s: %v", room, err)
		}
	}

	if authCh != nil {
		authCh <- nil
	}
}

// handleConnectionLost tears the session down and, for server-initiated
// drops, schedules a single bounded reconnect. Pending acks fail
// immediately so senders don't sit out the full ack timeout.
func (s *Session) handleConnectionLost(cause error) {
	s.mu.Lock()
	wasClosed := s.closed
	s.conn = nil
	s.state = StateDisconnected
	authCh := s.authCh
	s.authCh = nil
	pending := s.acks
	s.acks = make(map[string]chan models.MessageAckEvent)
	s.mu.Unlock()

	for _, ch := range pending {
		ch <- models.MessageAckEvent{Success: false, Error: "connection lost"}
	}
	if authCh != nil {
		authCh <- fmt.Errorf("connection lost: %v", cause)
	}
	if s.handlers.OnDisconnect != nil {
		s.handlers.OnDisconnect(cause)
	}

	if wasClosed {
		return
	}
	time.AfterFunc(s.reconnectDelay, func() {
		// The user may have closed the session while the timer was
		// pending; a client-initiated close never reconnects.
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		if err := s.Connect(context.Background()); err != nil {
			log.Printf("Failed to connect to chat server: %v", err)
		}
	})
}
