package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"rentline/backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

type fakeConn struct {
	mu       sync.Mutex
	writes   []models.ClientEvent
	incoming chan []byte
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan []byte, 16)}
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	ev, ok := v.(models.ClientEvent)
	if !ok {
		return errors.New("unexpected payload type")
	}
	f.mu.Lock()
	f.writes = append(f.writes, ev)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-f.incoming
	if !ok {
		return 0, nil, errors.New("connection reset")
	}
	return websocket.TextMessage, data, nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.incoming) })
	return nil
}

func (f *fakeConn) push(t *testing.T, ev interface{}) {
	data, err := json.Marshal(ev)
	assert.NoError(t, err)
	f.incoming <- data
}

// awaitWrite polls until a write of the given type shows up.
func (f *fakeConn) awaitWrite(t *testing.T, eventType string) models.ClientEvent {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for _, ev := range f.writes {
			if ev.Type == eventType {
				f.mu.Unlock()
				return ev
			}
		}
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s write within deadline", eventType)
	return models.ClientEvent{}
}

func (f *fakeConn) writesOfType(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.writes {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	calls int
}

func (d *fakeDialer) dial(_ context.Context, _ string) (transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.calls >= len(d.conns) {
		return nil, errors.New("no more connections")
	}
	conn := d.conns[d.calls]
	d.calls++
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func newTestSession(dialer *fakeDialer) *Session {
	s := NewSession(Config{
		ServerURL: "ws://localhost:8080/ws",
		UserID:    "tenant-1",
		Token:     "token-1",
	}, Handlers{})
	s.dial = dialer.dial
	s.connectTimeout = time.Second
	s.ackTimeout = time.Second
	s.reconnectDelay = 20 * time.Millisecond
	return s
}

func TestConnectRequiresConfiguration(t *testing.T) {
	dialer := &fakeDialer{}
	s := NewSession(Config{}, Handlers{})
	s.dial = dialer.dial

	err := s.Connect(context.Background())

	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, 0, dialer.dialCount(), "a misconfigured session must not dial at all")
	assert.Equal(t, StateDisconnected, s.State())
}

func TestConnectAuthenticates(t *testing.T) {
	conn := newFakeConn()
	conn.push(t, models.AuthenticatedEvent{Type: models.EvtAuthenticated, UserID: "tenant-1"})
	s := newTestSession(&fakeDialer{conns: []*fakeConn{conn}})

	err := s.Connect(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, StateAuthenticated, s.State())
}

func TestConnectTimesOutWithoutAuthentication(t *testing.T) {
	conn := newFakeConn()
	s := newTestSession(&fakeDialer{conns: []*fakeConn{conn}})
	s.connectTimeout = 50 * time.Millisecond

	err := s.Connect(context.Background())

	assert.ErrorIs(t, err, ErrTimeout)
}

func TestJoinRoomQueuedUntilConnect(t *testing.T) {
	conn := newFakeConn()
	conn.push(t, models.AuthenticatedEvent{Type: models.EvtAuthenticated, UserID: "tenant-1"})
	s := newTestSession(&fakeDialer{conns: []*fakeConn{conn}})

	s.JoinRoom("chat:chat-1")
	assert.Equal(t, 0, conn.writesOfType(models.EvtJoinRoom))

	assert.NoError(t, s.Connect(context.Background()))

	join := conn.awaitWrite(t, models.EvtJoinRoom)
	assert.Equal(t, "chat:chat-1", join.Room)
}

func TestSendMessageResolvesOnAck(t *testing.T) {
	conn := newFakeConn()
	conn.push(t, models.AuthenticatedEvent{Type: models.EvtAuthenticated, UserID: "tenant-1"})
	s := newTestSession(&fakeDialer{conns: []*fakeConn{conn}})
	assert.NoError(t, s.Connect(context.Background()))

	go func() {
		sent := conn.awaitWrite(t, models.EvtSendMessage)
		conn.push(t, models.MessageAckEvent{
			Type:      models.EvtMessageAck,
			Success:   true,
			MessageID: "msg-42",
			ClientID:  sent.ClientID,
		})
	}()

	id, err := s.SendMessage(context.Background(), "chat-1", "hello")

	assert.NoError(t, err)
	assert.Equal(t, "msg-42", id)

	sent := conn.awaitWrite(t, models.EvtSendMessage)
	assert.Equal(t, "tenant-1", sent.SenderID)
	assert.Equal(t, "chat-1", sent.ChatID)
	assert.Contains(t, sent.ClientID, "temp-")
}

func TestSendMessageFailedAck(t *testing.T) {
	conn := newFakeConn()
	conn.push(t, models.AuthenticatedEvent{Type: models.EvtAuthenticated, UserID: "tenant-1"})
	s := newTestSession(&fakeDialer{conns: []*fakeConn{conn}})
	assert.NoError(t, s.Connect(context.Background()))

	go func() {
		sent := conn.awaitWrite(t, models.EvtSendMessage)
		conn.push(t, models.MessageAckEvent{
			Type:     models.EvtMessageAck,
			Success:  false,
			Error:    "forbidden",
			ClientID: sent.ClientID,
		})
	}()

	_, err := s.SendMessage(context.Background(), "chat-1", "hello")

	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Contains(t, err.Error(), "forbidden")
}

func TestSendMessageAckTimeout(t *testing.T) {
	conn := newFakeConn()
	conn.push(t, models.AuthenticatedEvent{Type: models.EvtAuthenticated, UserID: "tenant-1"})
	s := newTestSession(&fakeDialer{conns: []*fakeConn{conn}})
	s.ackTimeout = 50 * time.Millisecond
	assert.NoError(t, s.Connect(context.Background()))

	_, err := s.SendMessage(context.Background(), "chat-1", "hello")

	assert.ErrorIs(t, err, ErrTimeout)
}

func TestReconnectReplaysRooms(t *testing.T) {
	first := newFakeConn()
	first.push(t, models.AuthenticatedEvent{Type: models.EvtAuthenticated, UserID: "tenant-1"})
	second := newFakeConn()
	second.push(t, models.AuthenticatedEvent{Type: models.EvtAuthenticated, UserID: "tenant-1"})
	dialer := &fakeDialer{conns: []*fakeConn{first, second}}
	s := newTestSession(dialer)

	assert.NoError(t, s.Connect(context.Background()))
	s.JoinRoom("chat:chat-1")
	first.awaitWrite(t, models.EvtJoinRoom)

	// Server drops the connection.
	first.Close()
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, 2, dialer.dialCount())
	assert.Equal(t, StateAuthenticated, s.State())
	join := second.awaitWrite(t, models.EvtJoinRoom)
	assert.Equal(t, "chat:chat-1", join.Room)
}

func TestCloseDoesNotReconnect(t *testing.T) {
	conn := newFakeConn()
	conn.push(t, models.AuthenticatedEvent{Type: models.EvtAuthenticated, UserID: "tenant-1"})
	dialer := &fakeDialer{conns: []*fakeConn{conn, newFakeConn()}}
	s := newTestSession(dialer)

	assert.NoError(t, s.Connect(context.Background()))
	assert.NoError(t, s.Close())
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, StateDisconnected, s.State())
}

func TestHandlersReceiveBroadcasts(t *testing.T) {
	conn := newFakeConn()
	conn.push(t, models.AuthenticatedEvent{Type: models.EvtAuthenticated, UserID: "tenant-1"})
	received := make(chan models.NewMessageEvent, 1)
	s := NewSession(Config{
		ServerURL: "ws://localhost:8080/ws",
		UserID:    "tenant-1",
		Token:     "token-1",
	}, Handlers{
		OnNewMessage: func(ev models.NewMessageEvent) { received <- ev },
	})
	s.dial = (&fakeDialer{conns: []*fakeConn{conn}}).dial
	s.connectTimeout = time.Second

	assert.NoError(t, s.Connect(context.Background()))
	conn.push(t, models.NewMessageEvent{
		Type:    models.EvtNewMessage,
		Message: &models.Message{ID: "msg-1", ChatID: "chat-1", SenderID: "manager-1", Content: "hi"},
	})

	select {
	case ev := <-received:
		assert.Equal(t, "msg-1", ev.Message.ID)
	case <-time.After(time.Second):
		t.Fatal("new message handler was not invoked")
	}
}

func TestCloseDuringReconnectDelayStaysClosed(t *testing.T) {
	first := newFakeConn()
	first.push(t, models.AuthenticatedEvent{Type: models.EvtAuthenticated, UserID: "tenant-1"})
	dialer := &fakeDialer{conns: []*fakeConn{first, newFakeConn()}}
	s := newTestSession(dialer)
	s.reconnectDelay = 100 * time.Millisecond

	assert.NoError(t, s.Connect(context.Background()))

	// Server drops the connection, then the user closes the session
	// while the reconnect timer is still pending.
	first.Close()
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, s.Close())
	time.Sleep(250 * time.Millisecond)

	assert.Equal(t, 1, dialer.dialCount(), "a session closed by the client must not redial")
	assert.Equal(t, StateDisconnected, s.State())
}
