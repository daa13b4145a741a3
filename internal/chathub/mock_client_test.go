package chathub_test

import (
	"sync"

	"rentline/backend/internal/models"
)

// mockClient is a test double for the chathub.Client interface. It
// buffers everything the hub sends so tests can inspect deliveries,
// and signals Done when the hub closes it.
type mockClient struct {
	socketID string
	Recv     chan models.ServerEvent
	Done     chan struct{}
	once     sync.Once
}

func newMockClient(socketID string) *mockClient {
	return &mockClient{
		socketID: socketID,
		Recv:     make(chan models.ServerEvent, 32),
		Done:     make(chan struct{}),
	}
}

func (m *mockClient) GetSocketID() string                       { return m.socketID }
func (m *mockClient) GetSendChannel() chan<- models.ServerEvent { return m.Recv }
func (m *mockClient) Run()                                      {}
func (m *mockClient) Close()                                    { m.once.Do(func() { close(m.Done) }) }

// drain returns every event buffered so far.
func (m *mockClient) drain() []models.ServerEvent {
	var out []models.ServerEvent
	for {
		select {
		case ev := <-m.Recv:
			out = append(out, ev)
		default:
			return out
		}
	}
}
