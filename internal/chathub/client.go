package chathub

import "rentline/backend/internal/models"

// Client is the interface for one live socket connection. It abstracts
// the underlying transport so the hub and its tests can manage
// connections uniformly.
type Client interface {
	// GetSocketID returns the unique identifier for this connection.
	// One user may hold several sockets (multi-tab); each has its own id.
	GetSocketID() string

	// GetSendChannel returns the channel the hub writes outbound events
	// to. It is a send-only channel.
	GetSendChannel() chan<- models.ServerEvent

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the client's connection and send channel.
	Close()
}

// Inbound pairs a decoded client event with the connection it arrived on.
type Inbound struct {
	Client Client
	Event  models.ClientEvent
}
