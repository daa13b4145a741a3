package handler

import (
	"net/http"

	"rentline/backend/internal/chathub"
	"rentline/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allows connections from any origin. Tighten in production!
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the HTTP connection to a WebSocket. The
// bearer token is decoded before the upgrade, so a bad token refuses
// the connection at the handshake and the socket never opens.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to upgrade connection"})
		return
	}

	client := &chathub.WebSocketClient{
		SocketID: uuid.New().String(),
		Hub:      h.Hub,
		Conn:     conn,
		Send:     make(chan models.ServerEvent, 256),
	}

	h.Hub.RegisterCh <- chathub.Registration{Client: client, Identity: identity}
	client.Run()
}
