package handler

import (
	"net/http"

	"rentline/backend/internal/chathub"
	"rentline/backend/internal/storage"
	"rentline/backend/internal/token"

	"github.com/gin-gonic/gin"
)

// Handler holds the chat hub and the storage collaborator.
type Handler struct {
	Hub     *chathub.ManagerService
	Storage storage.Storage
	Auth    *token.Authenticator
}

func NewHandler(hub *chathub.ManagerService, s storage.Storage) *Handler {
	return &Handler{Hub: hub, Storage: s, Auth: token.NewAuthenticator()}
}

// identity decodes the caller's bearer token. On failure the request
// is aborted with 401 and ok is false.
func (h *Handler) identity(c *gin.Context) (token.Identity, bool) {
	raw := token.FromRequestParts("", c.Query("token"), c.GetHeader("Authorization"))
	id, err := h.Auth.Decode(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
		return token.Identity{}, false
	}
	return id, true
}
