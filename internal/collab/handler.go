package collab

import (
	"context"
	"net/http"

	"github.com/collabdocs/collabdocs/pkg/logger"
	"github.com/collabdocs/collabdocs/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler authenticates the handshake and upgrades GET /ws.
type Handler struct {
	hub      *Hub
	ver      middleware.Verifier
	rev      middleware.Revocations
	upgrader websocket.Upgrader
}

// NewHandler returns a Handler. allowedOrigin "" or "*" accepts any origin.
func NewHandler(hub *Hub, ver middleware.Verifier, rev middleware.Revocations, allowedOrigin string) *Handler {
	return &Handler{
		hub: hub,
		ver: ver,
		rev: rev,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigin == "" || allowedOrigin == "*" || origin == allowedOrigin
			},
		},
	}
}

// ServeWS runs the session on the request goroutine until the peer goes away.
func (h *Handler) ServeWS(c *gin.Context) {
	raw := c.Query("token")
	if raw == "" {
		raw = middleware.BearerToken(c.Request)
	}
	_, who, err := middleware.Authenticate(c.Request.Context(), h.ver, h.rev, raw)
	if err != nil {
		logger.Debugw("websocket handshake rejected", "remote", c.ClientIP(), "err", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication error"})
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.Warnw("websocket upgrade failed", "err", err)
		return
	}
	client := h.hub.Register(conn, who)
	go client.writePump()
	client.readPump(context.Background())
}
