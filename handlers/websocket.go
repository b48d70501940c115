package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chorus/messaging-service/middleware"
	"chorus/messaging-service/utils"
)

// SessionServer takes over an upgraded connection.
type SessionServer interface {
	Serve(conn *websocket.Conn, userID uuid.UUID, displayName string) error
}

type WebSocketHandler struct {
	sessions SessionServer
	upgrader websocket.Upgrader
	logger   *utils.Logger
}

func NewWebSocketHandler(sessions SessionServer, logger *utils.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Connect handles GET /ws
func (h *WebSocketHandler) Connect(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	name := c.GetString(middleware.DisplayNameKey)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("Websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	if err := h.sessions.Serve(conn, userID, name); err != nil {
		h.logger.Warn("Rejected websocket session", "user_id", userID, "error", err)
	}
}
