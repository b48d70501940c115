package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chorus/messaging-service/middleware"
	"chorus/messaging-service/models"
	"chorus/messaging-service/services"
	"chorus/messaging-service/utils"
)

// PresenceReader answers presence queries.
type PresenceReader interface {
	OnlineUsers(ctx context.Context) ([]uuid.UUID, error)
	Status(ctx context.Context, userID uuid.UUID) (*models.PresenceStatus, error)
}

// ChatHandler serves read-only REST views of the inbox.
type ChatHandler struct {
	inbox    *services.Inbox
	presence PresenceReader
	logger   *utils.Logger
}

func NewChatHandler(inbox *services.Inbox, presence PresenceReader, logger *utils.Logger) *ChatHandler {
	return &ChatHandler{
		inbox:    inbox,
		presence: presence,
		logger:   logger,
	}
}

// pageParams reads page and page_size. Invalid values fall through to the
// service defaults.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	return page, pageSize
}

// ListConversations handles GET /api/v1/conversations
func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	page, pageSize := pageParams(c)

	result, err := h.inbox.ListConversations(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		h.logger.Error("Failed to list conversations", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to fetch conversations",
		})
		return
	}

	c.JSON(http.StatusOK, models.NewListResponse(result.Items, result.Pagination))
}

// GetMessages handles GET /api/v1/conversations/:id/messages
func (h *ChatHandler) GetMessages(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid conversation ID",
		})
		return
	}
	page, pageSize := pageParams(c)

	result, err := h.inbox.History(c.Request.Context(), userID, &chatID, nil, page, pageSize)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		case errors.Is(err, services.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this conversation"})
		default:
			h.logger.Error("Failed to fetch messages", "chat_id", chatID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		}
		return
	}

	c.JSON(http.StatusOK, models.NewListResponse(result.Messages, result.Pagination))
}

// ListUsers handles GET /api/v1/users
func (h *ChatHandler) ListUsers(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	page, pageSize := pageParams(c)

	result, err := h.inbox.ListUsers(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		h.logger.Error("Failed to list users", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to fetch users",
		})
		return
	}

	c.JSON(http.StatusOK, models.NewListResponse(result.Items, result.Pagination))
}

// OnlineUsers handles GET /api/v1/presence/online
func (h *ChatHandler) OnlineUsers(c *gin.Context) {
	ids, err := h.presence.OnlineUsers(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get online users", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get online users",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": ids,
		"count": len(ids),
	})
}

// GetPresence handles GET /api/v1/presence/:id
func (h *ChatHandler) GetPresence(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid user ID",
		})
		return
	}

	status, err := h.presence.Status(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		h.logger.Error("Failed to get presence", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get presence",
		})
		return
	}

	c.JSON(http.StatusOK, status)
}
