package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"chorus/messaging-service/models"
	"chorus/messaging-service/services"
)

func (g *Gateway) handleUserList(ctx context.Context, c *Client, data json.RawMessage) error {
	var req models.PageRequest
	if err := decode(data, &req); err != nil {
		return err
	}

	page, err := g.svc.Inbox.ListUsers(ctx, c.UserID, req.PageIndex, req.PageSize)
	if err != nil {
		g.logger.Error("Failed to list users", "user_id", c.UserID, "error", err)
		return c.Emit(models.EventResponseUserList, models.UserListResponse{
			Status:  http.StatusInternalServerError,
			Message: "Error fetching user list",
			Data:    []models.UserListItem{},
		})
	}

	return c.Emit(models.EventResponseUserList, models.UserListResponse{
		Status:     http.StatusOK,
		Message:    "Success",
		Data:       page.Items,
		Pagination: &page.Pagination,
	})
}

func (g *Gateway) handleChatList(ctx context.Context, c *Client, data json.RawMessage) error {
	var req models.PageRequest
	if err := decode(data, &req); err != nil {
		return err
	}

	page, err := g.svc.Inbox.ListConversations(ctx, c.UserID, req.PageIndex, req.PageSize)
	if err != nil {
		g.logger.Error("Failed to list conversations", "user_id", c.UserID, "error", err)
		return errors.New("failed to fetch chat list")
	}

	return c.Emit(models.EventResponseChatList, models.ChatListResponse{
		Data:       page.Items,
		Pagination: page.Pagination,
	})
}

func (g *Gateway) handleChatHistory(ctx context.Context, c *Client, data json.RawMessage) error {
	var req models.HistoryRequest
	if err := decode(data, &req); err != nil {
		return err
	}

	page, err := g.svc.Inbox.History(ctx, c.UserID, req.ChatID, req.ReceiverID, req.PageIndex, req.PageSize)
	if err != nil {
		if services.UserFacing(err) {
			return err
		}
		g.logger.Error("Failed to load history", "user_id", c.UserID, "error", err)
		return errors.New("failed to fetch chat history")
	}

	return c.Emit(models.EventResponseMessageList, models.MessageListResponse{
		ChatID:      page.ChatID,
		MessageList: page.Messages,
		Pagination:  page.Pagination,
	})
}

func (g *Gateway) handleSendMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	var req models.SendMessageRequest
	if err := decode(data, &req); err != nil {
		return c.Emit(models.EventSendMessageError, models.ErrorPayload{Event: models.EventSendMessage, Error: err.Error()})
	}

	var (
		result *services.SendResult
		err    error
	)
	switch {
	case req.ChatID != nil:
		result, err = g.svc.Pipeline.SendToChat(ctx, c.UserID, *req.ChatID, req.Content, req.KindString())
	case req.ReceiverID != nil:
		result, err = g.svc.Pipeline.Send(ctx, c.UserID, *req.ReceiverID, req.Content, req.KindString())
	default:
		err = services.ErrInvalidRecipient
	}
	if err != nil {
		reason := "failed to send message"
		if services.UserFacing(err) {
			reason = err.Error()
		} else {
			g.logger.Error("Send failed", "user_id", c.UserID, "error", err)
		}
		return c.Emit(models.EventSendMessageError, models.ErrorPayload{Event: models.EventSendMessage, Error: reason})
	}

	g.svc.Notifier.MessageSent(result)
	return nil
}

func (g *Gateway) handleMarkRead(ctx context.Context, c *Client, data json.RawMessage) error {
	var req models.MarkReadRequest
	if err := decode(data, &req); err != nil {
		return err
	}

	result, err := g.svc.Delivery.MarkRead(ctx, c.UserID, req.SenderID)
	if err != nil {
		g.logger.Error("Failed to mark messages read", "user_id", c.UserID, "sender_id", req.SenderID, "error", err)
		return errors.New("failed to mark messages read")
	}
	g.svc.Notifier.ReadAcknowledged(result)
	return nil
}

func (g *Gateway) handleTyping(typing bool) HandlerFunc {
	return func(ctx context.Context, c *Client, data json.RawMessage) error {
		var req models.TypingRequest
		if err := decode(data, &req); err != nil {
			return err
		}
		g.svc.Notifier.Typing(c.UserID, req.ReceiverID, typing)
		return nil
	}
}
