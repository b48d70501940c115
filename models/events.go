package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Live event names
const (
	EventRequestUserList     = "request-user-list"
	EventResponseUserList    = "response-user-list"
	EventRequestChatList     = "request-chat-list"
	EventResponseChatList    = "response-chat-list"
	EventRequestChatHistory  = "request-chat-history"
	EventResponseMessageList = "response-message-list"
	EventSendMessage         = "send-message"
	EventReceiveMessage      = "receive-message"
	EventMessageSentSuccess  = "message-sent-success"
	EventSendMessageError    = "send-message-error"
	EventMarkMessageRead     = "mark-message-read"
	EventMessageStatus       = "message-status-updated"
	EventTypingStart         = "typing-start"
	EventTypingStop          = "typing-stop"
	EventUserTyping          = "user-typing"
	EventUserStatusChanged   = "user-status-changed"
	EventError               = "event-error"
)

// Envelope is the frame exchanged over a live connection.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into a frame.
func NewEnvelope(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Requests

type PageRequest struct {
	PageIndex int `json:"pageIndex"`
	PageSize  int `json:"pageSize"`
}

type HistoryRequest struct {
	ReceiverID *uuid.UUID `json:"receiverId,omitempty"`
	ChatID     *uuid.UUID `json:"chatId,omitempty"`
	PageIndex  int        `json:"pageIndex"`
	PageSize   int        `json:"pageSize"`
}

// SendMessageRequest accepts the kind either as a name or a numeric code.
type SendMessageRequest struct {
	ReceiverID *uuid.UUID      `json:"receiverId,omitempty"`
	ChatID     *uuid.UUID      `json:"chatId,omitempty"`
	Content    string          `json:"content"`
	Type       json.RawMessage `json:"type,omitempty"`
}

// KindString returns the raw kind with any JSON quoting removed.
func (r SendMessageRequest) KindString() string {
	if len(r.Type) == 0 || string(r.Type) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Type, &s); err == nil {
		return s
	}
	return string(r.Type)
}

type MarkReadRequest struct {
	SenderID uuid.UUID `json:"senderId"`
}

type TypingRequest struct {
	ReceiverID uuid.UUID `json:"receiverId"`
}

// Responses and pushes

type UserListResponse struct {
	Status     int            `json:"status"`
	Message    string         `json:"message"`
	Data       []UserListItem `json:"data"`
	Pagination *Pagination    `json:"pagination,omitempty"`
}

type ChatListResponse struct {
	Data       []ConversationItem `json:"data"`
	Pagination Pagination         `json:"pagination"`
}

type MessageListResponse struct {
	ChatID      *uuid.UUID `json:"chatId"`
	MessageList []Message  `json:"messageList"`
	Pagination  Pagination `json:"pagination"`
}

type MessagePayload struct {
	Message *Message `json:"message"`
}

type ErrorPayload struct {
	Event string `json:"event,omitempty"`
	Error string `json:"error"`
}

type StatusUpdatePayload struct {
	ChatID     uuid.UUID      `json:"chatId"`
	MessageIDs []uuid.UUID    `json:"messageIds,omitempty"`
	Status     DeliveryStatus `json:"status"`
	UserID     uuid.UUID      `json:"userId"`
	Count      int64          `json:"count"`
}

type TypingPayload struct {
	UserID   uuid.UUID `json:"userId"`
	IsTyping bool      `json:"isTyping"`
}

type PresencePayload struct {
	UserID     uuid.UUID  `json:"userId"`
	IsOnline   bool       `json:"isOnline"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
}
