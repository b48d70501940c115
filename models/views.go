package models

import (
	"time"

	"github.com/google/uuid"
)

type Pagination struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	TotalPages  int   `json:"total_pages"`
}

// NewPagination computes the page count as ceil(total / pageSize).
func NewPagination(total int64, page, pageSize int) Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return Pagination{
		Total:       total,
		CurrentPage: page,
		PageSize:    pageSize,
		TotalPages:  totalPages,
	}
}

type ListResponse[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewListResponse shapes a page for the REST views.
func NewListResponse[T any](data []T, p Pagination) ListResponse[T] {
	if data == nil {
		data = []T{}
	}
	return ListResponse[T]{
		Data:       data,
		Total:      p.Total,
		Page:       p.CurrentPage,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
	}
}

// Counterpart is the other side of a direct conversation as seen by the
// requesting user.
type Counterpart struct {
	ID         uuid.UUID  `json:"id"`
	FullName   string     `json:"full_name"`
	IsOnline   bool       `json:"is_online"`
	LastSeenAt *time.Time `json:"last_seen_at"`
}

// PresenceStatus is the presence of one user: live connection count from
// the presence store, last seen from the user row.
type PresenceStatus struct {
	UserID      uuid.UUID  `json:"user_id"`
	IsOnline    bool       `json:"is_online"`
	Connections int64      `json:"connections"`
	LastSeenAt  *time.Time `json:"last_seen_at"`
}

type MessagePreview struct {
	ID        uuid.UUID      `json:"id"`
	SenderID  uuid.UUID      `json:"sender_id"`
	Content   string         `json:"content"`
	Kind      MessageKind    `json:"type"`
	Status    DeliveryStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// ConversationItem is one row of the inbox.
type ConversationItem struct {
	ChatID        uuid.UUID        `json:"chat_id"`
	Kind          ConversationKind `json:"kind"`
	Title         string           `json:"title"`
	Counterpart   *Counterpart     `json:"counterpart"`
	LatestMessage *MessagePreview  `json:"latest_message"`
	UnreadCount   int64            `json:"unread_count"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type ConversationPage struct {
	Items      []ConversationItem `json:"data"`
	Pagination Pagination         `json:"pagination"`
}

// UserListItem is one row of the user directory.
type UserListItem struct {
	ID              uuid.UUID  `json:"id"`
	FullName        string     `json:"full_name"`
	Email           string     `json:"email"`
	IsOnline        bool       `json:"is_online"`
	LastSeenAt      *time.Time `json:"last_seen_at"`
	ChatID          *uuid.UUID `json:"chat_id"`
	LastMessage     *string    `json:"last_message"`
	LastMessageTime *time.Time `json:"last_message_time"`
}

type UserPage struct {
	Items      []UserListItem `json:"data"`
	Pagination Pagination     `json:"pagination"`
}

// HistoryPage holds messages in ascending chronological order.
type HistoryPage struct {
	ChatID     *uuid.UUID `json:"chat_id"`
	Messages   []Message  `json:"message_list"`
	Pagination Pagination `json:"pagination"`
}

// DeliveryUpdate records one receipt advancing for one recipient.
type DeliveryUpdate struct {
	ConversationID uuid.UUID      `json:"chat_id"`
	MessageID      uuid.UUID      `json:"message_id"`
	SenderID       uuid.UUID      `json:"sender_id"`
	RecipientID    uuid.UUID      `json:"recipient_id"`
	Status         DeliveryStatus `json:"status"`
	At             time.Time      `json:"at"`
}
