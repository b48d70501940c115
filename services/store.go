package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chorus/messaging-service/models"
)

// UserStore is the slice of the identity tables this service touches.
type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListActiveUsers(ctx context.Context, exclude uuid.UUID) ([]models.User, error)
	SetPresence(ctx context.Context, id uuid.UUID, online bool, lastSeenAt *time.Time) error
	ResetPresence(ctx context.Context) error
}

// ConversationStore persists conversations and their participants.
// Returned conversations always have Participants loaded.
type ConversationStore interface {
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	FindByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	// ListForUser loads every conversation userID participates in with
	// participant users and the latest message (with receipts) preloaded.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
	// UnreadCounts maps conversation id to the number of receipts of userID
	// still missing read_at, or delivered_at when onDelivered is set.
	UnreadCounts(ctx context.Context, userID uuid.UUID, onDelivered bool) (map[uuid.UUID]int64, error)
}

// MessageStore persists messages and advances their receipts. Every
// receipt update is conditional on the target timestamp still being NULL.
type MessageStore interface {
	// CreateMessage inserts msg with its receipts and moves the
	// conversation's latest-message pointer in one transaction.
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	// History returns one page of a conversation, newest first.
	History(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]models.Message, int64, error)
	PendingDeliveries(ctx context.Context, recipientID uuid.UUID) ([]models.PendingReceipt, error)
	// MarkDelivered reports whether this call set delivered_at.
	MarkDelivered(ctx context.Context, messageID, recipientID uuid.UUID, at time.Time) (bool, error)
	// MarkRead sets read_at (and delivered_at when missing) on every unread
	// receipt of readerID for messages senderID posted in conversationID.
	MarkRead(ctx context.Context, conversationID, readerID, senderID uuid.UUID, at time.Time) (int64, error)
}

// Clock returns the current time. Services truncate to microseconds so
// values round-trip through the database unchanged.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
