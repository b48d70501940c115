package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"chorus/messaging-service/models"
	"chorus/messaging-service/utils"
)

// PairKey normalizes an unordered pair of users.
func PairKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return x + ":" + y
}

// ConversationResolver finds or creates the direct conversation of a pair.
// The unique pair key in the store arbitrates concurrent creators.
type ConversationResolver struct {
	conversations ConversationStore
	logger        *utils.Logger
	now           Clock
}

func NewConversationResolver(conversations ConversationStore, logger *utils.Logger) *ConversationResolver {
	return &ConversationResolver{
		conversations: conversations,
		logger:        logger.With("component", "resolver"),
		now:           systemClock,
	}
}

func (r *ConversationResolver) SetClock(clock Clock) {
	r.now = clock
}

// Find returns the direct conversation of a and b without creating one.
func (r *ConversationResolver) Find(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	return r.conversations.FindByPairKey(ctx, PairKey(a, b))
}

// Resolve returns the direct conversation of a and b, creating it on first
// use. Losing a creation race is not an error: the winner's row is returned.
func (r *ConversationResolver) Resolve(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	if a == b || a == uuid.Nil || b == uuid.Nil {
		return nil, ErrInvalidRecipient
	}

	key := PairKey(a, b)
	conv, err := r.conversations.FindByPairKey(ctx, key)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	now := r.now()
	conv = &models.Conversation{
		Kind:      models.ConversationKindDirect,
		PairKey:   &key,
		CreatedAt: now,
		UpdatedAt: now,
		Participants: []models.Participant{
			{UserID: a, JoinedAt: now},
			{UserID: b, JoinedAt: now},
		},
	}
	createErr := r.conversations.CreateConversation(ctx, conv)
	if createErr == nil {
		r.logger.Debug("Conversation created", "chat_id", conv.ID, "pair_key", key)
		return conv, nil
	}

	existing, err := r.conversations.FindByPairKey(ctx, key)
	if err == nil {
		r.logger.Debug("Conversation creation lost race", "chat_id", existing.ID, "pair_key", key)
		return existing, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrPersistence, createErr)
}
