package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"chorus/messaging-service/metrics"
	"chorus/messaging-service/models"
	"chorus/messaging-service/utils"
)

// PresenceReader is the presence query the pipeline needs.
type PresenceReader interface {
	IsOnline(ctx context.Context, userID uuid.UUID) (bool, error)
}

// SendResult carries everything fan-out needs after a successful send.
type SendResult struct {
	Message    *models.Message
	Recipients []uuid.UUID
	// Reconciled holds older receipts of online recipients that the
	// post-send sweep advanced.
	Reconciled []models.DeliveryUpdate
}

// MessagePipeline persists messages and computes their initial receipts.
type MessagePipeline struct {
	users    UserStore
	messages MessageStore
	convs    ConversationStore
	resolver *ConversationResolver
	presence PresenceReader
	delivery *DeliveryMachine
	logger   *utils.Logger
	now      Clock
}

func NewMessagePipeline(
	users UserStore,
	messages MessageStore,
	convs ConversationStore,
	resolver *ConversationResolver,
	presence PresenceReader,
	delivery *DeliveryMachine,
	logger *utils.Logger,
) *MessagePipeline {
	return &MessagePipeline{
		users:    users,
		messages: messages,
		convs:    convs,
		resolver: resolver,
		presence: presence,
		delivery: delivery,
		logger:   logger.With("component", "pipeline"),
		now:      systemClock,
	}
}

func (p *MessagePipeline) SetClock(clock Clock) {
	p.now = clock
}

// Send delivers a message into the direct conversation of sender and
// receiver, creating the conversation on first contact.
func (p *MessagePipeline) Send(ctx context.Context, senderID, receiverID uuid.UUID, content, kind string) (*SendResult, error) {
	content, msgKind, err := validate(content, kind)
	if err != nil {
		return nil, err
	}
	if receiverID == senderID || receiverID == uuid.Nil {
		return nil, ErrInvalidRecipient
	}

	conv, err := p.resolver.Resolve(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	return p.deliver(ctx, conv, senderID, content, msgKind)
}

// SendToChat delivers a message into an existing conversation the sender
// belongs to.
func (p *MessagePipeline) SendToChat(ctx context.Context, senderID, chatID uuid.UUID, content, kind string) (*SendResult, error) {
	content, msgKind, err := validate(content, kind)
	if err != nil {
		return nil, err
	}

	conv, err := p.convs.GetConversation(ctx, chatID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !conv.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}
	return p.deliver(ctx, conv, senderID, content, msgKind)
}

func validate(content, kind string) (string, models.MessageKind, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", "", ErrEmptyContent
	}
	msgKind, ok := models.ParseMessageKind(kind)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return content, msgKind, nil
}

func (p *MessagePipeline) deliver(ctx context.Context, conv *models.Conversation, senderID uuid.UUID, content string, kind models.MessageKind) (*SendResult, error) {
	recipients := conv.Others(senderID)
	now := p.now()

	online := make(map[uuid.UUID]bool, len(recipients))
	receipts := make([]models.Receipt, 0, len(recipients))
	for _, id := range recipients {
		isOnline, err := p.presence.IsOnline(ctx, id)
		if err != nil {
			// Presence is advisory; the next sweep reconciles.
			p.logger.Warn("Presence lookup failed", "user_id", id, "error", err)
		}
		receipt := models.Receipt{RecipientID: id}
		if isOnline {
			online[id] = true
			delivered := now
			receipt.DeliveredAt = &delivered
		}
		receipts = append(receipts, receipt)
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		Kind:           kind,
		CreatedAt:      now,
		Receipts:       receipts,
	}
	if err := p.messages.CreateMessage(ctx, msg); err != nil {
		if errors.Is(err, ErrInvariant) {
			p.logger.Error("Conversation missing after resolution", "chat_id", conv.ID, "error", err)
			return nil, err
		}
		p.logger.Error("Failed to persist message", "chat_id", conv.ID, "sender_id", senderID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	metrics.MessagesSent.WithLabelValues(string(kind)).Inc()

	if sender, err := p.users.GetUser(ctx, senderID); err == nil {
		msg.Sender = sender
	} else {
		p.logger.Warn("Failed to load sender", "sender_id", senderID, "error", err)
	}
	msg.Hydrate()

	result := &SendResult{Message: msg, Recipients: recipients}

	// A receiver that connected while an earlier send still read it as
	// offline has stale receipts; sweep them now rather than at its next
	// online edge.
	for _, id := range recipients {
		if !online[id] {
			continue
		}
		updates, err := p.delivery.Sweep(ctx, id)
		if err != nil {
			p.logger.Warn("Post-send sweep failed", "recipient_id", id, "error", err)
		}
		result.Reconciled = append(result.Reconciled, updates...)
	}

	p.logger.Debug("Message sent", "message_id", msg.ID, "chat_id", conv.ID, "recipients", len(recipients))
	return result, nil
}
