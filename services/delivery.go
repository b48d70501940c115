package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chorus/messaging-service/metrics"
	"chorus/messaging-service/models"
	"chorus/messaging-service/utils"
)

// UnreadPolicy selects which receipt stage clears a conversation's unread
// indicator.
type UnreadPolicy string

const (
	UnreadClearsOnSeen      UnreadPolicy = "seen"
	UnreadClearsOnDelivered UnreadPolicy = "delivered"
)

func ParseUnreadPolicy(s string) (UnreadPolicy, error) {
	switch UnreadPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnreadClearsOnSeen:
		return UnreadClearsOnSeen, nil
	case UnreadClearsOnDelivered:
		return UnreadClearsOnDelivered, nil
	}
	return "", fmt.Errorf("unknown unread policy %q", s)
}

// ReadResult describes one read acknowledgement that matched a conversation.
type ReadResult struct {
	ChatID   uuid.UUID
	ReaderID uuid.UUID
	SenderID uuid.UUID
	Modified int64
	At       time.Time
	// Policy tells consumers whether this acknowledgement is what clears
	// the reader's unread indicator.
	Policy UnreadPolicy
}

// DeliveryMachine advances receipts through sent, delivered and seen. Every
// write is conditional on the target timestamp being unset, so sweeps and
// read acknowledgements can interleave freely and repeat safely.
type DeliveryMachine struct {
	messages MessageStore
	resolver *ConversationResolver
	policy   UnreadPolicy
	logger   *utils.Logger
	now      Clock
}

func NewDeliveryMachine(messages MessageStore, resolver *ConversationResolver, policy UnreadPolicy, logger *utils.Logger) *DeliveryMachine {
	return &DeliveryMachine{
		messages: messages,
		resolver: resolver,
		policy:   policy,
		logger:   logger.With("component", "delivery"),
		now:      systemClock,
	}
}

func (d *DeliveryMachine) SetClock(clock Clock) {
	d.now = clock
}

func (d *DeliveryMachine) Policy() UnreadPolicy {
	return d.policy
}

// Sweep marks every undelivered receipt of recipientID as delivered and
// returns the receipts this call advanced.
func (d *DeliveryMachine) Sweep(ctx context.Context, recipientID uuid.UUID) ([]models.DeliveryUpdate, error) {
	pending, err := d.messages.PendingDeliveries(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	at := d.now()
	updates := make([]models.DeliveryUpdate, 0, len(pending))
	for _, p := range pending {
		changed, err := d.messages.MarkDelivered(ctx, p.MessageID, recipientID, at)
		if err != nil {
			return updates, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if !changed {
			continue
		}
		updates = append(updates, models.DeliveryUpdate{
			ConversationID: p.ConversationID,
			MessageID:      p.MessageID,
			SenderID:       p.SenderID,
			RecipientID:    recipientID,
			Status:         models.DeliveryStatusDelivered,
			At:             at,
		})
	}

	if len(updates) > 0 {
		metrics.ReceiptTransitions.WithLabelValues(string(models.DeliveryStatusDelivered)).Add(float64(len(updates)))
		d.logger.Debug("Delivery sweep", "recipient_id", recipientID, "delivered", len(updates))
	}
	return updates, nil
}

// MarkRead marks every message counterpartID sent to readerID in their
// direct conversation as read. It returns nil when the two users share no
// conversation.
func (d *DeliveryMachine) MarkRead(ctx context.Context, readerID, counterpartID uuid.UUID) (*ReadResult, error) {
	conv, err := d.resolver.Find(ctx, readerID, counterpartID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			d.logger.Debug("No conversation to mark read", "reader_id", readerID, "sender_id", counterpartID)
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return d.markRead(ctx, conv.ID, readerID, counterpartID)
}

func (d *DeliveryMachine) markRead(ctx context.Context, chatID, readerID, senderID uuid.UUID) (*ReadResult, error) {
	at := d.now()
	n, err := d.messages.MarkRead(ctx, chatID, readerID, senderID, at)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if n > 0 {
		metrics.ReceiptTransitions.WithLabelValues(string(models.DeliveryStatusSeen)).Add(float64(n))
	}

	return &ReadResult{
		ChatID:   chatID,
		ReaderID: readerID,
		SenderID: senderID,
		Modified: n,
		At:       at,
		Policy:   d.policy,
	}, nil
}
