package services

import (
	"github.com/google/uuid"

	"chorus/messaging-service/models"
	"chorus/messaging-service/utils"
)

// Publisher pushes events to live connections. Both methods return the
// number of connections the event was queued on.
type Publisher interface {
	PushToUser(userID uuid.UUID, event string, payload interface{}) int
	Broadcast(event string, payload interface{}, exclude uuid.UUID) int
}

// Notifier routes already-computed state to live connections. It never
// persists and never fails the operation that triggered it.
type Notifier struct {
	publisher Publisher
	logger    *utils.Logger
}

func NewNotifier(publisher Publisher, logger *utils.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		logger:    logger.With("component", "fanout"),
	}
}

// MessageSent confirms the send to the sender's connections, pushes the
// message to every recipient and echoes receipts reconciled along the way.
func (n *Notifier) MessageSent(result *SendResult) {
	if result == nil || result.Message == nil {
		return
	}
	payload := models.MessagePayload{Message: result.Message}

	n.publisher.PushToUser(result.Message.SenderID, models.EventMessageSentSuccess, payload)
	for _, id := range result.Recipients {
		if n.publisher.PushToUser(id, models.EventReceiveMessage, payload) == 0 {
			n.logger.Debug("Recipient has no live connection", "recipient_id", id, "message_id", result.Message.ID)
		}
	}

	n.DeliveryAdvanced(result.Reconciled)
}

type statusKey struct {
	sender    uuid.UUID
	chat      uuid.UUID
	recipient uuid.UUID
}

// DeliveryAdvanced sends one delivered status event per sender, conversation
// and recipient, listing the message ids that advanced.
func (n *Notifier) DeliveryAdvanced(updates []models.DeliveryUpdate) {
	if len(updates) == 0 {
		return
	}

	groups := make(map[statusKey][]uuid.UUID)
	order := make([]statusKey, 0)
	for _, u := range updates {
		k := statusKey{sender: u.SenderID, chat: u.ConversationID, recipient: u.RecipientID}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], u.MessageID)
	}

	for _, k := range order {
		ids := groups[k]
		n.publisher.PushToUser(k.sender, models.EventMessageStatus, models.StatusUpdatePayload{
			ChatID:     k.chat,
			MessageIDs: ids,
			Status:     models.DeliveryStatusDelivered,
			UserID:     k.recipient,
			Count:      int64(len(ids)),
		})
	}
}

// ReadAcknowledged tells the sender its messages were seen.
func (n *Notifier) ReadAcknowledged(result *ReadResult) {
	if result == nil || result.Modified == 0 {
		return
	}
	n.publisher.PushToUser(result.SenderID, models.EventMessageStatus, models.StatusUpdatePayload{
		ChatID: result.ChatID,
		Status: models.DeliveryStatusSeen,
		UserID: result.ReaderID,
		Count:  result.Modified,
	})
}

// PresenceChanged broadcasts a presence edge to everyone but the user.
func (n *Notifier) PresenceChanged(change PresenceChange) {
	if change.Transition == TransitionNone {
		return
	}
	payload := models.PresencePayload{
		UserID:   change.UserID,
		IsOnline: change.Transition == TransitionOnline,
	}
	if change.Transition == TransitionOffline {
		payload.LastSeenAt = change.LastSeenAt
	}
	n.publisher.Broadcast(models.EventUserStatusChanged, payload, change.UserID)
}

// Typing relays a typing indicator to the receiver.
func (n *Notifier) Typing(senderID, receiverID uuid.UUID, typing bool) {
	n.publisher.PushToUser(receiverID, models.EventUserTyping, models.TypingPayload{
		UserID:   senderID,
		IsTyping: typing,
	})
}
