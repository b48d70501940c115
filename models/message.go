package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message content is immutable once created; only its receipts advance.
type Message struct {
	ID             uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID   `json:"chat_id" gorm:"type:uuid;not null;index:idx_messages_conversation_created,priority:1"`
	SenderID       uuid.UUID   `json:"sender_id" gorm:"type:uuid;not null;index"`
	Content        string      `json:"content" gorm:"not null"`
	Kind           MessageKind `json:"type" gorm:"type:varchar(16);not null;default:text"`
	CreatedAt      time.Time   `json:"created_at" gorm:"index:idx_messages_conversation_created,priority:2"`

	// Relations
	Receipts []Receipt `json:"read_status" gorm:"foreignKey:MessageID"`
	Sender   *User     `json:"-" gorm:"foreignKey:SenderID"`

	// Derived on read
	Author *UserSummary   `json:"sender,omitempty" gorm:"-"`
	Status DeliveryStatus `json:"status" gorm:"-"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Hydrate fills the derived fields: the sender block from the preloaded
// Sender and the aggregate status from the receipts.
func (m *Message) Hydrate() {
	if m.Sender != nil {
		m.Author = m.Sender.Summary()
	}
	m.Status = AggregateStatus(m.Receipts)
}

// ReceiptFor returns the receipt of recipientID, if any.
func (m *Message) ReceiptFor(recipientID uuid.UUID) (Receipt, bool) {
	for _, r := range m.Receipts {
		if r.RecipientID == recipientID {
			return r, true
		}
	}
	return Receipt{}, false
}

// Receipt is the delivery state of one message for one recipient.
// ReadAt != nil implies DeliveredAt != nil.
type Receipt struct {
	MessageID   uuid.UUID  `json:"-" gorm:"type:uuid;primaryKey"`
	RecipientID uuid.UUID  `json:"user" gorm:"type:uuid;primaryKey;index"`
	DeliveredAt *time.Time `json:"delivered_at"`
	ReadAt      *time.Time `json:"read_at"`
}

func (Receipt) TableName() string {
	return "message_receipts"
}

// Status is the per-recipient lifecycle stage.
func (r Receipt) Status() DeliveryStatus {
	switch {
	case r.ReadAt != nil:
		return DeliveryStatusSeen
	case r.DeliveredAt != nil:
		return DeliveryStatusDelivered
	default:
		return DeliveryStatusSent
	}
}

// AggregateStatus folds recipient stages into the UI status of a message:
// seen when every recipient read it, delivered when every recipient has it,
// sent otherwise.
func AggregateStatus(receipts []Receipt) DeliveryStatus {
	if len(receipts) == 0 {
		return DeliveryStatusSent
	}
	allDelivered, allRead := true, true
	for _, r := range receipts {
		if r.DeliveredAt == nil {
			allDelivered = false
		}
		if r.ReadAt == nil {
			allRead = false
		}
	}
	switch {
	case allRead:
		return DeliveryStatusSeen
	case allDelivered:
		return DeliveryStatusDelivered
	default:
		return DeliveryStatusSent
	}
}

// PendingReceipt is a receipt still waiting for delivery, joined with the
// message fields the status echo needs.
type PendingReceipt struct {
	MessageID      uuid.UUID
	ConversationID uuid.UUID
	SenderID       uuid.UUID
}

// Enums
type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindImage  MessageKind = "image"
	MessageKindFile   MessageKind = "file"
	MessageKindVideo  MessageKind = "video"
	MessageKindAudio  MessageKind = "audio"
	MessageKindSystem MessageKind = "system"
)

var messageKinds = map[string]MessageKind{
	"text":   MessageKindText,
	"image":  MessageKindImage,
	"file":   MessageKindFile,
	"video":  MessageKindVideo,
	"audio":  MessageKindAudio,
	"system": MessageKindSystem,
	// numeric codes used by older clients
	"1": MessageKindText,
	"2": MessageKindImage,
	"3": MessageKindFile,
	"4": MessageKindVideo,
	"5": MessageKindAudio,
	"6": MessageKindSystem,
}

// ParseMessageKind accepts a kind name or its numeric code. An empty value
// means text.
func ParseMessageKind(s string) (MessageKind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return MessageKindText, true
	}
	k, ok := messageKinds[s]
	return k, ok
}

type DeliveryStatus string

const (
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusSeen      DeliveryStatus = "seen"
)
