package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation groups the participants exchanging messages. A direct
// conversation carries PairKey, which is unique across the table.
type Conversation struct {
	ID              uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	Kind            ConversationKind `json:"kind" gorm:"type:varchar(16);not null;index"`
	PairKey         *string          `json:"-" gorm:"type:varchar(80);uniqueIndex"`
	Name            string           `json:"name,omitempty"`
	LatestMessageID *uuid.UUID       `json:"latest_message_id,omitempty" gorm:"type:uuid"`
	LatestMessageAt *time.Time       `json:"latest_message_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`

	// Relations
	Participants  []Participant `json:"participants,omitempty" gorm:"foreignKey:ConversationID"`
	LatestMessage *Message      `json:"latest_message,omitempty" gorm:"foreignKey:LatestMessageID;references:ID"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// Others returns every participant id except userID, in stored order.
func (c *Conversation) Others(userID uuid.UUID) []uuid.UUID {
	others := make([]uuid.UUID, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.UserID != userID {
			others = append(others, p.UserID)
		}
	}
	return others
}

// Participant is one member of a conversation. IsAdmin is only meaningful
// for group conversations.
type Participant struct {
	ConversationID uuid.UUID `json:"conversation_id" gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey;index"`
	IsAdmin        bool      `json:"is_admin" gorm:"default:false"`
	JoinedAt       time.Time `json:"joined_at"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (Participant) TableName() string {
	return "conversation_participants"
}

type ConversationKind string

const (
	ConversationKindDirect ConversationKind = "direct"
	ConversationKindGroup  ConversationKind = "group"
)
