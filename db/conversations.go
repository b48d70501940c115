package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chorus/messaging-service/models"
	"chorus/messaging-service/services"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).Preload("Participants").First(&conv, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("conversation %s: %w", id, services.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (r *ConversationRepository) FindByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).Preload("Participants").
		Where("pair_key = ?", pairKey).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("conversation %s: %w", pairKey, services.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return &conv, nil
}

// CreateConversation inserts conv and its participants atomically. A
// duplicate pair key surfaces as an error from the unique index.
func (r *ConversationRepository) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(conv).Error; err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}

		for i := range conv.Participants {
			conv.Participants[i].ConversationID = conv.ID
			if conv.Participants[i].JoinedAt.IsZero() {
				conv.Participants[i].JoinedAt = conv.CreatedAt
			}
		}
		if len(conv.Participants) > 0 {
			if err := tx.Omit(clause.Associations).Create(&conv.Participants).Error; err != nil {
				return fmt.Errorf("failed to add participants: %w", err)
			}
		}
		return nil
	})
}

func (r *ConversationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", userID).
		Preload("Participants.User").
		Preload("LatestMessage.Receipts").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

func (r *ConversationRepository) UnreadCounts(ctx context.Context, userID uuid.UUID, onDelivered bool) (map[uuid.UUID]int64, error) {
	column := "r.read_at"
	if onDelivered {
		column = "r.delivered_at"
	}

	var rows []struct {
		ConversationID uuid.UUID
		Unread         int64
	}
	err := r.db.WithContext(ctx).
		Table("message_receipts AS r").
		Select("m.conversation_id AS conversation_id, COUNT(*) AS unread").
		Joins("JOIN messages m ON m.id = r.message_id").
		Where("r.recipient_id = ? AND "+column+" IS NULL", userID).
		Group("m.conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count unread messages: %w", err)
	}

	counts := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		counts[row.ConversationID] = row.Unread
	}
	return counts, nil
}
