package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chorus/messaging-service/models"
	"chorus/messaging-service/services"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateMessage stores msg, its receipts and the conversation pointer in a
// single transaction. The pointer only moves forward in time.
func (r *MessageRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(msg).Error; err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}

		for i := range msg.Receipts {
			msg.Receipts[i].MessageID = msg.ID
		}
		if len(msg.Receipts) > 0 {
			if err := tx.Create(&msg.Receipts).Error; err != nil {
				return fmt.Errorf("failed to create receipts: %w", err)
			}
		}

		res := tx.Model(&models.Conversation{}).
			Where("id = ? AND (latest_message_at IS NULL OR latest_message_at <= ?)", msg.ConversationID, msg.CreatedAt).
			Updates(map[string]interface{}{
				"latest_message_id": msg.ID,
				"latest_message_at": msg.CreatedAt,
				"updated_at":        msg.CreatedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update latest message: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// A newer message already holds the pointer, unless the
			// conversation itself is gone.
			var n int64
			if err := tx.Model(&models.Conversation{}).Where("id = ?", msg.ConversationID).Count(&n).Error; err != nil {
				return fmt.Errorf("failed to check conversation: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("conversation %s disappeared: %w", msg.ConversationID, services.ErrInvariant)
			}
		}
		return nil
	})
}

func (r *MessageRepository) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).Preload("Receipts").Preload("Sender").First(&msg, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("message %s: %w", id, services.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	msg.Hydrate()
	return &msg, nil
}

func (r *MessageRepository) History(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]models.Message, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Preload("Receipts").
		Preload("Sender").
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, total, nil
}

func (r *MessageRepository) PendingDeliveries(ctx context.Context, recipientID uuid.UUID) ([]models.PendingReceipt, error) {
	var pending []models.PendingReceipt
	err := r.db.WithContext(ctx).
		Table("message_receipts AS r").
		Select("r.message_id AS message_id, m.conversation_id AS conversation_id, m.sender_id AS sender_id").
		Joins("JOIN messages m ON m.id = r.message_id").
		Where("r.recipient_id = ? AND r.delivered_at IS NULL", recipientID).
		Order("m.created_at").
		Scan(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deliveries: %w", err)
	}
	return pending, nil
}

func (r *MessageRepository) MarkDelivered(ctx context.Context, messageID, recipientID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Receipt{}).
		Where("message_id = ? AND recipient_id = ? AND delivered_at IS NULL", messageID, recipientID).
		Update("delivered_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark delivered: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, readerID, senderID uuid.UUID, at time.Time) (int64, error) {
	sent := r.db.WithContext(ctx).Model(&models.Message{}).
		Select("id").
		Where("conversation_id = ? AND sender_id = ?", conversationID, senderID)

	res := r.db.WithContext(ctx).Model(&models.Receipt{}).
		Where("recipient_id = ? AND read_at IS NULL", readerID).
		Where("message_id IN (?)", sent).
		Updates(map[string]interface{}{
			"read_at":      at,
			"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", at),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark read: %w", res.Error)
	}
	return res.RowsAffected, nil
}
