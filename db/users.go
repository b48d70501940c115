package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"chorus/messaging-service/models"
	"chorus/messaging-service/services"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("is_deleted = ?", false).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, services.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// ListActiveUsers returns every non-deleted user except exclude.
func (r *UserRepository) ListActiveUsers(ctx context.Context, exclude uuid.UUID) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("is_deleted = ? AND id <> ?", false, exclude).
		Order("first_name, last_name").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// SetPresence writes the presence flag. lastSeenAt is only written when set.
func (r *UserRepository) SetPresence(ctx context.Context, id uuid.UUID, online bool, lastSeenAt *time.Time) error {
	updates := map[string]interface{}{"is_online": online}
	if lastSeenAt != nil {
		updates["last_seen_at"] = *lastSeenAt
	}

	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to set presence for %s: %w", id, err)
	}
	return nil
}

// ResetPresence marks every user offline.
func (r *UserRepository) ResetPresence(ctx context.Context) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("is_online = ?", true).
		Update("is_online", false).Error
	if err != nil {
		return fmt.Errorf("failed to reset presence: %w", err)
	}
	return nil
}
