package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is owned by the identity subsystem. This service only reads it and
// toggles IsOnline/LastSeenAt on presence transitions.
type User struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	FirstName  string     `json:"first_name" gorm:"not null"`
	LastName   string     `json:"last_name"`
	Email      string     `json:"email" gorm:"index"`
	IsOnline   bool       `json:"is_online" gorm:"default:false;index"`
	LastSeenAt *time.Time `json:"last_seen_at"`
	IsDeleted  bool       `json:"-" gorm:"default:false"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	FullName string `json:"full_name" gorm:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (u *User) AfterFind(tx *gorm.DB) error {
	u.FullName = u.DisplayName()
	return nil
}

// DisplayName joins first and last name.
func (u *User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserSummary is the sender block embedded in messages.
type UserSummary struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	IsOnline bool      `json:"is_online"`
}

func (u *User) Summary() *UserSummary {
	return &UserSummary{ID: u.ID, FullName: u.DisplayName(), IsOnline: u.IsOnline}
}
