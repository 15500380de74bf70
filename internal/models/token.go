package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefreshToken is a long-lived session credential. Only its SHA-256 hash is stored.
type RefreshToken struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TokenHash string     `gorm:"uniqueIndex;not null"`
	UserID    uuid.UUID  `gorm:"type:uuid;index;not null"`
	CreatedAt time.Time
	ExpiresAt time.Time  `gorm:"index;not null"`
	RevokedAt *time.Time
}

func (t *RefreshToken) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Usable reports whether the token can still be exchanged at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// PasswordResetToken is a one-time credential for setting a new password.
type PasswordResetToken struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TokenHash string     `gorm:"uniqueIndex;not null"`
	UserID    uuid.UUID  `gorm:"type:uuid;index;not null"`
	CreatedAt time.Time
	ExpiresAt time.Time  `gorm:"index;not null"`
	UsedAt    *time.Time
}

func (t *PasswordResetToken) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t *PasswordResetToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
