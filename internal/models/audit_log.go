package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog records who did what to which entity.
type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID    *uuid.UUID     `gorm:"type:uuid;index" json:"actor_id"`
	Action     string         `gorm:"not null;index" json:"action" validate:"required"`
	TargetType *string        `json:"target_type"`
	TargetID   *string        `json:"target_id"`
	Meta       datatypes.JSON `json:"meta,omitempty" swaggertype:"object"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
