package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Workflow is the current state of a user's workflow graph. Data holds the
// serialized document; the plain json column type keeps its bytes as written.
// Version counts full-document saves.
type Workflow struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID     uuid.UUID      `gorm:"type:uuid;index;not null" json:"owner_id" validate:"required"`
	Name        string         `gorm:"not null" json:"name" validate:"required"`
	Description *string        `gorm:"type:text" json:"description"`
	IsTemplate  bool           `gorm:"not null;default:false;index" json:"is_template"`
	Version     int            `gorm:"not null;default:1" json:"version" validate:"gte=1"`
	Data        datatypes.JSON `gorm:"type:json;not null" json:"-" swaggerignore:"true"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`
}

func (w *Workflow) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// WorkflowVersion is an immutable snapshot of a workflow document.
type WorkflowVersion struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkflowID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_workflow_versions_workflow_version" json:"workflow_id"`
	Version    int            `gorm:"not null;uniqueIndex:idx_workflow_versions_workflow_version" json:"version" validate:"gte=1"`
	Data       datatypes.JSON `gorm:"type:json;not null" json:"-" swaggerignore:"true"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (v *WorkflowVersion) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
