package repository

import (
	"context"

	"github.com/workflow-builder/engine/internal/models"
	appErr "github.com/workflow-builder/engine/pkg/errors"
	"gorm.io/gorm"
)

type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, limit int) ([]models.AuditLog, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "create audit log failed")
	}
	return nil
}

// List returns the newest entries first.
func (r *auditRepository) List(ctx context.Context, limit int) ([]models.AuditLog, error) {
	var out []models.AuditLog
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list audit logs failed")
	}
	return out, nil
}
