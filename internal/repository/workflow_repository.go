package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/workflow-builder/engine/internal/models"
	appErr "github.com/workflow-builder/engine/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkflowFilter narrows List. A nil field does not filter.
type WorkflowFilter struct {
	OwnerID    *uuid.UUID
	IsTemplate *bool
}

type WorkflowRepository interface {
	BaseRepository[models.Workflow]
	// GetForUpdate loads the row and, where the database supports it, locks
	// it until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID, dest *models.Workflow) error
	List(ctx context.Context, filter WorkflowFilter) ([]models.Workflow, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	WithTx(tx *gorm.DB) WorkflowRepository
}

type workflowRepository struct {
	BaseRepository[models.Workflow]
	db *gorm.DB
}

func NewWorkflowRepository(db *gorm.DB) WorkflowRepository {
	return &workflowRepository{BaseRepository: NewBaseRepository[models.Workflow](db), db: db}
}

func (r *workflowRepository) WithTx(tx *gorm.DB) WorkflowRepository { return NewWorkflowRepository(tx) }

func (r *workflowRepository) GetForUpdate(ctx context.Context, id uuid.UUID, dest *models.Workflow) error {
	q := r.db.WithContext(ctx)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	if err := q.First(dest, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.New(appErr.CodeNotFound, "workflow not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get workflow failed")
	}
	return nil
}

func (r *workflowRepository) List(ctx context.Context, filter WorkflowFilter) ([]models.Workflow, error) {
	q := r.db.WithContext(ctx).Model(&models.Workflow{})
	if filter.OwnerID != nil {
		q = q.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.IsTemplate != nil {
		q = q.Where("is_template = ?", *filter.IsTemplate)
	}
	var out []models.Workflow
	if err := q.Order("updated_at DESC").Order("id").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list workflows failed")
	}
	return out, nil
}

func (r *workflowRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Workflow{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return mapWriteErr(res.Error, "update workflow failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "workflow not found")
	}
	return nil
}
