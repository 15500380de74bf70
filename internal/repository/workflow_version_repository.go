package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/workflow-builder/engine/internal/models"
	appErr "github.com/workflow-builder/engine/pkg/errors"
	"gorm.io/gorm"
)

type WorkflowVersionRepository interface {
	Create(ctx context.Context, v *models.WorkflowVersion) error
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]models.WorkflowVersion, error)
	GetByVersion(ctx context.Context, workflowID uuid.UUID, version int, dest *models.WorkflowVersion) error
	DeleteByWorkflow(ctx context.Context, workflowID uuid.UUID) (int64, error)
	WithTx(tx *gorm.DB) WorkflowVersionRepository
}

type workflowVersionRepository struct {
	db *gorm.DB
}

func NewWorkflowVersionRepository(db *gorm.DB) WorkflowVersionRepository {
	return &workflowVersionRepository{db: db}
}

func (r *workflowVersionRepository) WithTx(tx *gorm.DB) WorkflowVersionRepository {
	return NewWorkflowVersionRepository(tx)
}

// Create appends a snapshot. A second snapshot with the same version
// number violates idx_workflow_versions_workflow_version and is a conflict.
func (r *workflowVersionRepository) Create(ctx context.Context, v *models.WorkflowVersion) error {
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return appErr.Wrap(err, appErr.CodeConflict, "workflow was updated concurrently, retry")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "create workflow version failed")
	}
	return nil
}

func (r *workflowVersionRepository) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]models.WorkflowVersion, error) {
	var out []models.WorkflowVersion
	if err := r.db.WithContext(ctx).Where("workflow_id = ?", workflowID).Order("version ASC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list workflow versions failed")
	}
	return out, nil
}

func (r *workflowVersionRepository) GetByVersion(ctx context.Context, workflowID uuid.UUID, version int, dest *models.WorkflowVersion) error {
	if err := r.db.WithContext(ctx).Where("workflow_id = ? AND version = ?", workflowID, version).First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.New(appErr.CodeNotFound, "workflow version not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get workflow version failed")
	}
	return nil
}

func (r *workflowVersionRepository) DeleteByWorkflow(ctx context.Context, workflowID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("workflow_id = ?", workflowID).Delete(&models.WorkflowVersion{})
	if res.Error != nil {
		return 0, appErr.Wrap(res.Error, appErr.CodeInternal, "delete workflow versions failed")
	}
	return res.RowsAffected, nil
}
