package services

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/workflow-builder/engine/internal/auth"
	"github.com/workflow-builder/engine/internal/document"
	"github.com/workflow-builder/engine/internal/models"
	"github.com/workflow-builder/engine/internal/repository"
	appErr "github.com/workflow-builder/engine/pkg/errors"
	"github.com/workflow-builder/engine/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionWorkflowCreate    = "workflow.create"
	ActionWorkflowUpdate    = "workflow.update"
	ActionWorkflowTemplate  = "workflow.template"
	ActionWorkflowDelete    = "workflow.delete"
	ActionWorkflowDuplicate = "workflow.duplicate"
	ActionWorkflowExport    = "workflow.export"
	ActionWorkflowImport    = "workflow.import"
	ActionWorkflowGenerate  = "workflow.generate"

	targetWorkflow = "workflow"
)

// TemplateFilter restricts List by the template flag.
type TemplateFilter string

const (
	TemplatesAny     TemplateFilter = ""
	TemplatesOnly    TemplateFilter = "only"
	TemplatesExclude TemplateFilter = "exclude"
)

func (f TemplateFilter) Valid() bool {
	return f == TemplatesAny || f == TemplatesOnly || f == TemplatesExclude
}

type CreateWorkflowInput struct {
	Name        string          `validate:"required,max=255"`
	Description *string         `validate:"omitempty,max=4000"`
	IsTemplate  bool
	Data        json.RawMessage `validate:"required"`
}

// UpdateWorkflowInput changes the given fields. A nil field, and Data that
// is empty or JSON null, is left untouched.
type UpdateWorkflowInput struct {
	Name        *string `validate:"omitempty,min=1,max=255"`
	Description *string `validate:"omitempty,max=4000"`
	IsTemplate  *bool
	Data        json.RawMessage
}

type WorkflowService interface {
	Create(ctx context.Context, p auth.Principal, in CreateWorkflowInput) (*models.Workflow, error)
	Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*models.Workflow, error)
	List(ctx context.Context, p auth.Principal, filter TemplateFilter) ([]models.Workflow, error)
	// Update applies metadata and, when Data is present, a new document
	// version in one transaction.
	Update(ctx context.Context, p auth.Principal, id uuid.UUID, in UpdateWorkflowInput) (*models.Workflow, error)
	UpdateMetadata(ctx context.Context, p auth.Principal, id uuid.UUID, name, description *string, isTemplate *bool) (*models.Workflow, error)
	UpdateData(ctx context.Context, p auth.Principal, id uuid.UUID, data json.RawMessage) (*models.Workflow, error)
	SetTemplate(ctx context.Context, p auth.Principal, id uuid.UUID, isTemplate bool) (*models.Workflow, error)
	Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error
	Duplicate(ctx context.Context, p auth.Principal, id uuid.UUID) (*models.Workflow, error)
	Export(ctx context.Context, p auth.Principal, id uuid.UUID) (*document.ExportEnvelope, error)
	Import(ctx context.Context, p auth.Principal, env document.ExportEnvelope) (*models.Workflow, error)
	ListVersions(ctx context.Context, p auth.Principal, id uuid.UUID) ([]models.WorkflowVersion, error)
	GetVersion(ctx context.Context, p auth.Principal, id uuid.UUID, version int) (*models.WorkflowVersion, error)
}

type workflowService struct {
	db        *gorm.DB
	workflows repository.WorkflowRepository
	versions  repository.WorkflowVersionRepository
	audit     AuditSink
	validate  *validator.Validate
	now       func() time.Time
}

func NewWorkflowService(db *gorm.DB, workflows repository.WorkflowRepository, versions repository.WorkflowVersionRepository, audit AuditSink) WorkflowService {
	return &workflowService{
		db:        db,
		workflows: workflows,
		versions:  versions,
		audit:     audit,
		validate:  validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var _ WorkflowService = (*workflowService)(nil)

func (s *workflowService) Create(ctx context.Context, p auth.Principal, in CreateWorkflowInput) (*models.Workflow, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid workflow input")
	}
	if _, err := document.ParseJSON(in.Data); err != nil {
		return nil, err
	}
	wf, err := s.create(ctx, p.UserID, in.Name, in.Description, in.IsTemplate, in.Data)
	if err != nil {
		return nil, err
	}
	s.record(ctx, p, ActionWorkflowCreate, wf.ID, nil)
	return wf, nil
}

// create stores a new workflow at version 1 together with its first
// snapshot. The document is re-stamped with the new identity first.
func (s *workflowService) create(ctx context.Context, owner uuid.UUID, name string, description *string, isTemplate bool, data []byte) (*models.Workflow, error) {
	now := s.now()
	wf := &models.Workflow{
		ID:          uuid.New(),
		OwnerID:     owner,
		Name:        name,
		Description: description,
		IsTemplate:  isTemplate,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	stamped, err := document.Restamp(data, wf.ID.String(), wf.Name, document.Timestamp(now))
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "workflow data is not a JSON object")
	}
	wf.Data = datatypes.JSON(stamped)

	err = repository.InTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.workflows.WithTx(tx).Create(ctx, wf); err != nil {
			return err
		}
		return s.versions.WithTx(tx).Create(ctx, &models.WorkflowVersion{
			WorkflowID: wf.ID,
			Version:    1,
			Data:       wf.Data,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info("workflow created", zap.String("workflow_id", wf.ID.String()), zap.String("owner_id", owner.String()))
	return wf, nil
}

func (s *workflowService) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*models.Workflow, error) {
	var wf models.Workflow
	if err := s.workflows.GetByID(ctx, id, &wf); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, errWorkflowNotFound()
		}
		return nil, err
	}
	if !auth.CanAccess(p, wf.OwnerID) {
		return nil, errWorkflowNotFound()
	}
	return &wf, nil
}

func (s *workflowService) List(ctx context.Context, p auth.Principal, filter TemplateFilter) ([]models.Workflow, error) {
	if !filter.Valid() {
		return nil, appErr.Newf(appErr.CodeInvalid, "templates must be %q or %q", TemplatesOnly, TemplatesExclude)
	}
	var f repository.WorkflowFilter
	if !p.IsAdmin() {
		owner := p.UserID
		f.OwnerID = &owner
	}
	switch filter {
	case TemplatesOnly:
		t := true
		f.IsTemplate = &t
	case TemplatesExclude:
		t := false
		f.IsTemplate = &t
	}
	return s.workflows.List(ctx, f)
}

func (s *workflowService) Update(ctx context.Context, p auth.Principal, id uuid.UUID, in UpdateWorkflowInput) (*models.Workflow, error) {
	return s.update(ctx, p, id, in, ActionWorkflowUpdate, nil)
}

func (s *workflowService) UpdateMetadata(ctx context.Context, p auth.Principal, id uuid.UUID, name, description *string, isTemplate *bool) (*models.Workflow, error) {
	return s.update(ctx, p, id, UpdateWorkflowInput{Name: name, Description: description, IsTemplate: isTemplate}, ActionWorkflowUpdate, nil)
}

func (s *workflowService) UpdateData(ctx context.Context, p auth.Principal, id uuid.UUID, data json.RawMessage) (*models.Workflow, error) {
	if !present(data) {
		return nil, appErr.New(appErr.CodeInvalid, "workflow data is required")
	}
	return s.update(ctx, p, id, UpdateWorkflowInput{Data: data}, ActionWorkflowUpdate, nil)
}

func (s *workflowService) SetTemplate(ctx context.Context, p auth.Principal, id uuid.UUID, isTemplate bool) (*models.Workflow, error) {
	if !p.IsAdmin() {
		return nil, appErr.New(appErr.CodeForbidden, "admin privileges required")
	}
	return s.update(ctx, p, id, UpdateWorkflowInput{IsTemplate: &isTemplate}, ActionWorkflowTemplate, map[string]any{"is_template": isTemplate})
}

// update is one read-modify-write of the workflow row. The row is locked
// where the database supports it, and the (workflow_id, version) unique
// index rejects a second writer that computed the same version.
func (s *workflowService) update(ctx context.Context, p auth.Principal, id uuid.UUID, in UpdateWorkflowInput, action string, meta map[string]any) (*models.Workflow, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid workflow input")
	}
	withData := present(in.Data)
	if withData {
		if _, err := document.ParseJSON(in.Data); err != nil {
			return nil, err
		}
	}

	now := s.now()
	var wf models.Workflow
	err := repository.InTx(ctx, s.db, func(tx *gorm.DB) error {
		workflows := s.workflows.WithTx(tx)
		if err := workflows.GetForUpdate(ctx, id, &wf); err != nil {
			if appErr.IsCode(err, appErr.CodeNotFound) {
				return errWorkflowNotFound()
			}
			return err
		}
		if !auth.CanAccess(p, wf.OwnerID) {
			return errWorkflowNotFound()
		}

		fields := map[string]any{"updated_at": now}
		if in.Name != nil {
			wf.Name = *in.Name
			fields["name"] = wf.Name
		}
		if in.Description != nil {
			wf.Description = in.Description
			fields["description"] = *in.Description
		}
		if in.IsTemplate != nil {
			wf.IsTemplate = *in.IsTemplate
			fields["is_template"] = wf.IsTemplate
		}

		switch {
		case withData:
			stamped, err := document.Restamp(in.Data, wf.ID.String(), wf.Name, document.Timestamp(now))
			if err != nil {
				return appErr.Wrap(err, appErr.CodeInvalid, "workflow data is not a JSON object")
			}
			wf.Data = datatypes.JSON(stamped)
			wf.Version++
			fields["data"] = wf.Data
			fields["version"] = wf.Version
		case in.Name != nil:
			// keep the embedded name in step with the row; no new version
			if stamped, err := document.Restamp(wf.Data, wf.ID.String(), wf.Name, document.Timestamp(now)); err == nil {
				wf.Data = datatypes.JSON(stamped)
				fields["data"] = wf.Data
			} else {
				logger.Ctx(ctx).Warn("stored workflow data could not be restamped", zap.String("workflow_id", wf.ID.String()), zap.Error(err))
			}
		}
		wf.UpdatedAt = now

		if err := workflows.UpdateFields(ctx, wf.ID, fields); err != nil {
			return err
		}
		if !withData {
			return nil
		}
		return s.versions.WithTx(tx).Create(ctx, &models.WorkflowVersion{
			WorkflowID: wf.ID,
			Version:    wf.Version,
			Data:       wf.Data,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	if withData {
		logger.Ctx(ctx).Info("workflow version saved", zap.String("workflow_id", wf.ID.String()), zap.Int("version", wf.Version))
	}
	s.record(ctx, p, action, wf.ID, meta)
	return &wf, nil
}

func (s *workflowService) Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	var removed int64
	err := repository.InTx(ctx, s.db, func(tx *gorm.DB) error {
		workflows := s.workflows.WithTx(tx)
		var wf models.Workflow
		if err := workflows.GetForUpdate(ctx, id, &wf); err != nil {
			if appErr.IsCode(err, appErr.CodeNotFound) {
				return errWorkflowNotFound()
			}
			return err
		}
		if !auth.CanAccess(p, wf.OwnerID) {
			return errWorkflowNotFound()
		}
		n, err := s.versions.WithTx(tx).DeleteByWorkflow(ctx, wf.ID)
		if err != nil {
			return err
		}
		removed = n
		return workflows.Delete(ctx, wf.ID)
	})
	if err != nil {
		return err
	}
	logger.Ctx(ctx).Info("workflow deleted", zap.String("workflow_id", id.String()), zap.Int64("versions", removed))
	s.record(ctx, p, ActionWorkflowDelete, id, nil)
	return nil
}

// Duplicate copies the source's current document into a new workflow owned
// by the caller. Nodes and edges are kept as stored; only the embedded
// identity is re-stamped.
func (s *workflowService) Duplicate(ctx context.Context, p auth.Principal, id uuid.UUID) (*models.Workflow, error) {
	src, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	wf, err := s.create(ctx, p.UserID, src.Name+" Copy", src.Description, false, src.Data)
	if err != nil {
		return nil, err
	}
	s.record(ctx, p, ActionWorkflowDuplicate, wf.ID, map[string]any{"source_id": src.ID.String()})
	return wf, nil
}

func (s *workflowService) Export(ctx context.Context, p auth.Principal, id uuid.UUID) (*document.ExportEnvelope, error) {
	wf, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	env := &document.ExportEnvelope{
		Version:    document.EnvelopeVersion,
		ExportedAt: document.Timestamp(s.now()),
		Workflow:   json.RawMessage(wf.Data),
	}
	s.record(ctx, p, ActionWorkflowExport, wf.ID, nil)
	return env, nil
}

// Import creates a workflow owned by the caller from an exported envelope.
// A missing envelope version is read as the current one.
func (s *workflowService) Import(ctx context.Context, p auth.Principal, env document.ExportEnvelope) (*models.Workflow, error) {
	if env.Version != 0 && env.Version != document.EnvelopeVersion {
		return nil, appErr.Newf(appErr.CodeInvalid, "unsupported export version %d", env.Version)
	}
	if !present(env.Workflow) {
		return nil, appErr.New(appErr.CodeInvalid, "workflow is required")
	}
	doc, err := document.ParseJSON(env.Workflow)
	if err != nil {
		return nil, err
	}
	wf, err := s.create(ctx, p.UserID, doc.Name, nil, false, env.Workflow)
	if err != nil {
		return nil, err
	}
	s.record(ctx, p, ActionWorkflowImport, wf.ID, nil)
	return wf, nil
}

func (s *workflowService) ListVersions(ctx context.Context, p auth.Principal, id uuid.UUID) ([]models.WorkflowVersion, error) {
	wf, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return s.versions.ListByWorkflow(ctx, wf.ID)
}

func (s *workflowService) GetVersion(ctx context.Context, p auth.Principal, id uuid.UUID, version int) (*models.WorkflowVersion, error) {
	wf, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	var v models.WorkflowVersion
	if err := s.versions.GetByVersion(ctx, wf.ID, version, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *workflowService) record(ctx context.Context, p auth.Principal, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditEvent{
		Action:     action,
		ActorID:    p.UserID,
		TargetType: targetWorkflow,
		TargetID:   id.String(),
		Meta:       meta,
	})
}

func errWorkflowNotFound() error {
	return appErr.New(appErr.CodeNotFound, "workflow not found")
}

// present reports whether raw carries a value. JSON null counts as absent.
func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
