package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/workflow-builder/engine/internal/models"
	"github.com/workflow-builder/engine/internal/repository"
	"github.com/workflow-builder/engine/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	TypeAuditRecord = "audit:record"
	TypePurgeTokens = "auth:purge_tokens"

	QueueAudit       = "audit"
	QueueMaintenance = "maintenance"
)

// AuditPayload is one audit event in transit from the API to the worker.
type AuditPayload struct {
	Action     string         `json:"action"`
	ActorID    string         `json:"actor_id,omitempty"`
	TargetType string         `json:"target_type,omitempty"`
	TargetID   string         `json:"target_id,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewAuditRecordTask builds the asynq task for p.
func NewAuditRecordTask(p AuditPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return asynq.NewTask(TypeAuditRecord, b, asynq.Queue(QueueAudit), asynq.MaxRetry(5)), nil
}

// ToModel converts p into the row stored in audit_logs.
func (p AuditPayload) ToModel() (*models.AuditLog, error) {
	entry := &models.AuditLog{Action: p.Action, CreatedAt: p.OccurredAt}
	if p.ActorID != "" {
		id, err := uuid.Parse(p.ActorID)
		if err != nil {
			return nil, fmt.Errorf("actor id: %w", err)
		}
		entry.ActorID = &id
	}
	if p.TargetType != "" {
		entry.TargetType = &p.TargetType
	}
	if p.TargetID != "" {
		entry.TargetID = &p.TargetID
	}
	if len(p.Meta) > 0 {
		b, err := json.Marshal(p.Meta)
		if err != nil {
			return nil, fmt.Errorf("meta: %w", err)
		}
		entry.Meta = datatypes.JSON(b)
	}
	return entry, nil
}

// AuditTaskHandler persists audit events delivered through the queue.
type AuditTaskHandler struct {
	repo repository.AuditRepository
}

func NewAuditTaskHandler(repo repository.AuditRepository) *AuditTaskHandler {
	return &AuditTaskHandler{repo: repo}
}

func (h *AuditTaskHandler) HandleAuditRecord(ctx context.Context, t *asynq.Task) error {
	var p AuditPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid audit task payload", zap.Error(err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	entry, err := p.ToModel()
	if err != nil {
		logger.L().Error("invalid audit event", zap.Error(err), zap.String("action", p.Action))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := h.repo.Create(ctx, entry); err != nil {
		logger.L().Error("store audit event failed", zap.Error(err), zap.String("action", p.Action))
		return err
	}
	logger.L().Debug("audit event stored", zap.String("action", p.Action), zap.String("audit_id", entry.ID.String()))
	return nil
}
