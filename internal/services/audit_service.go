package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/workflow-builder/engine/internal/models"
	"github.com/workflow-builder/engine/internal/queue/tasks"
	"github.com/workflow-builder/engine/internal/repository"
	appErr "github.com/workflow-builder/engine/pkg/errors"
	"github.com/workflow-builder/engine/pkg/logger"
	"go.uber.org/zap"
)

// AuditEvent describes one mutating action.
type AuditEvent struct {
	Action     string
	ActorID    uuid.UUID
	TargetType string
	TargetID   string
	Meta       map[string]any
}

// AuditSink records audit events. Record never fails the caller.
type AuditSink interface {
	Record(ctx context.Context, ev AuditEvent)
}

// Enqueuer is the part of *asynq.Client the sink needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type auditSink struct {
	repo     repository.AuditRepository
	enqueuer Enqueuer
	now      func() time.Time
}

// NewAuditSink returns a sink that hands events to the worker when enqueuer
// is set and writes them directly otherwise.
func NewAuditSink(repo repository.AuditRepository, enqueuer Enqueuer) AuditSink {
	return &auditSink{repo: repo, enqueuer: enqueuer, now: time.Now}
}

func (s *auditSink) Record(ctx context.Context, ev AuditEvent) {
	// the request may be finishing; the event must still be written
	ctx = context.WithoutCancel(ctx)
	p := tasks.AuditPayload{
		Action:     ev.Action,
		TargetType: ev.TargetType,
		TargetID:   ev.TargetID,
		Meta:       ev.Meta,
		OccurredAt: s.now().UTC(),
	}
	if ev.ActorID != uuid.Nil {
		p.ActorID = ev.ActorID.String()
	}
	log := logger.Ctx(ctx).With(zap.String("action", ev.Action), zap.String("target_id", ev.TargetID))

	if s.enqueuer != nil {
		task, err := tasks.NewAuditRecordTask(p)
		if err == nil {
			if _, err = s.enqueuer.EnqueueContext(ctx, task); err == nil {
				return
			}
		}
		log.Warn("enqueue audit event failed, writing inline", zap.Error(err))
	}

	entry, err := p.ToModel()
	if err != nil {
		log.Error("build audit event failed", zap.Error(err))
		return
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		log.Error("write audit event failed", zap.Error(err))
	}
}

// AuditService reads the audit trail.
type AuditService interface {
	List(ctx context.Context, limit int) ([]models.AuditLog, error)
}

const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 1000
)

type auditService struct {
	repo repository.AuditRepository
}

func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

func (s *auditService) List(ctx context.Context, limit int) ([]models.AuditLog, error) {
	switch {
	case limit == 0:
		limit = DefaultAuditLimit
	case limit < 0:
		return nil, appErr.New(appErr.CodeInvalid, "limit must be positive")
	case limit > MaxAuditLimit:
		limit = MaxAuditLimit
	}
	return s.repo.List(ctx, limit)
}
