package tasks

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/workflow-builder/engine/internal/repository"
	"github.com/workflow-builder/engine/pkg/logger"
	"go.uber.org/zap"
)

// PurgeSchedule runs the token purge once an hour.
const PurgeSchedule = "@every 1h"

// NewPurgeTokensTask builds the periodic token purge task.
func NewPurgeTokensTask() *asynq.Task {
	return asynq.NewTask(TypePurgeTokens, nil, asynq.Queue(QueueMaintenance), asynq.MaxRetry(1))
}

// PurgeTaskHandler deletes refresh and reset tokens that can no longer be used.
type PurgeTaskHandler struct {
	tokens repository.TokenRepository
	now    func() time.Time
}

func NewPurgeTaskHandler(tokens repository.TokenRepository) *PurgeTaskHandler {
	return &PurgeTaskHandler{tokens: tokens, now: time.Now}
}

func (h *PurgeTaskHandler) HandlePurgeTokens(ctx context.Context, _ *asynq.Task) error {
	n, err := h.tokens.PurgeExpired(ctx, h.now().UTC())
	if err != nil {
		logger.L().Error("purge tokens failed", zap.Error(err))
		return err
	}
	logger.L().Info("purged tokens", zap.Int64("count", n))
	return nil
}

// Register binds every task handler to mux.
func Register(mux *asynq.ServeMux, audit *AuditTaskHandler, purge *PurgeTaskHandler) {
	mux.HandleFunc(TypeAuditRecord, audit.HandleAuditRecord)
	mux.HandleFunc(TypePurgeTokens, purge.HandlePurgeTokens)
}
