package services

import (
	"context"

	"github.com/workflow-builder/engine/internal/models"
	"github.com/workflow-builder/engine/pkg/config"
	"github.com/workflow-builder/engine/pkg/logger"
	"go.uber.org/zap"
)

// Seed creates the configured admin and test users that do not exist yet.
// A failing entry is logged and skipped.
func Seed(ctx context.Context, users UserService, cfg *config.Config) int {
	var entries []config.SeedUser
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		entries = append(entries, config.SeedUser{Email: cfg.AdminEmail, Password: cfg.AdminPassword, Role: models.RoleAdmin})
	}
	entries = append(entries, cfg.SeedUsers()...)

	created := 0
	for _, e := range entries {
		ok, err := users.EnsureUser(ctx, e.Email, e.Password, e.Role)
		if err != nil {
			logger.Ctx(ctx).Warn("seed user failed", zap.String("email", e.Email), zap.Error(err))
			continue
		}
		if ok {
			created++
		}
	}
	return created
}
