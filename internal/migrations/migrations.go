// Package migrations owns the schema: gorm AutoMigrate for every model plus
// the statements AutoMigrate cannot express.
package migrations

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/workflow-builder/engine/internal/models"
)

// Models returns all models that need migration.
func Models() []any {
	return []any{
		// Users & sessions
		&models.User{},
		&models.RefreshToken{},
		&models.PasswordResetToken{},

		// Workflows
		&models.Workflow{},
		&models.WorkflowVersion{},

		// Audit
		&models.AuditLog{},
	}
}

// Run executes all database migrations.
func Run(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return runCustomMigrations(db)
}

// runCustomMigrations handles schema changes AutoMigrate can't handle.
func runCustomMigrations(db *gorm.DB) error {
	migrations := []struct {
		name string
		fn   func(*gorm.DB) error
	}{
		{"uuid extension", enableUUIDExtension},
		{"workflow indexes", addWorkflowIndexes},
	}
	for _, m := range migrations {
		if err := m.fn(db); err != nil {
			return fmt.Errorf("%s: %w", m.name, err)
		}
	}
	return nil
}

func enableUUIDExtension(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error
}

// addWorkflowIndexes serves the owner listing, newest first.
func addWorkflowIndexes(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_workflows_owner_updated
		ON workflows(owner_id, updated_at DESC)
	`).Error
}
