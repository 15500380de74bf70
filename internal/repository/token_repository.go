package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/workflow-builder/engine/internal/models"
	appErr "github.com/workflow-builder/engine/pkg/errors"
	"gorm.io/gorm"
)

// TokenRepository stores refresh and password-reset tokens by hash.
type TokenRepository interface {
	CreateRefresh(ctx context.Context, t *models.RefreshToken) error
	GetRefresh(ctx context.Context, hash string, dest *models.RefreshToken) error
	RevokeRefresh(ctx context.Context, id uuid.UUID, at time.Time) error
	RevokeAllRefresh(ctx context.Context, userID uuid.UUID, at time.Time) error

	CreateReset(ctx context.Context, t *models.PasswordResetToken) error
	GetReset(ctx context.Context, hash string, dest *models.PasswordResetToken) error
	MarkResetUsed(ctx context.Context, id uuid.UUID, at time.Time) error

	// PurgeExpired removes tokens that expired or were consumed before cutoff.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)

	WithTx(tx *gorm.DB) TokenRepository
}

type tokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) WithTx(tx *gorm.DB) TokenRepository { return NewTokenRepository(tx) }

func (r *tokenRepository) CreateRefresh(ctx context.Context, t *models.RefreshToken) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "create refresh token failed")
	}
	return nil
}

func (r *tokenRepository) GetRefresh(ctx context.Context, hash string, dest *models.RefreshToken) error {
	if err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.New(appErr.CodeNotFound, "refresh token not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get refresh token failed")
	}
	return nil
}

func (r *tokenRepository) RevokeRefresh(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at).Error
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "revoke refresh token failed")
	}
	return nil
}

func (r *tokenRepository) RevokeAllRefresh(ctx context.Context, userID uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", at).Error
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "revoke refresh tokens failed")
	}
	return nil
}

func (r *tokenRepository) CreateReset(ctx context.Context, t *models.PasswordResetToken) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "create reset token failed")
	}
	return nil
}

func (r *tokenRepository) GetReset(ctx context.Context, hash string, dest *models.PasswordResetToken) error {
	if err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.New(appErr.CodeNotFound, "reset token not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get reset token failed")
	}
	return nil
}

func (r *tokenRepository) MarkResetUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.PasswordResetToken{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", at)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "mark reset token used failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeInvalid, "reset token already used")
	}
	return nil
}

func (r *tokenRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("expires_at < ? OR revoked_at < ?", cutoff, cutoff).Delete(&models.RefreshToken{})
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected
		res = tx.Where("expires_at < ? OR used_at < ?", cutoff, cutoff).Delete(&models.PasswordResetToken{})
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, appErr.Wrap(err, appErr.CodeInternal, "purge tokens failed")
	}
	return total, nil
}
