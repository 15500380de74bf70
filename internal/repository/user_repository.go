package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/workflow-builder/engine/internal/models"
	appErr "github.com/workflow-builder/engine/pkg/errors"
	"gorm.io/gorm"
)

type UserRepository interface {
	BaseRepository[models.User]
	GetByEmail(ctx context.Context, email string, dest *models.User) error
	EmailTaken(ctx context.Context, email string, except uuid.UUID) (bool, error)
	List(ctx context.Context) ([]models.User, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	WithTx(tx *gorm.DB) UserRepository
}

type userRepository struct {
	BaseRepository[models.User]
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{BaseRepository: NewBaseRepository[models.User](db), db: db}
}

func (r *userRepository) WithTx(tx *gorm.DB) UserRepository { return NewUserRepository(tx) }

func (r *userRepository) GetByEmail(ctx context.Context, email string, dest *models.User) error {
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.New(appErr.CodeNotFound, "user not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get user by email failed")
	}
	return nil
}

func (r *userRepository) EmailTaken(ctx context.Context, email string, except uuid.UUID) (bool, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email)
	if except != uuid.Nil {
		q = q.Where("id <> ?", except)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, appErr.Wrap(err, appErr.CodeInternal, "check email failed")
	}
	return n > 0, nil
}

func (r *userRepository) List(ctx context.Context) ([]models.User, error) {
	var out []models.User
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list users failed")
	}
	return out, nil
}

func (r *userRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return mapWriteErr(res.Error, "update user failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "user not found")
	}
	return nil
}
