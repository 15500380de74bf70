package services

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/workflow-builder/engine/internal/auth"
	"github.com/workflow-builder/engine/internal/models"
	"github.com/workflow-builder/engine/internal/repository"
	appErr "github.com/workflow-builder/engine/pkg/errors"
	"github.com/workflow-builder/engine/pkg/logger"
	"go.uber.org/zap"
)

const (
	ActionUserCreate     = "user.create"
	ActionUserUpdate     = "user.update"
	ActionUserSelfUpdate = "user.self.update"
)

type CreateUserInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
	Role     string `validate:"omitempty,oneof=user admin"`
	IsActive *bool
}

type UpdateUserInput struct {
	Role     *string `validate:"omitempty,oneof=user admin"`
	IsActive *bool
}

type UserService interface {
	Create(ctx context.Context, actor auth.Principal, in CreateUserInput) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	Update(ctx context.Context, actor auth.Principal, id uuid.UUID, in UpdateUserInput) (*models.User, error)
	UpdateEmail(ctx context.Context, actor auth.Principal, email string) (*models.User, error)
	// EnsureUser creates the user unless the email is already registered.
	EnsureUser(ctx context.Context, email, password, role string) (created bool, err error)
}

type userService struct {
	users    repository.UserRepository
	audit    AuditSink
	validate *validator.Validate
	now      func() time.Time
}

func NewUserService(users repository.UserRepository, audit AuditSink) UserService {
	return &userService{users: users, audit: audit, validate: validator.New(), now: func() time.Time { return time.Now().UTC() }}
}

func (s *userService) Create(ctx context.Context, actor auth.Principal, in CreateUserInput) (*models.User, error) {
	in.Email = NormalizeEmail(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid user input")
	}
	taken, err := s.users.EmailTaken(ctx, in.Email, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, appErr.New(appErr.CodeConflict, "email already exists")
	}
	ph, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &models.User{Email: in.Email, PasswordHash: ph, Role: in.Role, IsActive: true}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	if !u.IsActive {
		// gorm skips zero values that have a column default
		if err := s.users.UpdateFields(ctx, u.ID, map[string]any{"is_active": false}); err != nil {
			return nil, err
		}
	}
	s.record(ctx, actor, ActionUserCreate, u.ID)
	return u, nil
}

func (s *userService) List(ctx context.Context) ([]models.User, error) {
	return s.users.List(ctx)
}

func (s *userService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.users.GetByID(ctx, id, &u); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.New(appErr.CodeNotFound, "user not found")
		}
		return nil, err
	}
	return &u, nil
}

func (s *userService) Update(ctx context.Context, actor auth.Principal, id uuid.UUID, in UpdateUserInput) (*models.User, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid user input")
	}
	fields := map[string]any{"updated_at": s.now()}
	if in.Role != nil {
		fields["role"] = *in.Role
	}
	if in.IsActive != nil {
		fields["is_active"] = *in.IsActive
	}
	if err := s.users.UpdateFields(ctx, id, fields); err != nil {
		return nil, err
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, ActionUserUpdate, u.ID)
	return u, nil
}

func (s *userService) UpdateEmail(ctx context.Context, actor auth.Principal, email string) (*models.User, error) {
	fields := map[string]any{"updated_at": s.now()}
	if email != "" {
		email = NormalizeEmail(email)
		if err := s.validate.Var(email, "email"); err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid email")
		}
		taken, err := s.users.EmailTaken(ctx, email, actor.UserID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, appErr.New(appErr.CodeConflict, "email already exists")
		}
		fields["email"] = email
	}
	if err := s.users.UpdateFields(ctx, actor.UserID, fields); err != nil {
		return nil, err
	}
	u, err := s.Get(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, ActionUserSelfUpdate, u.ID)
	return u, nil
}

func (s *userService) EnsureUser(ctx context.Context, email, password, role string) (bool, error) {
	email = NormalizeEmail(email)
	taken, err := s.users.EmailTaken(ctx, email, uuid.Nil)
	if err != nil || taken {
		return false, err
	}
	ph, err := HashPassword(password)
	if err != nil {
		return false, err
	}
	if role != models.RoleAdmin {
		role = models.RoleUser
	}
	if err := s.users.Create(ctx, &models.User{Email: email, PasswordHash: ph, Role: role, IsActive: true}); err != nil {
		return false, err
	}
	logger.Ctx(ctx).Info("seeded user", zap.String("email", email), zap.String("role", role))
	return true, nil
}

func (s *userService) record(ctx context.Context, actor auth.Principal, action string, id uuid.UUID) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditEvent{Action: action, ActorID: actor.UserID, TargetType: targetUser, TargetID: id.String()})
}
