package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/workflow-builder/engine/internal/models"
	"github.com/workflow-builder/engine/internal/repository"
	appErr "github.com/workflow-builder/engine/pkg/errors"
	"github.com/workflow-builder/engine/pkg/logger"
	"github.com/workflow-builder/engine/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ActionLogin          = "auth.login"
	ActionRefresh        = "auth.refresh"
	ActionLogout         = "auth.logout"
	ActionResetRequest   = "auth.reset.request"
	ActionResetConfirm   = "auth.reset.confirm"
	ActionPasswordChange = "auth.password.change"
	ActionRegister       = "auth.register"

	targetUser = "user"

	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
	opaqueTokenBytes = 48
)

// Session is the credential pair handed out on login and refresh.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             *models.User
}

// ResetTicket is a one-time password reset credential.
type ResetTicket struct {
	Token     string
	ExpiresAt time.Time
}

type AuthConfig struct {
	RefreshTTL time.Duration
	ResetTTL   time.Duration
}

type AuthService interface {
	Register(ctx context.Context, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	Logout(ctx context.Context, refreshToken string) error
	// RequestPasswordReset returns nil without error when no user has email.
	RequestPasswordReset(ctx context.Context, email string) (*ResetTicket, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error
	// Authenticate resolves an access token to an active user.
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
}

type authService struct {
	db     *gorm.DB
	users  repository.UserRepository
	tokens repository.TokenRepository
	issuer *TokenManager
	audit  AuditSink
	cfg    AuthConfig
	now    func() time.Time
}

func NewAuthService(db *gorm.DB, users repository.UserRepository, tokens repository.TokenRepository, issuer *TokenManager, audit AuditSink, cfg AuthConfig) AuthService {
	return &authService{
		db:     db,
		users:  users,
		tokens: tokens,
		issuer: issuer,
		audit:  audit,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ AuthService = (*authService)(nil)

// HashPassword bcrypt-hashes password, rejecting what bcrypt would truncate.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", appErr.New(appErr.CodeInvalid, "password is required")
	}
	if len(password) > maxPasswordBytes {
		return "", appErr.New(appErr.CodeInvalid, "password must be 72 bytes or fewer")
	}
	ph, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeInternal, "hash password failed")
	}
	return string(ph), nil
}

// NormalizeEmail trims and lowercases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *authService) Register(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	taken, err := s.users.EmailTaken(ctx, email, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, appErr.New(appErr.CodeConflict, "email already exists")
	}
	ph, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{Email: email, PasswordHash: ph, Role: models.RoleUser, IsActive: true}
	if err := s.users.Create(ctx, user); err != nil {
		if appErr.IsCode(err, appErr.CodeConflict) {
			return nil, appErr.New(appErr.CodeConflict, "email already exists")
		}
		return nil, err
	}
	s.record(ctx, ActionRegister, user.ID)
	return user, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*Session, error) {
	var user models.User
	if err := s.users.GetByEmail(ctx, NormalizeEmail(email), &user); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, errInvalidCredentials()
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, errInvalidCredentials()
	}
	if !user.IsActive {
		return nil, appErr.New(appErr.CodeForbidden, "user inactive")
	}

	now := s.now()
	var refresh string
	var refreshExp time.Time
	err := repository.InTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).UpdateFields(ctx, user.ID, map[string]any{"last_login_at": now}); err != nil {
			return err
		}
		var err error
		refresh, refreshExp, err = s.issueRefresh(ctx, s.tokens.WithTx(tx), user.ID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	user.LastLoginAt = &now

	access, accessExp, err := s.issuer.Issue(&user)
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info("user logged in", zap.String("user_id", user.ID.String()))
	s.record(ctx, ActionLogin, user.ID)
	return &Session{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		User:             &user,
	}, nil
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// one is issued with a fresh access token.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, appErr.New(appErr.CodeUnauthorized, "missing refresh token")
	}
	now := s.now()
	var user models.User
	var refresh string
	var refreshExp time.Time
	err := repository.InTx(ctx, s.db, func(tx *gorm.DB) error {
		tokens := s.tokens.WithTx(tx)
		var stored models.RefreshToken
		if err := tokens.GetRefresh(ctx, utils.HashToken(refreshToken), &stored); err != nil {
			if appErr.IsCode(err, appErr.CodeNotFound) {
				return appErr.New(appErr.CodeUnauthorized, "invalid refresh token")
			}
			return err
		}
		if !stored.Usable(now) {
			return appErr.New(appErr.CodeUnauthorized, "invalid refresh token")
		}
		if err := s.users.WithTx(tx).GetByID(ctx, stored.UserID, &user); err != nil {
			if appErr.IsCode(err, appErr.CodeNotFound) {
				return appErr.New(appErr.CodeUnauthorized, "user inactive")
			}
			return err
		}
		if !user.IsActive {
			return appErr.New(appErr.CodeUnauthorized, "user inactive")
		}
		if err := tokens.RevokeRefresh(ctx, stored.ID, now); err != nil {
			return err
		}
		var err error
		refresh, refreshExp, err = s.issueRefresh(ctx, tokens, user.ID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	access, accessExp, err := s.issuer.Issue(&user)
	if err != nil {
		return nil, err
	}
	s.record(ctx, ActionRefresh, user.ID)
	return &Session{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		User:             &user,
	}, nil
}

// Logout revokes refreshToken if it is still live. Unknown tokens are ignored.
func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	var stored models.RefreshToken
	if err := s.tokens.GetRefresh(ctx, utils.HashToken(refreshToken), &stored); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil
		}
		return err
	}
	if stored.RevokedAt != nil {
		return nil
	}
	if err := s.tokens.RevokeRefresh(ctx, stored.ID, s.now()); err != nil {
		return err
	}
	s.record(ctx, ActionLogout, stored.UserID)
	return nil
}

func (s *authService) RequestPasswordReset(ctx context.Context, email string) (*ResetTicket, error) {
	var user models.User
	if err := s.users.GetByEmail(ctx, NormalizeEmail(email), &user); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	token, err := utils.RandomToken(opaqueTokenBytes)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "generate reset token failed")
	}
	now := s.now()
	ticket := &ResetTicket{Token: token, ExpiresAt: now.Add(s.cfg.ResetTTL)}
	if err := s.tokens.CreateReset(ctx, &models.PasswordResetToken{
		TokenHash: utils.HashToken(token),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: ticket.ExpiresAt,
	}); err != nil {
		return nil, err
	}
	s.record(ctx, ActionResetRequest, user.ID)
	return ticket, nil
}

func (s *authService) ResetPassword(ctx context.Context, token, newPassword string) error {
	ph, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	now := s.now()
	var userID uuid.UUID
	err = repository.InTx(ctx, s.db, func(tx *gorm.DB) error {
		tokens := s.tokens.WithTx(tx)
		var stored models.PasswordResetToken
		if err := tokens.GetReset(ctx, utils.HashToken(token), &stored); err != nil {
			if appErr.IsCode(err, appErr.CodeNotFound) {
				return errInvalidResetToken()
			}
			return err
		}
		if !stored.Usable(now) {
			return errInvalidResetToken()
		}
		if err := tokens.MarkResetUsed(ctx, stored.ID, now); err != nil {
			if appErr.IsCode(err, appErr.CodeInvalid) {
				return errInvalidResetToken()
			}
			return err
		}
		if err := s.users.WithTx(tx).UpdateFields(ctx, stored.UserID, map[string]any{"password_hash": ph}); err != nil {
			if appErr.IsCode(err, appErr.CodeNotFound) {
				return appErr.New(appErr.CodeInvalid, "invalid token")
			}
			return err
		}
		userID = stored.UserID
		// a reset ends every existing session
		return tokens.RevokeAllRefresh(ctx, stored.UserID, now)
	})
	if err != nil {
		return err
	}
	s.record(ctx, ActionResetConfirm, userID)
	return nil
}

func (s *authService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	var user models.User
	if err := s.users.GetByID(ctx, userID, &user); err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return appErr.New(appErr.CodeInvalid, "current password invalid")
	}
	ph, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdateFields(ctx, user.ID, map[string]any{"password_hash": ph}); err != nil {
		return err
	}
	s.record(ctx, ActionPasswordChange, user.ID)
	return nil
}

func (s *authService) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	id, err := s.issuer.Verify(accessToken)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := s.users.GetByID(ctx, id, &user); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.New(appErr.CodeUnauthorized, "could not validate credentials")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, appErr.New(appErr.CodeUnauthorized, "could not validate credentials")
	}
	return &user, nil
}

func (s *authService) issueRefresh(ctx context.Context, tokens repository.TokenRepository, userID uuid.UUID, now time.Time) (string, time.Time, error) {
	token, err := utils.RandomToken(opaqueTokenBytes)
	if err != nil {
		return "", time.Time{}, appErr.Wrap(err, appErr.CodeInternal, "generate refresh token failed")
	}
	exp := now.Add(s.cfg.RefreshTTL)
	if err := tokens.CreateRefresh(ctx, &models.RefreshToken{
		TokenHash: utils.HashToken(token),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: exp,
	}); err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

func (s *authService) record(ctx context.Context, action string, userID uuid.UUID) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditEvent{Action: action, ActorID: userID, TargetType: targetUser, TargetID: userID.String()})
}

func errInvalidCredentials() error {
	return appErr.New(appErr.CodeUnauthorized, "invalid credentials")
}

func errInvalidResetToken() error {
	return appErr.New(appErr.CodeInvalid, "invalid or expired token")
}
