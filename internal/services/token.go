package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/workflow-builder/engine/internal/models"
	appErr "github.com/workflow-builder/engine/pkg/errors"
)

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 access tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs an access token for u.
func (m *TokenManager) Issue(u *models.User) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := AccessClaims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, appErr.Wrap(err, appErr.CodeInternal, "sign token failed")
	}
	return signed, exp, nil
}

// Verify checks the signature and expiry of token and returns its subject.
func (m *TokenManager) Verify(token string) (uuid.UUID, error) {
	var claims AccessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, appErr.Wrap(err, appErr.CodeUnauthorized, "token expired")
		}
		return uuid.Nil, appErr.Wrap(err, appErr.CodeUnauthorized, "could not validate credentials")
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, appErr.Wrap(err, appErr.CodeUnauthorized, "could not validate credentials")
	}
	return id, nil
}
