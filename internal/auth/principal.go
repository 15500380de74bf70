// Package auth holds the identity resolved for a request and the
// visibility rule applied to owned resources.
package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/workflow-builder/engine/internal/models"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   string
}

func (p Principal) IsAdmin() bool { return p.Role == models.RoleAdmin }

// CanAccess reports whether p may see or manage a resource owned by ownerID:
// owners always can, admins can for any owner.
func CanAccess(p Principal, ownerID uuid.UUID) bool {
	if p.UserID == uuid.Nil {
		return false
	}
	return p.IsAdmin() || p.UserID == ownerID
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
