package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/workflow-builder/engine/internal/auth"
	"github.com/workflow-builder/engine/internal/models"
	appErr "github.com/workflow-builder/engine/pkg/errors"
	"github.com/workflow-builder/engine/pkg/logger"
)

// Authenticator resolves an access token to an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
}

// Auth validates a Bearer access token and stores the caller as an
// auth.Principal in the request context.
func Auth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ah := r.Header.Get("Authorization")
			if len(ah) < len("Bearer ") || !strings.EqualFold(ah[:len("Bearer ")], "bearer ") {
				deny(w, appErr.CodeUnauthorized, "missing bearer token")
				return
			}
			tokenStr := strings.TrimSpace(ah[len("Bearer "):])
			u, err := authn.Authenticate(r.Context(), tokenStr)
			if err != nil {
				code := appErr.CodeOf(err)
				if code != appErr.CodeForbidden {
					code = appErr.CodeUnauthorized
				}
				logger.Ctx(r.Context()).Debug("authentication failed", zap.Error(err))
				deny(w, code, "could not validate credentials")
				return
			}
			ctx := auth.WithPrincipal(r.Context(), auth.Principal{UserID: u.ID, Role: u.Role})
			ctx = logger.With(ctx, zap.String("user_id", u.ID.String()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers without the admin role. It must run after Auth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.FromContext(r.Context())
		if !ok {
			deny(w, appErr.CodeUnauthorized, "not authenticated")
			return
		}
		if !p.IsAdmin() {
			deny(w, appErr.CodeForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
