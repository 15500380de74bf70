package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/workflow-builder/engine/internal/api/types"
	"github.com/workflow-builder/engine/internal/services"
)

// RefreshCookieName carries the opaque refresh token.
const RefreshCookieName = "refresh_token"

// CookieConfig controls the refresh cookie attributes.
type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
}

// ParseSameSite maps lax, strict or none onto http.SameSite. Unknown values
// fall back to lax.
func ParseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

type AuthHandler struct {
	auth   services.AuthService
	cookie CookieConfig
}

func NewAuthHandler(auth services.AuthService, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{auth: auth, cookie: cookie}
}

// Register godoc
// @Summary      Register a user account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      types.RegisterRequest  true  "credentials"
// @Success      201   {object}  types.APIResponse{data=models.User}
// @Failure      400   {object}  types.APIResponse
// @Failure      409   {object}  types.APIResponse
// @Router       /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusCreated, u)
}

// Login godoc
// @Summary      Log in
// @Description  Returns an access token and sets the refresh cookie.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      types.LoginRequest  true  "credentials"
// @Success      200   {object}  types.APIResponse{data=types.TokenResponse}
// @Failure      401   {object}  types.APIResponse
// @Failure      403   {object}  types.APIResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.setRefreshCookie(w, sess.RefreshToken, sess.RefreshExpiresAt)
	writeOK(w, r, http.StatusOK, tokenResponse(sess))
}

// Refresh godoc
// @Summary      Rotate the refresh cookie and issue a new access token
// @Tags         auth
// @Produce      json
// @Success      200  {object}  types.APIResponse{data=types.TokenResponse}
// @Failure      401  {object}  types.APIResponse
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	sess, err := h.auth.Refresh(r.Context(), refreshCookie(r))
	if err != nil {
		h.clearRefreshCookie(w)
		writeError(w, r, err)
		return
	}
	h.setRefreshCookie(w, sess.RefreshToken, sess.RefreshExpiresAt)
	writeOK(w, r, http.StatusOK, tokenResponse(sess))
}

// Logout godoc
// @Summary      Revoke the refresh cookie
// @Tags         auth
// @Produce      json
// @Success      200  {object}  types.APIResponse
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), refreshCookie(r)); err != nil {
		writeError(w, r, err)
		return
	}
	h.clearRefreshCookie(w)
	writeOK(w, r, http.StatusOK, map[string]bool{"ok": true})
}

// RequestReset godoc
// @Summary      Request a password reset token
// @Description  Always succeeds; the token is only returned when the account exists.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      types.PasswordResetRequest  true  "account"
// @Success      200   {object}  types.APIResponse{data=types.ResetTicketResponse}
// @Router       /auth/request-reset [post]
func (h *AuthHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req types.PasswordResetRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ticket, err := h.auth.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := types.ResetTicketResponse{OK: true}
	if ticket != nil {
		resp.Token = ticket.Token
		resp.ExpiresAt = &ticket.ExpiresAt
	}
	writeOK(w, r, http.StatusOK, resp)
}

// Reset godoc
// @Summary      Set a new password with a reset token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      types.PasswordResetConfirm  true  "token and password"
// @Success      200   {object}  types.APIResponse
// @Failure      400   {object}  types.APIResponse
// @Router       /auth/reset [post]
func (h *AuthHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req types.PasswordResetConfirm
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, map[string]bool{"ok": true})
}

// ChangePassword godoc
// @Summary      Change the caller's password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      types.PasswordChangeRequest  true  "passwords"
// @Success      200   {object}  types.APIResponse
// @Failure      400   {object}  types.APIResponse
// @Router       /auth/change-password [post]
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.PasswordChangeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.auth.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, map[string]bool{"ok": true})
}

func tokenResponse(s *services.Session) types.TokenResponse {
	return types.TokenResponse{
		AccessToken: s.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   s.AccessExpiresAt,
		User:        s.User,
	}
}

func refreshCookie(r *http.Request) string {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: h.cookie.SameSite,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: h.cookie.SameSite,
	})
}
