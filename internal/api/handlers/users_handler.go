package handlers

import (
	"net/http"

	"github.com/workflow-builder/engine/internal/api/types"
	"github.com/workflow-builder/engine/internal/services"
)

type UsersHandler struct {
	users services.UserService
}

func NewUsersHandler(users services.UserService) *UsersHandler {
	return &UsersHandler{users: users}
}

// Create godoc
// @Summary      Create a user (admin)
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      types.UserCreateRequest  true  "user"
// @Success      201   {object}  types.APIResponse{data=models.User}
// @Failure      409   {object}  types.APIResponse
// @Router       /users [post]
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.UserCreateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.Create(r.Context(), p, services.CreateUserInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		IsActive: req.IsActive,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusCreated, u)
}

// List godoc
// @Summary      List users, newest first (admin)
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  types.APIResponse{data=[]models.User}
// @Router       /users [get]
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, items)
}

// Update godoc
// @Summary      Change a user's role or active flag (admin)
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string                   true  "user id"
// @Param        body  body      types.UserUpdateRequest  true  "changes"
// @Success      200   {object}  types.APIResponse{data=models.User}
// @Failure      404   {object}  types.APIResponse
// @Router       /users/{id} [patch]
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id", "user")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.UserUpdateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.Update(r.Context(), p, id, services.UpdateUserInput{Role: req.Role, IsActive: req.IsActive})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, u)
}

// Me godoc
// @Summary      The caller's account
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  types.APIResponse{data=models.User}
// @Router       /users/me [get]
func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.Get(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, u)
}

// UpdateMe godoc
// @Summary      Change the caller's email
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      types.UserSelfUpdateRequest  true  "changes"
// @Success      200   {object}  types.APIResponse{data=models.User}
// @Failure      409   {object}  types.APIResponse
// @Router       /users/me [patch]
func (h *UsersHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.UserSelfUpdateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Email == nil {
		h.Me(w, r)
		return
	}
	u, err := h.users.UpdateEmail(r.Context(), p, *req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, u)
}
