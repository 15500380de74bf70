package types

import (
	"encoding/json"

	"github.com/workflow-builder/engine/internal/document"
)

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetConfirm struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type UserCreateRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
	IsActive *bool  `json:"is_active"`
}

type UserUpdateRequest struct {
	Role     *string `json:"role" validate:"omitempty,oneof=user admin"`
	IsActive *bool   `json:"is_active"`
}

type UserSelfUpdateRequest struct {
	Email *string `json:"email" validate:"omitempty,email"`
}

type WorkflowCreateRequest struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Description *string         `json:"description"`
	IsTemplate  bool            `json:"is_template"`
	Data        json.RawMessage `json:"data" validate:"required" swaggertype:"object"`
}

type WorkflowUpdateRequest struct {
	Name        *string         `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string         `json:"description"`
	IsTemplate  *bool           `json:"is_template"`
	Data        json.RawMessage `json:"data,omitempty" swaggertype:"object"`
}

type GenerateRequest struct {
	Description      string                 `json:"description" validate:"required,min=3"`
	Mode             string                 `json:"mode" validate:"omitempty,oneof=replace append"`
	ExistingWorkflow *document.WorkflowData `json:"existing_workflow,omitempty" validate:"-"`
	Name             string                 `json:"name,omitempty"`
}
