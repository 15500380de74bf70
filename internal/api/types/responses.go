package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/workflow-builder/engine/internal/document"
	"github.com/workflow-builder/engine/internal/models"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type Meta struct {
	RequestID string `json:"request_id,omitempty"`
	Page      int    `json:"page,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
	Total     int64  `json:"total,omitempty"`
}

// WorkflowResponse is a workflow with its stored document inlined.
type WorkflowResponse struct {
	ID          uuid.UUID       `json:"id"`
	OwnerID     uuid.UUID       `json:"owner_id"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	IsTemplate  bool            `json:"is_template"`
	Version     int             `json:"version"`
	Data        json.RawMessage `json:"data" swaggertype:"object"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func NewWorkflowResponse(w *models.Workflow) WorkflowResponse {
	return WorkflowResponse{
		ID:          w.ID,
		OwnerID:     w.OwnerID,
		Name:        w.Name,
		Description: w.Description,
		IsTemplate:  w.IsTemplate,
		Version:     w.Version,
		Data:        json.RawMessage(w.Data),
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

func NewWorkflowList(items []models.Workflow) []WorkflowResponse {
	out := make([]WorkflowResponse, 0, len(items))
	for i := range items {
		out = append(out, NewWorkflowResponse(&items[i]))
	}
	return out
}

type WorkflowVersionResponse struct {
	WorkflowID uuid.UUID       `json:"workflow_id"`
	Version    int             `json:"version"`
	Data       json.RawMessage `json:"data,omitempty" swaggertype:"object"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewVersionResponse inlines the snapshot document only when withData is set;
// history listings stay light.
func NewVersionResponse(v *models.WorkflowVersion, withData bool) WorkflowVersionResponse {
	out := WorkflowVersionResponse{WorkflowID: v.WorkflowID, Version: v.Version, CreatedAt: v.CreatedAt}
	if withData {
		out.Data = json.RawMessage(v.Data)
	}
	return out
}

type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user,omitempty"`
}

type ResetTicketResponse struct {
	OK        bool       `json:"ok"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type GenerateResponse struct {
	Workflow *document.WorkflowData `json:"workflow"`
}
