package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workflow-builder/engine/internal/api/middleware"
	"github.com/workflow-builder/engine/internal/api/types"
	"github.com/workflow-builder/engine/internal/auth"
	"github.com/workflow-builder/engine/internal/document"
	"github.com/workflow-builder/engine/internal/generation"
	"github.com/workflow-builder/engine/internal/services"
	appErr "github.com/workflow-builder/engine/pkg/errors"
	"github.com/workflow-builder/engine/pkg/logger"
)

type WorkflowsHandler struct {
	workflows  services.WorkflowService
	generation services.GenerationService
}

func NewWorkflowsHandler(workflows services.WorkflowService, generation services.GenerationService) *WorkflowsHandler {
	return &WorkflowsHandler{workflows: workflows, generation: generation}
}

// Create godoc
// @Summary      Create a workflow
// @Tags         workflows
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      types.WorkflowCreateRequest  true  "workflow"
// @Success      201   {object}  types.APIResponse{data=types.WorkflowResponse}
// @Failure      400   {object}  types.APIResponse
// @Router       /workflows [post]
func (h *WorkflowsHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.WorkflowCreateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	wf, err := h.workflows.Create(r.Context(), p, services.CreateWorkflowInput{
		Name:        req.Name,
		Description: req.Description,
		IsTemplate:  req.IsTemplate,
		Data:        req.Data,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusCreated, types.NewWorkflowResponse(wf))
}

// List godoc
// @Summary      List visible workflows, most recently updated first
// @Tags         workflows
// @Produce      json
// @Security     BearerAuth
// @Param        templates  query     string  false  "only or exclude"
// @Param        page       query     int     false  "page (1-based)"
// @Param        page_size  query     int     false  "page size (default 20, max 100)"
// @Success      200        {object}  types.APIResponse{data=[]types.WorkflowResponse}
// @Router       /workflows [get]
func (h *WorkflowsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter := services.TemplateFilter(r.URL.Query().Get("templates"))
	items, err := h.workflows.List(r.Context(), p, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := types.NewWorkflowList(items)

	q := r.URL.Query()
	if q.Get("page") == "" && q.Get("page_size") == "" {
		writeOK(w, r, http.StatusOK, out)
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	start := (page - 1) * size
	end := start + size
	if start > len(out) {
		start = len(out)
	}
	if end > len(out) {
		end = len(out)
	}
	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data:    out[start:end],
		Meta:    &types.Meta{Page: page, PageSize: size, Total: int64(len(out))},
	})
}

// Get godoc
// @Summary      Get a workflow
// @Tags         workflows
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "workflow id"
// @Success      200  {object}  types.APIResponse{data=types.WorkflowResponse}
// @Failure      404  {object}  types.APIResponse
// @Router       /workflows/{id} [get]
func (h *WorkflowsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.target(w, r)
	if !ok {
		return
	}
	wf, err := h.workflows.Get(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, types.NewWorkflowResponse(wf))
}

// Update godoc
// @Summary      Update metadata and/or the document
// @Description  A document in data creates a new version; metadata alone does not.
// @Tags         workflows
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string                       true  "workflow id"
// @Param        body  body      types.WorkflowUpdateRequest  true  "changes"
// @Success      200   {object}  types.APIResponse{data=types.WorkflowResponse}
// @Failure      400   {object}  types.APIResponse
// @Failure      404   {object}  types.APIResponse
// @Failure      409   {object}  types.APIResponse
// @Router       /workflows/{id} [patch]
func (h *WorkflowsHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req types.WorkflowUpdateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	wf, err := h.workflows.Update(r.Context(), p, id, services.UpdateWorkflowInput{
		Name:        req.Name,
		Description: req.Description,
		IsTemplate:  req.IsTemplate,
		Data:        req.Data,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, types.NewWorkflowResponse(wf))
}

// SetTemplate godoc
// @Summary      Mark or unmark a workflow as a template (admin)
// @Tags         workflows
// @Produce      json
// @Security     BearerAuth
// @Param        id           path      string  true  "workflow id"
// @Param        is_template  query     bool    true  "template flag"
// @Success      200          {object}  types.APIResponse{data=types.WorkflowResponse}
// @Failure      403          {object}  types.APIResponse
// @Router       /workflows/{id}/template [post]
func (h *WorkflowsHandler) SetTemplate(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.target(w, r)
	if !ok {
		return
	}
	flag, err := queryBool(r, "is_template")
	if err != nil {
		writeError(w, r, err)
		return
	}
	wf, err := h.workflows.SetTemplate(r.Context(), p, id, flag)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, types.NewWorkflowResponse(wf))
}

// Delete godoc
// @Summary      Delete a workflow and its history
// @Tags         workflows
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "workflow id"
// @Success      200  {object}  types.APIResponse
// @Failure      404  {object}  types.APIResponse
// @Router       /workflows/{id} [delete]
func (h *WorkflowsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.workflows.Delete(r.Context(), p, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, map[string]bool{"ok": true})
}

// Duplicate godoc
// @Summary      Copy a workflow into the caller's account
// @Tags         workflows
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "workflow id"
// @Success      201  {object}  types.APIResponse{data=types.WorkflowResponse}
// @Failure      404  {object}  types.APIResponse
// @Router       /workflows/{id}/duplicate [post]
func (h *WorkflowsHandler) Duplicate(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.target(w, r)
	if !ok {
		return
	}
	wf, err := h.workflows.Duplicate(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusCreated, types.NewWorkflowResponse(wf))
}

// Export godoc
// @Summary      Export a workflow envelope
// @Tags         workflows
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "workflow id"
// @Success      200  {object}  types.APIResponse{data=document.ExportEnvelope}
// @Failure      404  {object}  types.APIResponse
// @Router       /workflows/{id}/export [post]
func (h *WorkflowsHandler) Export(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.target(w, r)
	if !ok {
		return
	}
	env, err := h.workflows.Export(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, env)
}

// Import godoc
// @Summary      Import an exported envelope as a new workflow
// @Tags         workflows
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      document.ExportEnvelope  true  "envelope"
// @Success      201   {object}  types.APIResponse{data=types.WorkflowResponse}
// @Failure      400   {object}  types.APIResponse
// @Router       /workflows/import [post]
func (h *WorkflowsHandler) Import(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var env document.ExportEnvelope
	if err := decode(w, r, &env); err != nil {
		writeError(w, r, err)
		return
	}
	wf, err := h.workflows.Import(r.Context(), p, env)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusCreated, types.NewWorkflowResponse(wf))
}

// Versions godoc
// @Summary      List a workflow's version history
// @Tags         workflows
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "workflow id"
// @Success      200  {object}  types.APIResponse{data=[]types.WorkflowVersionResponse}
// @Failure      404  {object}  types.APIResponse
// @Router       /workflows/{id}/versions [get]
func (h *WorkflowsHandler) Versions(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.target(w, r)
	if !ok {
		return
	}
	items, err := h.workflows.ListVersions(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]types.WorkflowVersionResponse, 0, len(items))
	for i := range items {
		out = append(out, types.NewVersionResponse(&items[i], false))
	}
	writeOK(w, r, http.StatusOK, out)
}

// Version godoc
// @Summary      Get one snapshot of a workflow
// @Tags         workflows
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string  true  "workflow id"
// @Param        version  path      int     true  "version number"
// @Success      200      {object}  types.APIResponse{data=types.WorkflowVersionResponse}
// @Failure      404      {object}  types.APIResponse
// @Router       /workflows/{id}/versions/{version} [get]
func (h *WorkflowsHandler) Version(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.target(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || n < 1 {
		writeErrorStr(w, r, appErr.CodeNotFound, "workflow version not found")
		return
	}
	v, err := h.workflows.GetVersion(r.Context(), p, id, n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, types.NewVersionResponse(v, true))
}

// Generate godoc
// @Summary      Draft a workflow from a description
// @Description  The draft is returned, not stored. Provider failures answer "Generation failed".
// @Tags         workflows
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      types.GenerateRequest  true  "description"
// @Success      200   {object}  types.APIResponse{data=types.GenerateResponse}
// @Failure      400   {object}  types.APIResponse
// @Failure      502   {object}  types.APIResponse
// @Router       /workflows/generate [post]
func (h *WorkflowsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.GenerateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	wf, err := h.generation.Generate(r.Context(), p, generation.Request{
		Description: req.Description,
		Mode:        generation.Mode(req.Mode),
		Existing:    req.ExistingWorkflow,
		Name:        req.Name,
	})
	if err != nil {
		code := appErr.CodeOf(err)
		if code == appErr.CodeInvalid {
			writeError(w, r, err)
			return
		}
		logger.Ctx(r.Context()).Error("workflow generation failed", zap.Error(err), zap.String("code", string(code)))
		writeJSON(w, appErr.HTTPStatus(code), types.APIResponse{
			Success: false,
			Error:   &types.APIError{Code: string(code), Message: types.GenerationFailedMessage},
			Meta:    &types.Meta{RequestID: middleware.GetRequestID(r.Context())},
		})
		return
	}
	writeOK(w, r, http.StatusOK, types.GenerateResponse{Workflow: wf})
}

// target resolves the caller and the {id} path parameter.
func (h *WorkflowsHandler) target(w http.ResponseWriter, r *http.Request) (p auth.Principal, id uuid.UUID, ok bool) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return p, id, false
	}
	id, err = pathID(r, "id", "workflow")
	if err != nil {
		writeError(w, r, err)
		return p, id, false
	}
	return p, id, true
}
