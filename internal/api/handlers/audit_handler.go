package handlers

import (
	"net/http"
	"strconv"

	"github.com/workflow-builder/engine/internal/services"
	appErr "github.com/workflow-builder/engine/pkg/errors"
)

type AuditHandler struct {
	audit services.AuditService
}

func NewAuditHandler(audit services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List godoc
// @Summary      Recent audit events, newest first (admin)
// @Tags         audit
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query     int  false  "max entries (default 100)"
// @Success      200    {object}  types.APIResponse{data=[]models.AuditLog}
// @Router       /audit [get]
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeErrorStr(w, r, appErr.CodeInvalid, "limit must be an integer")
			return
		}
		limit = n
	}
	items, err := h.audit.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, items)
}
