package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/workflow-builder/engine/internal/api/types"
	appErr "github.com/workflow-builder/engine/pkg/errors"
)

func deny(w http.ResponseWriter, code appErr.Code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus(code))
	_ = json.NewEncoder(w).Encode(types.APIResponse{
		Success: false,
		Error:   &types.APIError{Code: string(code), Message: msg},
	})
}
