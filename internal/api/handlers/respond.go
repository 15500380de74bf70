package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workflow-builder/engine/internal/api/middleware"
	"github.com/workflow-builder/engine/internal/api/types"
	"github.com/workflow-builder/engine/internal/auth"
	appErr "github.com/workflow-builder/engine/pkg/errors"
	"github.com/workflow-builder/engine/pkg/logger"
)

// maxBodyBytes bounds request bodies; workflow documents are the largest.
const maxBodyBytes = 4 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage lists failing fields as "field: rule".
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fe.Field()+": "+rule)
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, types.APIResponse{
		Success: true,
		Data:    data,
		Meta:    &types.Meta{RequestID: middleware.GetRequestID(r.Context())},
	})
}

// writeError maps err to its status. Internal failures are logged and
// answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := appErr.CodeOf(err)
	status := appErr.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error("request failed", zap.Error(err), zap.String("code", string(code)))
	}
	writeJSON(w, status, types.APIResponse{
		Success: false,
		Error:   types.FromAppError(err),
		Meta:    &types.Meta{RequestID: middleware.GetRequestID(r.Context())},
	})
}

func writeErrorStr(w http.ResponseWriter, r *http.Request, code appErr.Code, msg string) {
	writeError(w, r, appErr.New(code, msg))
}

// decode reads a JSON body into dst and validates it.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return appErr.New(appErr.CodeInvalid, "request body too large")
		case errors.Is(err, io.EOF):
			return appErr.New(appErr.CodeInvalid, "request body is empty")
		default:
			return appErr.Wrap(err, appErr.CodeInvalid, "invalid json")
		}
	}
	if err := validate.Struct(dst); err != nil {
		return appErr.Wrap(err, appErr.CodeInvalid, validationMessage(err))
	}
	return nil
}

func principal(r *http.Request) (auth.Principal, error) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Principal{}, appErr.New(appErr.CodeUnauthorized, "not authenticated")
	}
	return p, nil
}

// pathID parses a uuid path parameter. Malformed ids read as not found so
// they look the same as ids the caller cannot see.
func pathID(r *http.Request, name, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, appErr.Newf(appErr.CodeNotFound, "%s not found", what)
	}
	return id, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, appErr.Newf(appErr.CodeInvalid, "query parameter %s is required", name)
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, appErr.Newf(appErr.CodeInvalid, "query parameter %s must be a boolean", name)
	}
	return v, nil
}
