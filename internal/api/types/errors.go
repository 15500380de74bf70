package types

import (
	"errors"

	appErr "github.com/workflow-builder/engine/pkg/errors"
)

// GenerationFailedMessage replaces provider and internal detail on the
// generate endpoint.
const GenerationFailedMessage = "Generation failed"

func FromAppError(err error) *APIError {
	if err == nil {
		return nil
	}
	var e *appErr.AppError
	if !errors.As(err, &e) || e.Code == appErr.CodeUnknown || e.Code == appErr.CodeInternal {
		// internal detail stays in the logs
		return &APIError{Code: string(appErr.CodeInternal), Message: "internal error"}
	}
	return &APIError{Code: string(e.Code), Message: e.Message}
}
