package generation

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/workflow-builder/engine/internal/document"
	"github.com/workflow-builder/engine/internal/llm"
	appErr "github.com/workflow-builder/engine/pkg/errors"
	"github.com/workflow-builder/engine/pkg/logger"
	"github.com/workflow-builder/engine/pkg/telemetry"
)

// Request is what the editor submits to draft or extend a workflow.
type Request struct {
	Description string                 `json:"description" validate:"required,min=3"`
	Mode        Mode                   `json:"mode" validate:"omitempty,oneof=replace append"`
	Existing    *document.WorkflowData `json:"existing_workflow,omitempty" validate:"-"`
	Name        string                 `json:"name,omitempty"`
}

// Generator drafts workflow documents from descriptions.
type Generator interface {
	Generate(ctx context.Context, req Request) (*document.WorkflowData, error)
}

type generator struct {
	completer llm.Completer
	validate  *validator.Validate
}

var _ Generator = (*generator)(nil)

func NewGenerator(completer llm.Completer) Generator {
	return &generator{
		completer: completer,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (g *generator) Generate(ctx context.Context, req Request) (*document.WorkflowData, error) {
	if req.Mode == "" {
		req.Mode = ModeReplace
	}
	if err := g.validate.Struct(req); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid generate request")
	}
	if req.Mode == ModeAppend && req.Existing != nil {
		if err := document.Validate(req.Existing); err != nil {
			return nil, err
		}
	}
	if c, ok := g.completer.(interface{ Configured() bool }); ok && !c.Configured() {
		return nil, appErr.New(appErr.CodeInvalid, llm.ErrNotConfigured.Error())
	}

	ctx, span := telemetry.StartSpan(ctx, "generation.Generate",
		attribute.String(telemetry.WorkflowModeKey, string(req.Mode)))
	defer span.End()

	log := logger.Ctx(ctx)
	log.Info("generating workflow", zap.String("mode", string(req.Mode)), zap.Int("description_len", len(req.Description)))

	user, err := userPrompt(req)
	if err != nil {
		telemetry.SetError(span, err)
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "existing workflow cannot be encoded")
	}

	text, err := g.completer.Complete(ctx, systemPrompt(), user, llm.FormatJSONObject)
	if err != nil {
		telemetry.SetError(span, err)
		log.Error("completion failed", zap.Error(err))
		return nil, err
	}

	raw, err := parseObject(text)
	if err != nil {
		telemetry.SetError(span, err)
		log.Error("completion output is not a JSON object", zap.Error(err), zap.Int("output_len", len(text)))
		return nil, err
	}

	w, err := Repair(raw, req.Name)
	if err != nil {
		telemetry.SetError(span, err)
		log.Error("repair failed", zap.Error(err))
		return nil, err
	}

	if req.Mode == ModeAppend && req.Existing != nil {
		document.AppendLayout(req.Existing, w.Nodes)
	}

	if report, err := document.Analyze(w); err != nil {
		log.Warn("graph analysis failed", zap.Error(err))
	} else if !report.Clean() {
		log.Info("generated workflow has structural gaps",
			zap.Strings("unreachable", report.Unreachable),
			zap.Strings("dangling_edges", report.DanglingEdges))
	}

	span.SetAttributes(
		attribute.Int(telemetry.NodeCountKey, len(w.Nodes)),
		attribute.Int(telemetry.EdgeCountKey, len(w.Edges)),
	)
	log.Info("workflow generated", zap.Int("nodes", len(w.Nodes)), zap.Int("edges", len(w.Edges)))
	return w, nil
}

// parseObject decodes the model output, tolerating a fenced code block.
func parseObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeMalformedOutput, "completion output is not valid JSON")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, appErr.Newf(appErr.CodeMalformedOutput, "completion output is %T, want an object", v)
	}
	return obj, nil
}
