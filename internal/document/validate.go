package document

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	appErr "github.com/workflow-builder/engine/pkg/errors"
)

//go:embed workflow.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("nodetype", func(fl validator.FieldLevel) bool {
		return NodeType(fl.Field().String()).Valid()
	})
	return v
}

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

// ParseJSON checks raw against the WorkflowData schema, decodes it and
// runs the structural checks of Validate. Failures are CodeInvalid.
func ParseJSON(raw []byte) (*WorkflowData, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "workflow schema failed to compile")
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "workflow data is not valid JSON")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, appErr.New(appErr.CodeInvalid, "workflow data does not match schema").
			WithMeta("errors", msgs)
	}

	var w WorkflowData
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "decode workflow data")
	}
	if err := Validate(&w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Validate enforces the document rules that hold for every stored graph:
// required fields, known node types, finite positions, and ids unique
// within their collection.
func Validate(w *WorkflowData) error {
	if w == nil {
		return appErr.New(appErr.CodeInvalid, "workflow data is required")
	}
	if err := validate.Struct(w); err != nil {
		return appErr.Wrap(err, appErr.CodeInvalid, "workflow data is invalid")
	}

	var problems []string
	nodeIDs := make(map[string]struct{}, len(w.Nodes))
	for i, n := range w.Nodes {
		if _, dup := nodeIDs[n.ID]; dup {
			problems = append(problems, fmt.Sprintf("nodes[%d]: duplicate id %q", i, n.ID))
		}
		nodeIDs[n.ID] = struct{}{}
		if !finite(n.Position.X) || !finite(n.Position.Y) {
			problems = append(problems, fmt.Sprintf("nodes[%d]: position is not finite", i))
		}
	}
	edgeIDs := make(map[string]struct{}, len(w.Edges))
	for i, e := range w.Edges {
		if _, dup := edgeIDs[e.ID]; dup {
			problems = append(problems, fmt.Sprintf("edges[%d]: duplicate id %q", i, e.ID))
		}
		edgeIDs[e.ID] = struct{}{}
	}
	if len(problems) > 0 {
		return appErr.New(appErr.CodeInvalid, "workflow data is invalid: "+strings.Join(problems, "; ")).
			WithMeta("errors", problems)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
