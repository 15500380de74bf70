package services

import (
	"context"

	"github.com/workflow-builder/engine/internal/auth"
	"github.com/workflow-builder/engine/internal/document"
	"github.com/workflow-builder/engine/internal/generation"
)

// GenerationService drafts workflows for a caller and audits each draft.
// Drafts are returned, never stored.
type GenerationService interface {
	Generate(ctx context.Context, p auth.Principal, req generation.Request) (*document.WorkflowData, error)
}

type generationService struct {
	generator generation.Generator
	audit     AuditSink
}

func NewGenerationService(generator generation.Generator, audit AuditSink) GenerationService {
	return &generationService{generator: generator, audit: audit}
}

func (s *generationService) Generate(ctx context.Context, p auth.Principal, req generation.Request) (*document.WorkflowData, error) {
	w, err := s.generator.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		mode := req.Mode
		if mode == "" {
			mode = generation.ModeReplace
		}
		s.audit.Record(ctx, AuditEvent{
			Action:     ActionWorkflowGenerate,
			ActorID:    p.UserID,
			TargetType: targetWorkflow,
			TargetID:   w.ID,
			Meta:       map[string]any{"mode": string(mode), "nodes": len(w.Nodes), "edges": len(w.Edges)},
		})
	}
	return w, nil
}
