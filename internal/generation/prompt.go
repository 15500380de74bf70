package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/workflow-builder/engine/internal/document"
)

// Mode says whether a generated graph replaces the editor contents or
// extends an existing workflow.
type Mode string

const (
	ModeReplace Mode = "replace"
	ModeAppend  Mode = "append"
)

func (m Mode) Valid() bool { return m == ModeReplace || m == ModeAppend }

func systemPrompt() string {
	types := make([]string, 0, len(document.NodeTypes))
	for _, t := range document.NodeTypes {
		types = append(types, string(t))
	}
	return "Return ONLY a JSON object with keys: id, name, updatedAt, nodes, edges.\n" +
		"Use valid node types only: " + strings.Join(types, ", ") + ".\n" +
		"Each node must be: { id, type, position: {x,y}, data: {label, description?, status, color?, ...} }.\n" +
		"Each edge must be: { id, source, target, sourceHandle? }.\n" +
		"Always include at least one start-type node and one end-type node."
}

func userPrompt(req Request) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Description: %s\n", req.Description)
	fmt.Fprintf(&b, "Mode: %s.\n", req.Mode)
	b.WriteString("Use status 'Ready' for node data status field.\n")
	b.WriteString("Provide ids like node_1, node_2 and edge_1, edge_2.")

	if req.Mode == ModeAppend && req.Existing != nil {
		existing, err := json.Marshal(req.Existing)
		if err != nil {
			return "", fmt.Errorf("encode existing workflow: %w", err)
		}
		fmt.Fprintf(&b, "\nExisting workflow JSON follows. Append new nodes to the right (offset x by +%d). ", document.AppendOffset)
		b.WriteString("Preserve existing nodes/edges and connect the last reachable end to the new start when possible.\n")
		fmt.Fprintf(&b, "Existing: %s", existing)
	}
	return b.String(), nil
}
