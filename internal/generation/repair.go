// Package generation turns a natural-language description into a workflow
// document: it prompts a completion model and repairs whatever it returns
// into a connected, laid-out graph.
package generation

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/workflow-builder/engine/internal/document"
	appErr "github.com/workflow-builder/engine/pkg/errors"
)

const (
	DefaultWorkflowID   = "wf_generated"
	DefaultWorkflowName = "Generated Workflow"
	DefaultNodeStatus   = "Ready"

	StartNodeID = "node_start"
	EndNodeID   = "node_end"
	StartEdgeID = "edge_start_1"
	EndEdgeID   = "edge_end_1"
)

// Repair fills in whatever the model left out of raw and returns a
// document with a start node, an end node, an incoming edge for every
// node after the first, and grid positions. Content that is present is
// kept; only positions are always recomputed.
func Repair(raw map[string]any, fallbackName string) (*document.WorkflowData, error) {
	return RepairAt(raw, fallbackName, time.Now())
}

// RepairAt is Repair with a fixed clock.
func RepairAt(raw map[string]any, fallbackName string, now time.Time) (*document.WorkflowData, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	applyTopLevelDefaults(raw, fallbackName, now)

	nodes, err := objectList(raw, "nodes")
	if err != nil {
		return nil, err
	}
	edges, err := objectList(raw, "edges")
	if err != nil {
		return nil, err
	}

	renameRepeats(nodes)
	renameRepeats(edges)
	defaultNodes(nodes)
	defaultEdges(edges)
	nodes, edges = ensureStart(nodes, edges)
	nodes, edges = ensureEnd(nodes, edges)
	edges = connect(nodes, edges)

	// Positions are recomputed on the decoded document, so whatever the
	// model put there must not be able to fail the decode.
	for _, n := range nodes {
		delete(n, "position")
	}
	raw["nodes"] = nodes
	raw["edges"] = edges

	w, err := decode(raw)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "repaired workflow could not be decoded")
	}
	document.GridLayout(w.Nodes)
	if err := document.Validate(w); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "repaired workflow failed validation")
	}
	return w, nil
}

func applyTopLevelDefaults(raw map[string]any, fallbackName string, now time.Time) {
	if absent(raw, "id") {
		raw["id"] = DefaultWorkflowID
	}
	if absent(raw, "name") {
		if fallbackName != "" {
			raw["name"] = fallbackName
		} else {
			raw["name"] = DefaultWorkflowName
		}
	}
	if absent(raw, "updatedAt") {
		raw["updatedAt"] = document.Timestamp(now)
	}
}

// defaultNodes fills id, position and data of each node, 1-indexed.
func defaultNodes(nodes []map[string]any) {
	taken := presentIDs(nodes)
	for i, n := range nodes {
		idx := i + 1
		if absent(n, "id") {
			n["id"] = uniqueID(fmt.Sprintf("node_%d", idx), taken)
		}
		if absent(n, "position") {
			n["position"] = position(idx)
		}
		if absent(n, "data") {
			label := "Node"
			if t, ok := n["type"].(string); ok && t != "" {
				label = t
			}
			n["data"] = map[string]any{"label": label, "status": DefaultNodeStatus}
		}
	}
}

func defaultEdges(edges []map[string]any) {
	taken := presentIDs(edges)
	for i, e := range edges {
		if absent(e, "id") {
			e["id"] = uniqueID(fmt.Sprintf("edge_%d", i+1), taken)
		}
	}
}

func presentIDs(items []map[string]any) map[string]bool {
	taken := make(map[string]bool, len(items))
	for _, m := range items {
		if !absent(m, "id") {
			taken[idOf(m)] = true
		}
	}
	return taken
}

// renameRepeats gives every repeat of an id already used earlier in items a
// fresh suffixed id. Edges naming the id keep pointing at its first holder.
func renameRepeats(items []map[string]any) {
	taken := presentIDs(items)
	seen := make(map[string]bool, len(items))
	for _, m := range items {
		if absent(m, "id") {
			continue
		}
		id := idOf(m)
		if seen[id] {
			m["id"] = uniqueID(id, taken)
			continue
		}
		seen[id] = true
	}
}

// uniqueID returns base, or base with a numeric suffix when base is
// already taken, and marks the result as taken.
func uniqueID(base string, taken map[string]bool) string {
	id := base
	for k := 2; taken[id]; k++ {
		id = fmt.Sprintf("%s_%d", base, k)
	}
	taken[id] = true
	return id
}

func ensureStart(nodes, edges []map[string]any) ([]map[string]any, []map[string]any) {
	for _, n := range nodes {
		if nodeType(n).IsStartLike() {
			return nodes, edges
		}
	}
	startID := uniqueID(StartNodeID, presentIDs(nodes))
	start := syntheticNode(startID, document.NodeStart, "Start", 0)
	if len(nodes) > 0 {
		edgeID := uniqueID(StartEdgeID, presentIDs(edges))
		edges = append([]map[string]any{edge(edgeID, startID, idOf(nodes[0]))}, edges...)
	}
	nodes = append([]map[string]any{start}, nodes...)
	return nodes, edges
}

func ensureEnd(nodes, edges []map[string]any) ([]map[string]any, []map[string]any) {
	for _, n := range nodes {
		if nodeType(n).IsEndLike() {
			return nodes, edges
		}
	}
	lastID := StartNodeID
	if len(nodes) > 0 {
		lastID = idOf(nodes[len(nodes)-1])
	}
	endID := uniqueID(EndNodeID, presentIDs(nodes))
	nodes = append(nodes, syntheticNode(endID, document.NodeEnd, "End", len(nodes)))
	edges = append(edges, edge(uniqueID(EndEdgeID, presentIDs(edges)), lastID, endID))
	return nodes, edges
}

// connect gives every node after the first at least one incoming edge,
// chaining it from its predecessor. New edge ids continue from the edge
// count and skip ids already taken.
func connect(nodes, edges []map[string]any) []map[string]any {
	if len(nodes) == 0 {
		return edges
	}
	incoming := make(map[string]int, len(nodes))
	for _, n := range nodes {
		incoming[idOf(n)] = 0
	}
	taken := make(map[string]bool, len(edges))
	for _, e := range edges {
		taken[idOf(e)] = true
		if target, ok := e["target"].(string); ok {
			if _, known := incoming[target]; known {
				incoming[target]++
			}
		}
	}

	counter := len(edges)
	for i := 1; i < len(nodes); i++ {
		id := idOf(nodes[i])
		if incoming[id] > 0 {
			continue
		}
		var edgeID string
		for {
			counter++
			edgeID = fmt.Sprintf("edge_%d", counter)
			if !taken[edgeID] {
				break
			}
		}
		taken[edgeID] = true
		edges = append(edges, edge(edgeID, idOf(nodes[i-1]), id))
		incoming[id] = 1
	}
	return edges
}

func decode(raw map[string]any) (*document.WorkflowData, error) {
	var w document.WorkflowData
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &w,
		TagName: "mapstructure",
		// Models sometimes emit ids as numbers.
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, err
	}
	return &w, nil
}

// objectList returns raw[key] as a list of objects, creating an empty
// list when the key is missing.
func objectList(raw map[string]any, key string) ([]map[string]any, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return []map[string]any{}, nil
	}
	items, ok := v.([]any)
	if !ok {
		if typed, ok := v.([]map[string]any); ok {
			return typed, nil
		}
		return nil, appErr.Newf(appErr.CodeMalformedOutput, "%s is %T, want a list", key, v)
	}
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, appErr.Newf(appErr.CodeMalformedOutput, "%s[%d] is %T, want an object", key, i, item)
		}
		out = append(out, m)
	}
	return out, nil
}

// position returns the grid slot for the 1-indexed position idx.
func position(idx int) map[string]any {
	return map[string]any{"x": float64((idx - 1) * document.GridStep), "y": float64(0)}
}

func syntheticNode(id string, t document.NodeType, label string, slot int) map[string]any {
	return map[string]any{
		"id":       id,
		"type":     string(t),
		"position": map[string]any{"x": float64(slot * document.GridStep), "y": float64(0)},
		"data":     map[string]any{"label": label, "status": DefaultNodeStatus},
	}
}

func edge(id, source, target string) map[string]any {
	return map[string]any{"id": id, "source": source, "target": target}
}

func nodeType(n map[string]any) document.NodeType {
	t, _ := n["type"].(string)
	return document.NodeType(t)
}

// idOf reads an id the way the decoder will: numbers are accepted and
// rendered without a trailing fraction.
func idOf(m map[string]any) string {
	switch id := m["id"].(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	default:
		return ""
	}
}

// absent treats a missing key and an explicit null the same way.
func absent(m map[string]any, key string) bool {
	v, ok := m[key]
	return !ok || v == nil
}
