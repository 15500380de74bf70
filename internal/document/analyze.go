package document

import (
	"errors"
	"sort"

	"github.com/dominikbraun/graph"
)

// Report describes structural facts about a document that the editor may
// want to flag. It never changes the document.
type Report struct {
	Entry         string   `json:"entry,omitempty"`
	Unreachable   []string `json:"unreachable,omitempty"`
	DanglingEdges []string `json:"danglingEdges,omitempty"`
	Cyclic        bool     `json:"cyclic"`
}

// Clean reports whether nothing was flagged.
func (r Report) Clean() bool {
	return len(r.Unreachable) == 0 && len(r.DanglingEdges) == 0
}

// Analyze walks the graph from the first start-like node (or the first
// node if there is none) and reports what it cannot reach, which edges
// point at missing nodes, and whether the graph contains a cycle.
func Analyze(w *WorkflowData) (Report, error) {
	var r Report
	if w == nil || len(w.Nodes) == 0 {
		return r, nil
	}

	g := graph.New(graph.StringHash, graph.Directed())
	for _, n := range w.Nodes {
		if err := g.AddVertex(n.ID); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return r, err
		}
	}
	for _, e := range w.Edges {
		err := g.AddEdge(e.Source, e.Target, graph.EdgeAttribute("id", e.ID))
		switch {
		case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
		case errors.Is(err, graph.ErrVertexNotFound):
			r.DanglingEdges = append(r.DanglingEdges, e.ID)
		default:
			return r, err
		}
	}

	r.Entry = w.Nodes[0].ID
	for _, n := range w.Nodes {
		if n.Type.IsStartLike() {
			r.Entry = n.ID
			break
		}
	}

	seen := map[string]bool{}
	if err := graph.BFS(g, r.Entry, func(id string) bool {
		seen[id] = true
		return false
	}); err != nil {
		return r, err
	}
	for _, n := range w.Nodes {
		if !seen[n.ID] {
			r.Unreachable = append(r.Unreachable, n.ID)
		}
	}

	sccs, err := graph.StronglyConnectedComponents(g)
	if err != nil {
		return r, err
	}
	for _, c := range sccs {
		if len(c) > 1 {
			r.Cyclic = true
			break
		}
	}
	if !r.Cyclic {
		for _, e := range w.Edges {
			if e.Source == e.Target {
				r.Cyclic = true
				break
			}
		}
	}

	sort.Strings(r.DanglingEdges)
	return r, nil
}
