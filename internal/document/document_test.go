package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/workflow-builder/engine/pkg/errors"
)

const sampleDoc = `{
  "id": "wf_1",
  "name": "Onboarding",
  "updatedAt": "2024-05-01T10:00:00",
  "nodes": [
    {"id": "n1", "type": "webhook_trigger", "position": {"x": 0, "y": 0},
     "data": {"label": "Signup", "status": "Ready", "retries": 3, "headers": {"X-Token": "abc"}}},
    {"id": "n2", "type": "http_request", "position": {"x": 260, "y": 0},
     "data": {"label": "Call CRM", "description": "POST /contacts", "color": "#fff"}},
    {"id": "n3", "type": "end", "position": {"x": 520, "y": 0}, "data": {"label": "Done"}}
  ],
  "edges": [
    {"id": "e1", "source": "n1", "target": "n2", "sourceHandle": "out"},
    {"id": "e2", "source": "n2", "target": "n3", "type": "smoothstep"}
  ]
}`

func TestNodeTypeClassification(t *testing.T) {
	require.Len(t, NodeTypes, 19)
	for _, nt := range NodeTypes {
		require.True(t, nt.Valid(), nt)
	}
	require.False(t, NodeType("action").Valid())

	require.True(t, NodeStart.IsStartLike())
	require.True(t, NodeWebhookTrigger.IsStartLike())
	require.True(t, NodeScheduleTrigger.IsStartLike())
	require.False(t, NodeTask.IsStartLike())

	require.True(t, NodeEnd.IsEndLike())
	require.True(t, NodeEndFail.IsEndLike())
	require.False(t, NodeManualReview.IsEndLike())
}

func TestParseJSON(t *testing.T) {
	t.Run("valid document keeps extra data", func(t *testing.T) {
		w, err := ParseJSON([]byte(sampleDoc))
		require.NoError(t, err)
		require.Len(t, w.Nodes, 3)
		require.Equal(t, "Signup", w.Nodes[0].Data.Label)
		require.Equal(t, float64(3), w.Nodes[0].Data.Extra["retries"])
		require.Equal(t, "POST /contacts", *w.Nodes[1].Data.Description)
		require.Nil(t, w.Nodes[2].Data.Status)
		require.Equal(t, "out", *w.Edges[0].SourceHandle)
		require.True(t, w.HasStart())
		require.True(t, w.HasEnd())

		out, err := json.Marshal(w)
		require.NoError(t, err)
		var round map[string]any
		require.NoError(t, json.Unmarshal(out, &round))
		var orig map[string]any
		require.NoError(t, json.Unmarshal([]byte(sampleDoc), &orig))
		require.Equal(t, orig, round)
	})

	t.Run("unknown node type", func(t *testing.T) {
		_, err := ParseJSON([]byte(`{"id":"w","name":"n","updatedAt":"t","nodes":[{"id":"a","type":"action","position":{"x":0,"y":0},"data":{"label":"x"}}],"edges":[]}`))
		require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
	})

	t.Run("missing label", func(t *testing.T) {
		_, err := ParseJSON([]byte(`{"id":"w","name":"n","updatedAt":"t","nodes":[{"id":"a","type":"task","position":{"x":0,"y":0},"data":{}}],"edges":[]}`))
		require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
	})

	t.Run("duplicate node id", func(t *testing.T) {
		_, err := ParseJSON([]byte(`{"id":"w","name":"n","updatedAt":"t","nodes":[
			{"id":"a","type":"start","position":{"x":0,"y":0},"data":{"label":"s"}},
			{"id":"a","type":"end","position":{"x":1,"y":0},"data":{"label":"e"}}],"edges":[]}`))
		require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
		require.ErrorContains(t, err, "duplicate id")
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseJSON([]byte(`{nodes`))
		require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
	})
}

func TestMarshalEmptyLists(t *testing.T) {
	out, err := json.Marshal(WorkflowData{ID: "w", Name: "n", UpdatedAt: "t"})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"w","name":"n","updatedAt":"t","nodes":[],"edges":[]}`, string(out))
}

func TestRestamp(t *testing.T) {
	out, err := Restamp([]byte(sampleDoc), "4b1c", "Renamed", "2025-01-01T00:00:00.000Z")
	require.NoError(t, err)

	var got, orig map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &got))
	require.NoError(t, json.Unmarshal([]byte(sampleDoc), &orig))

	require.JSONEq(t, `"4b1c"`, string(got["id"]))
	require.JSONEq(t, `"Renamed"`, string(got["name"]))
	require.JSONEq(t, `"2025-01-01T00:00:00.000Z"`, string(got["updatedAt"]))
	require.JSONEq(t, string(orig["nodes"]), string(got["nodes"]))
	require.JSONEq(t, string(orig["edges"]), string(got["edges"]))

	_, err = Restamp([]byte(`[1,2]`), "a", "b", "c")
	require.Error(t, err)
}

func TestGridAndAppendLayout(t *testing.T) {
	nodes := []Node{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	GridLayout(nodes)
	require.Equal(t, Position{X: 520, Y: 0}, nodes[2].Position)

	base := &WorkflowData{Nodes: []Node{
		{ID: "a", Position: Position{X: 10, Y: 40}},
		{ID: "b", Position: Position{X: 300, Y: -20}},
	}}
	merged := []Node{{ID: "a"}, {ID: "b"}, {ID: "x"}, {ID: "y"}}
	AppendLayout(base, merged)
	require.Equal(t, Position{X: 10, Y: 40}, merged[0].Position)
	require.Equal(t, Position{X: 300, Y: -20}, merged[1].Position)
	require.Equal(t, Position{X: 700, Y: 0}, merged[2].Position)
	require.Equal(t, Position{X: 960, Y: 0}, merged[3].Position)
}

func TestAnalyze(t *testing.T) {
	w := &WorkflowData{
		Nodes: []Node{
			{ID: "s", Type: NodeStart},
			{ID: "a", Type: NodeTask},
			{ID: "orphan", Type: NodeTask},
			{ID: "e", Type: NodeEnd},
		},
		Edges: []Edge{
			{ID: "e1", Source: "s", Target: "a"},
			{ID: "e2", Source: "a", Target: "e"},
			{ID: "e3", Source: "a", Target: "ghost"},
			{ID: "e4", Source: "e", Target: "a"},
		},
	}
	r, err := Analyze(w)
	require.NoError(t, err)
	require.Equal(t, "s", r.Entry)
	require.Equal(t, []string{"orphan"}, r.Unreachable)
	require.Equal(t, []string{"e3"}, r.DanglingEdges)
	require.True(t, r.Cyclic)
	require.False(t, r.Clean())

	empty, err := Analyze(&WorkflowData{})
	require.NoError(t, err)
	require.True(t, empty.Clean())
}
