package generation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/workflow-builder/engine/internal/document"
	appErr "github.com/workflow-builder/engine/pkg/errors"
)

var fixedNow = time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)

func mustRaw(t *testing.T, s string) map[string]any {
	t.Helper()
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func nodeIDs(w *document.WorkflowData) []string {
	ids := make([]string, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func requireInvariants(t *testing.T, w *document.WorkflowData) {
	t.Helper()
	require.True(t, w.HasStart(), "no start-like node")
	require.True(t, w.HasEnd(), "no end-like node")
	in := w.InDegrees()
	for i, n := range w.Nodes {
		require.Equal(t, document.Position{X: float64(i * 260), Y: 0}, n.Position, "node %s", n.ID)
		if i > 0 {
			require.GreaterOrEqual(t, in[n.ID], 1, "node %s has no incoming edge", n.ID)
		}
	}
	require.NoError(t, document.Validate(w))
}

func TestRepairMinimal(t *testing.T) {
	w, err := RepairAt(mustRaw(t, `{"nodes":[],"edges":[]}`), "", fixedNow)
	require.NoError(t, err)

	require.Equal(t, DefaultWorkflowID, w.ID)
	require.Equal(t, DefaultWorkflowName, w.Name)
	require.Equal(t, "2024-06-01T12:30:00.000Z", w.UpdatedAt)

	require.Len(t, w.Nodes, 2)
	require.Equal(t, StartNodeID, w.Nodes[0].ID)
	require.Equal(t, document.NodeStart, w.Nodes[0].Type)
	require.Equal(t, document.Position{X: 0, Y: 0}, w.Nodes[0].Position)
	require.Equal(t, EndNodeID, w.Nodes[1].ID)
	require.Equal(t, document.NodeEnd, w.Nodes[1].Type)
	require.Equal(t, document.Position{X: 260, Y: 0}, w.Nodes[1].Position)

	require.Len(t, w.Edges, 1)
	require.Equal(t, document.Edge{ID: EndEdgeID, Source: StartNodeID, Target: EndNodeID}, w.Edges[0])
	requireInvariants(t, w)
}

func TestRepairEmptyObject(t *testing.T) {
	w, err := RepairAt(map[string]any{}, "Nightly sync", fixedNow)
	require.NoError(t, err)
	require.Equal(t, "Nightly sync", w.Name)
	require.Equal(t, []string{StartNodeID, EndNodeID}, nodeIDs(w))
	requireInvariants(t, w)

	w, err = RepairAt(nil, "", fixedNow)
	require.NoError(t, err)
	requireInvariants(t, w)
}

func TestRepairKeepsTopLevelFields(t *testing.T) {
	raw := mustRaw(t, `{"id":"wf_9","name":"Model name","updatedAt":"yesterday","nodes":[],"edges":[]}`)
	w, err := RepairAt(raw, "Fallback", fixedNow)
	require.NoError(t, err)
	require.Equal(t, "wf_9", w.ID)
	require.Equal(t, "Model name", w.Name)
	require.Equal(t, "yesterday", w.UpdatedAt)
}

func TestRepairSequentialDefaults(t *testing.T) {
	raw := mustRaw(t, `{"nodes":[{"type":"task"},{"type":"log_event"},{"type":"notify_alert"}],"edges":[{"source":"node_1","target":"node_2"}]}`)
	w, err := RepairAt(raw, "", fixedNow)
	require.NoError(t, err)

	require.Equal(t,
		[]string{StartNodeID, "node_1", "node_2", "node_3", EndNodeID},
		nodeIDs(w))
	require.Equal(t, "task", w.Nodes[1].Data.Label)
	require.Equal(t, DefaultNodeStatus, *w.Nodes[1].Data.Status)

	edgeIDs := make([]string, 0, len(w.Edges))
	for _, e := range w.Edges {
		edgeIDs = append(edgeIDs, e.ID)
	}
	// edge_start_1 goes to the front, edge_end_1 to the back, then the
	// connectivity pass adds edge_4 for node_3 (3 edges existed).
	require.Equal(t, []string{StartEdgeID, "edge_1", EndEdgeID, "edge_4"}, edgeIDs)
	require.Equal(t, document.Edge{ID: StartEdgeID, Source: StartNodeID, Target: "node_1"}, w.Edges[0])
	require.Equal(t, document.Edge{ID: EndEdgeID, Source: "node_3", Target: EndNodeID}, w.Edges[2])
	require.Equal(t, document.Edge{ID: "edge_4", Source: "node_2", Target: "node_3"}, w.Edges[3])
	requireInvariants(t, w)
}

func TestDefaultNodesIntermediatePositions(t *testing.T) {
	nodes := []map[string]any{
		{"type": "task"},
		{"type": "task", "position": map[string]any{"x": 999.0, "y": 5.0}},
		{"type": "task"},
	}
	defaultNodes(nodes)
	require.Equal(t, map[string]any{"x": 0.0, "y": 0.0}, nodes[0]["position"])
	require.Equal(t, map[string]any{"x": 999.0, "y": 5.0}, nodes[1]["position"])
	require.Equal(t, map[string]any{"x": 520.0, "y": 0.0}, nodes[2]["position"])
	require.Equal(t, "node_3", nodes[2]["id"])
}

func TestRepairIdempotentOnCompleteDocument(t *testing.T) {
	const complete = `{
	  "id": "wf_1", "name": "Order flow", "updatedAt": "2024-01-01T00:00:00",
	  "nodes": [
	    {"id":"a","type":"schedule_trigger","position":{"x":17,"y":40},"data":{"label":"Every hour","status":"Ready","cron":"0 * * * *"}},
	    {"id":"b","type":"decision","position":{"x":300,"y":90},"data":{"label":"Paid?","description":"check invoice"}},
	    {"id":"c","type":"end_fail","position":{"x":600,"y":0},"data":{"label":"Reject","color":"#f00"}},
	    {"id":"d","type":"end","position":{"x":600,"y":200},"data":{"label":"Ship"}}
	  ],
	  "edges": [
	    {"id":"ab","source":"a","target":"b"},
	    {"id":"bc","source":"b","target":"c","sourceHandle":"no"},
	    {"id":"bd","source":"b","target":"d","sourceHandle":"yes","type":"smoothstep"}
	  ]
	}`
	before, err := document.ParseJSON([]byte(complete))
	require.NoError(t, err)

	after, err := RepairAt(mustRaw(t, complete), "ignored", fixedNow)
	require.NoError(t, err)

	require.Equal(t, before.ID, after.ID)
	require.Equal(t, before.Name, after.Name)
	require.Equal(t, before.UpdatedAt, after.UpdatedAt)
	require.Equal(t, before.Edges, after.Edges)
	require.Len(t, after.Nodes, len(before.Nodes))
	for i := range before.Nodes {
		require.Equal(t, before.Nodes[i].ID, after.Nodes[i].ID)
		require.Equal(t, before.Nodes[i].Type, after.Nodes[i].Type)
		require.Equal(t, before.Nodes[i].Data, after.Nodes[i].Data)
	}
	requireInvariants(t, after)

	again, err := RepairAt(mustRaw(t, mustJSON(t, after)), "", fixedNow)
	require.NoError(t, err)
	require.Equal(t, after, again)
}

func TestRepairExistingStartNoEnd(t *testing.T) {
	raw := mustRaw(t, `{"nodes":[
		{"id":"hook","type":"webhook_trigger","data":{"label":"Incoming"}},
		{"id":"t","type":"transform_mapper","data":{"label":"Map"}}
	],"edges":[]}`)
	w, err := RepairAt(raw, "", fixedNow)
	require.NoError(t, err)

	require.Equal(t, []string{"hook", "t", EndNodeID}, nodeIDs(w))
	require.Equal(t, []document.Edge{
		{ID: EndEdgeID, Source: "t", Target: EndNodeID},
		{ID: "edge_2", Source: "hook", Target: "t"},
	}, w.Edges)
	requireInvariants(t, w)
}

func TestRepairConnectivitySkipsTakenIDs(t *testing.T) {
	raw := mustRaw(t, `{"nodes":[
		{"id":"s","type":"start","data":{"label":"S"}},
		{"id":"x","type":"task","data":{"label":"X"}},
		{"id":"y","type":"task","data":{"label":"Y"}},
		{"id":"e","type":"end","data":{"label":"E"}}
	],"edges":[
		{"id":"edge_3","source":"s","target":"e"},
		{"id":"edge_2","source":"x","target":"ghost"}
	]}`)
	w, err := RepairAt(raw, "", fixedNow)
	require.NoError(t, err)

	require.Equal(t, []document.Edge{
		{ID: "edge_3", Source: "s", Target: "e"},
		{ID: "edge_2", Source: "x", Target: "ghost"},
		{ID: "edge_4", Source: "s", Target: "x"},
		{ID: "edge_5", Source: "x", Target: "y"},
	}, w.Edges)
	requireInvariants(t, w)
}

func TestRepairNullFieldsTreatedAsAbsent(t *testing.T) {
	raw := mustRaw(t, `{"id":null,"nodes":[{"id":null,"type":"task","position":null,"data":null}],"edges":null}`)
	w, err := RepairAt(raw, "", fixedNow)
	require.NoError(t, err)
	require.Equal(t, DefaultWorkflowID, w.ID)
	require.Equal(t, []string{StartNodeID, "node_1", EndNodeID}, nodeIDs(w))
	requireInvariants(t, w)
}

func TestRepairDefaultIDCollision(t *testing.T) {
	raw := mustRaw(t, `{"nodes":[
		{"type":"start"},
		{"id":"node_1","type":"end"}
	],"edges":[]}`)
	w, err := RepairAt(raw, "", fixedNow)
	require.NoError(t, err)
	require.Equal(t, []string{"node_1_2", "node_1"}, nodeIDs(w))
	requireInvariants(t, w)
}

func TestRepairSyntheticIDsAvoidTakenIDs(t *testing.T) {
	t.Run("start node", func(t *testing.T) {
		raw := mustRaw(t, `{"nodes":[
			{"id":"node_start","type":"task","data":{"label":"T"}},
			{"id":"e","type":"end","data":{"label":"E"}}
		],"edges":[]}`)
		w, err := RepairAt(raw, "", fixedNow)
		require.NoError(t, err)
		require.Equal(t, []string{"node_start_2", "node_start", "e"}, nodeIDs(w))
		require.Equal(t, []document.Edge{
			{ID: StartEdgeID, Source: "node_start_2", Target: "node_start"},
			{ID: "edge_2", Source: "node_start", Target: "e"},
		}, w.Edges)
		requireInvariants(t, w)
	})

	t.Run("end node and end edge", func(t *testing.T) {
		raw := mustRaw(t, `{"nodes":[
			{"id":"s","type":"start","data":{"label":"S"}},
			{"id":"node_end","type":"task","data":{"label":"T"}}
		],"edges":[{"id":"edge_end_1","source":"s","target":"node_end"}]}`)
		w, err := RepairAt(raw, "", fixedNow)
		require.NoError(t, err)
		require.Equal(t, []string{"s", "node_end", "node_end_2"}, nodeIDs(w))
		require.Equal(t, []document.Edge{
			{ID: EndEdgeID, Source: "s", Target: "node_end"},
			{ID: "edge_end_1_2", Source: "node_end", Target: "node_end_2"},
		}, w.Edges)
		requireInvariants(t, w)
	})

	t.Run("start edge", func(t *testing.T) {
		raw := mustRaw(t, `{"nodes":[
			{"id":"a","type":"task","data":{"label":"A"}},
			{"id":"z","type":"end","data":{"label":"Z"}}
		],"edges":[{"id":"edge_start_1","source":"a","target":"z"}]}`)
		w, err := RepairAt(raw, "", fixedNow)
		require.NoError(t, err)
		require.Equal(t, []string{StartNodeID, "a", "z"}, nodeIDs(w))
		require.Equal(t, []document.Edge{
			{ID: "edge_start_1_2", Source: StartNodeID, Target: "a"},
			{ID: StartEdgeID, Source: "a", Target: "z"},
		}, w.Edges)
		requireInvariants(t, w)
	})
}

func TestRepairRenamesRepeatedIDs(t *testing.T) {
	raw := mustRaw(t, `{"nodes":[
		{"id":"s","type":"start","data":{"label":"S"}},
		{"id":"x","type":"task","data":{"label":"X1"}},
		{"id":"x","type":"task","data":{"label":"X2"}},
		{"id":"e","type":"end","data":{"label":"E"}}
	],"edges":[
		{"id":"e1","source":"s","target":"x"},
		{"id":"e1","source":"x","target":"e"}
	]}`)
	w, err := RepairAt(raw, "", fixedNow)
	require.NoError(t, err)

	require.Equal(t, []string{"s", "x", "x_2", "e"}, nodeIDs(w))
	require.Equal(t, "X2", w.Nodes[2].Data.Label)
	require.Equal(t, []document.Edge{
		{ID: "e1", Source: "s", Target: "x"},
		{ID: "e1_2", Source: "x", Target: "e"},
		{ID: "edge_3", Source: "x", Target: "x_2"},
	}, w.Edges)
	requireInvariants(t, w)
}

func TestRepairRejectsMalformedShapes(t *testing.T) {
	_, err := RepairAt(mustRaw(t, `{"nodes":"none"}`), "", fixedNow)
	require.True(t, appErr.IsCode(err, appErr.CodeMalformedOutput))

	_, err = RepairAt(mustRaw(t, `{"nodes":[1,2]}`), "", fixedNow)
	require.True(t, appErr.IsCode(err, appErr.CodeMalformedOutput))
}

func TestRepairUnknownTypeIsDefect(t *testing.T) {
	_, err := RepairAt(mustRaw(t, `{"nodes":[{"type":"teleport"}]}`), "", fixedNow)
	require.True(t, appErr.IsCode(err, appErr.CodeInternal))
}

func TestRepairPropertiesOverShapes(t *testing.T) {
	inputs := []string{
		`{}`,
		`{"nodes":[{"type":"task"}]}`,
		`{"nodes":[{"type":"end"}]}`,
		`{"nodes":[{"type":"end"},{"type":"start"}]}`,
		`{"nodes":[{"type":"task"},{"type":"task"},{"type":"task"},{"type":"task"}],"edges":[{"source":"node_4","target":"node_1"}]}`,
		`{"nodes":[{"type":"parallel_fork"},{"type":"join_merge"}],"edges":[{"source":"node_1","target":"nowhere"},{"source":"nowhere","target":"node_1"}]}`,
		`{"nodes":[{"type":"loop_foreach","position":{"x":"12","y":"3"}}]}`,
		`{"nodes":[{"type":"task","position":{"x":"left","y":null}},{"type":"task","position":"top"}]}`,
		`{"nodes":[{"id":"node_start","type":"end"},{"id":"node_start","type":"task"}],"edges":[{"id":"edge_end_1","source":"node_start","target":"node_start_2"},{"id":"edge_end_1","source":"a","target":"b"}]}`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			w, err := RepairAt(mustRaw(t, in), "", fixedNow)
			require.NoError(t, err)
			requireInvariants(t, w)
		})
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
