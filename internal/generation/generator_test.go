package generation

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/workflow-builder/engine/internal/document"
	"github.com/workflow-builder/engine/internal/llm"
	appErr "github.com/workflow-builder/engine/pkg/errors"
	"github.com/workflow-builder/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type mockCompleter struct{ mock.Mock }

func (m *mockCompleter) Complete(ctx context.Context, system, user string, format llm.ResponseFormat) (string, error) {
	args := m.Called(ctx, system, user, format)
	return args.String(0), args.Error(1)
}

type unconfiguredCompleter struct{ mockCompleter }

func (*unconfiguredCompleter) Configured() bool { return false }

func TestGenerateReplace(t *testing.T) {
	mc := new(mockCompleter)
	mc.On("Complete", mock.Anything, mock.MatchedBy(func(s string) bool {
		return strings.Contains(s, "manual_review") && strings.Contains(s, "start-type node")
	}), mock.MatchedBy(func(u string) bool {
		return strings.HasPrefix(u, "Description: Approve expense reports\nMode: replace.") &&
			!strings.Contains(u, "Existing:")
	}), llm.FormatJSONObject).
		Return("```json\n{\"nodes\":[{\"type\":\"manual_review\",\"data\":{\"label\":\"Approve\"}}]}\n```", nil).Once()

	g := NewGenerator(mc)
	w, err := g.Generate(context.Background(), Request{Description: "Approve expense reports", Name: "Expenses"})
	require.NoError(t, err)
	require.Equal(t, "Expenses", w.Name)
	require.Equal(t, []string{StartNodeID, "node_1", EndNodeID}, nodeIDs(w))
	require.Equal(t, "Approve", w.Nodes[1].Data.Label)
	mock.AssertExpectationsForObjects(t, mc)
}

func TestGenerateAppendKeepsExistingLayout(t *testing.T) {
	existing := &document.WorkflowData{
		ID: "wf", Name: "Base", UpdatedAt: "t",
		Nodes: []document.Node{
			{ID: "s", Type: document.NodeStart, Position: document.Position{X: 40, Y: 80}, Data: document.NodeData{Label: "S"}},
			{ID: "e", Type: document.NodeEnd, Position: document.Position{X: 500, Y: 80}, Data: document.NodeData{Label: "E"}},
		},
		Edges: []document.Edge{{ID: "se", Source: "s", Target: "e"}},
	}
	output := `{"id":"wf","name":"Base","nodes":[
		{"id":"s","type":"start","data":{"label":"S"}},
		{"id":"e","type":"end","data":{"label":"E"}},
		{"id":"n1","type":"notify_alert","data":{"label":"Ping"}},
		{"id":"n2","type":"end","data":{"label":"Done"}}
	],"edges":[{"id":"se","source":"s","target":"e"},{"id":"e1","source":"e","target":"n1"},{"id":"e2","source":"n1","target":"n2"}]}`

	mc := new(mockCompleter)
	mc.On("Complete", mock.Anything, mock.Anything, mock.MatchedBy(func(u string) bool {
		return strings.Contains(u, "Mode: append.") && strings.Contains(u, "offset x by +400") && strings.Contains(u, `"id":"se"`)
	}), llm.FormatJSONObject).Return(output, nil).Once()

	w, err := NewGenerator(mc).Generate(context.Background(), Request{
		Description: "notify the team", Mode: ModeAppend, Existing: existing,
	})
	require.NoError(t, err)
	require.Equal(t, document.Position{X: 40, Y: 80}, w.Nodes[0].Position)
	require.Equal(t, document.Position{X: 500, Y: 80}, w.Nodes[1].Position)
	require.Equal(t, document.Position{X: 900, Y: 0}, w.Nodes[2].Position)
	require.Equal(t, document.Position{X: 1160, Y: 0}, w.Nodes[3].Position)
	mock.AssertExpectationsForObjects(t, mc)
}

func TestGenerateErrors(t *testing.T) {
	t.Run("short description", func(t *testing.T) {
		mc := new(mockCompleter)
		_, err := NewGenerator(mc).Generate(context.Background(), Request{Description: "hi"})
		require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
		mc.AssertNotCalled(t, "Complete")
	})

	t.Run("bad mode", func(t *testing.T) {
		_, err := NewGenerator(new(mockCompleter)).Generate(context.Background(), Request{Description: "valid", Mode: "merge"})
		require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := NewGenerator(new(unconfiguredCompleter)).Generate(context.Background(), Request{Description: "valid"})
		require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
		require.ErrorContains(t, err, "OPENAI_API_KEY")
	})

	t.Run("provider failure", func(t *testing.T) {
		mc := new(mockCompleter)
		mc.On("Complete", mock.Anything, mock.Anything, mock.Anything, llm.FormatJSONObject).
			Return("", appErr.Wrap(errors.New("dial tcp: refused"), appErr.CodeProvider, "completion request failed"))
		_, err := NewGenerator(mc).Generate(context.Background(), Request{Description: "valid"})
		require.True(t, appErr.IsCode(err, appErr.CodeProvider))
	})

	t.Run("not json", func(t *testing.T) {
		mc := new(mockCompleter)
		mc.On("Complete", mock.Anything, mock.Anything, mock.Anything, llm.FormatJSONObject).
			Return("Sure! Here is your workflow.", nil)
		_, err := NewGenerator(mc).Generate(context.Background(), Request{Description: "valid"})
		require.True(t, appErr.IsCode(err, appErr.CodeMalformedOutput))
	})

	t.Run("json array", func(t *testing.T) {
		mc := new(mockCompleter)
		mc.On("Complete", mock.Anything, mock.Anything, mock.Anything, llm.FormatJSONObject).
			Return(`[{"type":"start"}]`, nil)
		_, err := NewGenerator(mc).Generate(context.Background(), Request{Description: "valid"})
		require.True(t, appErr.IsCode(err, appErr.CodeMalformedOutput))
	})
}

func TestGenerateChecksExistingOnlyWhenAppending(t *testing.T) {
	stale := &document.WorkflowData{ID: "wf", Name: "Base", UpdatedAt: "t", Nodes: []document.Node{
		{ID: "a", Type: document.NodeTask, Data: document.NodeData{Label: "A"}},
		{ID: "a", Type: document.NodeTask, Data: document.NodeData{Label: "B"}},
	}}

	mc := new(mockCompleter)
	mc.On("Complete", mock.Anything, mock.Anything, mock.Anything, llm.FormatJSONObject).
		Return(`{"nodes":[]}`, nil).Once()
	w, err := NewGenerator(mc).Generate(context.Background(), Request{Description: "valid", Mode: ModeReplace, Existing: stale})
	require.NoError(t, err)
	require.Equal(t, []string{StartNodeID, EndNodeID}, nodeIDs(w))
	mc.AssertExpectations(t)

	other := new(mockCompleter)
	_, err = NewGenerator(other).Generate(context.Background(), Request{Description: "valid", Mode: ModeAppend, Existing: stale})
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
	other.AssertNotCalled(t, "Complete")
}

func TestUserPromptReplaceIgnoresExisting(t *testing.T) {
	p, err := userPrompt(Request{Description: "d", Mode: ModeReplace, Existing: &document.WorkflowData{ID: "x"}})
	require.NoError(t, err)
	require.Equal(t, "Description: d\nMode: replace.\nUse status 'Ready' for node data status field.\nProvide ids like node_1, node_2 and edge_1, edge_2.", p)
}
