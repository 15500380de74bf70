// Package document defines the workflow graph document: nodes, edges and
// their layout, as exchanged with the editor and stored per version.
package document

import (
	"encoding/json"
	"time"
)

// NodeType is the closed set of node kinds the editor can render.
type NodeType string

const (
	NodeStart           NodeType = "start"
	NodeWebhookTrigger  NodeType = "webhook_trigger"
	NodeScheduleTrigger NodeType = "schedule_trigger"
	NodeTask            NodeType = "task"
	NodeHTTPRequest     NodeType = "http_request"
	NodeTransformMapper NodeType = "transform_mapper"
	NodeValidator       NodeType = "validator"
	NodeDelay           NodeType = "delay"
	NodeDelayWait       NodeType = "delay_wait"
	NodeDecision        NodeType = "decision"
	NodeSwitchRouter    NodeType = "switch_router"
	NodeParallelFork    NodeType = "parallel_fork"
	NodeJoinMerge       NodeType = "join_merge"
	NodeLoopForeach     NodeType = "loop_foreach"
	NodeManualReview    NodeType = "manual_review"
	NodeLogEvent        NodeType = "log_event"
	NodeNotifyAlert     NodeType = "notify_alert"
	NodeEnd             NodeType = "end"
	NodeEndFail         NodeType = "end_fail"
)

// NodeTypes lists every NodeType in editor palette order.
var NodeTypes = []NodeType{
	NodeStart, NodeWebhookTrigger, NodeScheduleTrigger,
	NodeTask, NodeHTTPRequest, NodeTransformMapper, NodeValidator,
	NodeDelay, NodeDelayWait, NodeDecision, NodeSwitchRouter,
	NodeParallelFork, NodeJoinMerge, NodeLoopForeach, NodeManualReview,
	NodeLogEvent, NodeNotifyAlert,
	NodeEnd, NodeEndFail,
}

// Valid reports whether t is one of NodeTypes.
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsStartLike reports whether a node of this type can begin a workflow.
func (t NodeType) IsStartLike() bool {
	return t == NodeStart || t == NodeWebhookTrigger || t == NodeScheduleTrigger
}

// IsEndLike reports whether a node of this type terminates a workflow.
func (t NodeType) IsEndLike() bool {
	return t == NodeEnd || t == NodeEndFail
}

type Position struct {
	X float64 `json:"x" mapstructure:"x"`
	Y float64 `json:"y" mapstructure:"y"`
}

type Node struct {
	ID       string   `json:"id" mapstructure:"id" validate:"required"`
	Type     NodeType `json:"type" mapstructure:"type" validate:"required,nodetype"`
	Position Position `json:"position" mapstructure:"position"`
	Data     NodeData `json:"data" mapstructure:"data"`
}

type Edge struct {
	ID           string  `json:"id" mapstructure:"id" validate:"required"`
	Source       string  `json:"source" mapstructure:"source" validate:"required"`
	Target       string  `json:"target" mapstructure:"target" validate:"required"`
	SourceHandle *string `json:"sourceHandle,omitempty" mapstructure:"sourceHandle"`
	Type         *string `json:"type,omitempty" mapstructure:"type"`
}

// WorkflowData is the graph document. UpdatedAt is kept as text so that
// whatever the client sent round-trips unchanged.
type WorkflowData struct {
	ID        string `json:"id" mapstructure:"id" validate:"required"`
	Name      string `json:"name" mapstructure:"name" validate:"required"`
	UpdatedAt string `json:"updatedAt" mapstructure:"updatedAt" validate:"required"`
	Nodes     []Node `json:"nodes" mapstructure:"nodes" validate:"dive"`
	Edges     []Edge `json:"edges" mapstructure:"edges" validate:"dive"`
}

// TimestampLayout is the layout used when the server stamps updatedAt or exportedAt.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp formats t in TimestampLayout, in UTC.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// HasStart reports whether any node is start-like.
func (w *WorkflowData) HasStart() bool {
	for _, n := range w.Nodes {
		if n.Type.IsStartLike() {
			return true
		}
	}
	return false
}

// HasEnd reports whether any node is end-like.
func (w *WorkflowData) HasEnd() bool {
	for _, n := range w.Nodes {
		if n.Type.IsEndLike() {
			return true
		}
	}
	return false
}

// InDegrees counts incoming edges per node id. Edges whose target is not
// a node of the document are ignored.
func (w *WorkflowData) InDegrees() map[string]int {
	in := make(map[string]int, len(w.Nodes))
	for _, n := range w.Nodes {
		in[n.ID] = 0
	}
	for _, e := range w.Edges {
		if _, ok := in[e.Target]; ok {
			in[e.Target]++
		}
	}
	return in
}

// ExportEnvelope wraps a document for download and re-import. Version is
// the envelope format version, not the workflow's own version. Workflow is
// kept raw so the stored document is handed out as is.
type ExportEnvelope struct {
	Version    int             `json:"version"`
	ExportedAt string          `json:"exportedAt"`
	Workflow   json.RawMessage `json:"workflow" swaggertype:"object"`
}

const EnvelopeVersion = 1
