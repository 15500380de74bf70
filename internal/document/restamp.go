package document

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON writes empty node and edge lists as [] rather than null.
func (w WorkflowData) MarshalJSON() ([]byte, error) {
	type plain WorkflowData
	p := plain(w)
	if p.Nodes == nil {
		p.Nodes = []Node{}
	}
	if p.Edges == nil {
		p.Edges = []Edge{}
	}
	return json.Marshal(p)
}

// Restamp overwrites the top-level id, name and updatedAt of a serialized
// document. Every other member keeps its content exactly; only insignificant
// whitespace is dropped.
func Restamp(raw []byte, id, name, updatedAt string) ([]byte, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, fmt.Errorf("restamp: %w", err)
	}
	if members == nil {
		members = map[string]json.RawMessage{}
	}
	for key, val := range map[string]string{"id": id, "name": name, "updatedAt": updatedAt} {
		b, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("restamp %s: %w", key, err)
		}
		members[key] = b
	}
	for _, key := range []string{"nodes", "edges"} {
		if _, ok := members[key]; !ok {
			members[key] = json.RawMessage("[]")
		}
	}
	return json.Marshal(members)
}
