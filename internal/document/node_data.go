package document

import (
	"encoding/json"
	"fmt"
)

// NodeData is the open record attached to a node. Fields the server does
// not model are kept in Extra and written back next to the known ones.
type NodeData struct {
	Label       string         `mapstructure:"label" validate:"required"`
	Description *string        `mapstructure:"description"`
	Status      *string        `mapstructure:"status"`
	Color       *string        `mapstructure:"color"`
	Extra       map[string]any `mapstructure:",remain"`
}

var knownDataKeys = map[string]struct{}{
	"label":       {},
	"description": {},
	"status":      {},
	"color":       {},
}

func (d NodeData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+4)
	for k, v := range d.Extra {
		if _, known := knownDataKeys[k]; known {
			continue
		}
		out[k] = v
	}
	out["label"] = d.Label
	if d.Description != nil {
		out["description"] = *d.Description
	}
	if d.Status != nil {
		out["status"] = *d.Status
	}
	if d.Color != nil {
		out["color"] = *d.Color
	}
	return json.Marshal(out)
}

func (d *NodeData) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = NodeData{}
	for k, v := range raw {
		switch k {
		case "label":
			if err := json.Unmarshal(v, &d.Label); err != nil {
				return fmt.Errorf("data.label: %w", err)
			}
		case "description":
			if err := json.Unmarshal(v, &d.Description); err != nil {
				return fmt.Errorf("data.description: %w", err)
			}
		case "status":
			if err := json.Unmarshal(v, &d.Status); err != nil {
				return fmt.Errorf("data.status: %w", err)
			}
		case "color":
			if err := json.Unmarshal(v, &d.Color); err != nil {
				return fmt.Errorf("data.color: %w", err)
			}
		default:
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return fmt.Errorf("data.%s: %w", k, err)
			}
			if d.Extra == nil {
				d.Extra = map[string]any{}
			}
			d.Extra[k] = val
		}
	}
	return nil
}
