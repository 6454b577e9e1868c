package workflow

import (
	"context"

	"github.com/canvasflow-ai/canvasflow/types"
)

// PortDirection marks a port as an input or an output slot.
type PortDirection string

const (
	PortDirectionInput  PortDirection = "input"
	PortDirectionOutput PortDirection = "output"
)

// NodePort declares a named input or output slot on a node type. Edges
// match ports by name.
type NodePort struct {
	Name        string        `json:"name"`
	DataType    string        `json:"data_type"`
	Direction   PortDirection `json:"direction"`
	Required    bool          `json:"required"`
	Description string        `json:"description,omitempty"`
}

// NodeSchema declares the identity and port layout of a node type.
type NodeSchema struct {
	NodeType    string     `json:"node_type"`
	DisplayName string     `json:"display_name"`
	Category    string     `json:"category"`
	Description string     `json:"description,omitempty"`
	Inputs      []NodePort `json:"inputs,omitempty"`
	Outputs     []NodePort `json:"outputs,omitempty"`
}

// Node is the contract every node implementation satisfies. Execute may
// suspend on I/O; it must honor ctx cancellation and must not block other
// concurrently executing nodes.
type Node interface {
	// Schema declares the node's type name, category, and ports
	Schema() NodeSchema
	// Execute transforms resolved inputs into outputs
	Execute(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

// Factory constructs a node instance bound to a workflow node id and its
// opaque config map. Config validation belongs in the implementation,
// which should reject malformed config with a clear error from Execute.
type Factory func(nodeID string, config map[string]any) Node

// StringConfig extracts a string value from a node config map.
func StringConfig(config map[string]any, key string) (string, error) {
	raw, ok := config[key]
	if !ok {
		return "", types.NewErrorf(types.ErrInvalidConfig, "config key %q is missing", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", types.NewErrorf(types.ErrInvalidConfig, "config key %q is not a string", key)
	}
	return s, nil
}

// IntConfig extracts an integer value from a node config map. JSON
// decoding produces float64 for numbers, so both forms are accepted.
func IntConfig(config map[string]any, key string) (int, error) {
	raw, ok := config[key]
	if !ok {
		return 0, types.NewErrorf(types.ErrInvalidConfig, "config key %q is missing", key)
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, types.NewErrorf(types.ErrInvalidConfig, "config key %q is not an integer", key)
	}
}

// BoolConfig extracts a boolean value from a node config map.
func BoolConfig(config map[string]any, key string) (bool, error) {
	raw, ok := config[key]
	if !ok {
		return false, types.NewErrorf(types.ErrInvalidConfig, "config key %q is missing", key)
	}
	b, ok := raw.(bool)
	if !ok {
		return false, types.NewErrorf(types.ErrInvalidConfig, "config key %q is not a boolean", key)
	}
	return b, nil
}
