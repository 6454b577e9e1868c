package workflow

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/canvasflow-ai/canvasflow/types"
)

// GraphDefinition is the serializable document form of a WorkflowGraph.
// It round-trips losslessly: FromDefinition(g.ToDefinition()) yields a
// graph structurally equal to g.
type GraphDefinition struct {
	ID        string                   `json:"id" yaml:"id"`
	Metadata  Metadata                 `json:"metadata" yaml:"metadata"`
	Nodes     map[string]WorkflowNode  `json:"nodes" yaml:"nodes"`
	Edges     map[string]WorkflowEdge  `json:"edges" yaml:"edges"`
	Variables map[string]any           `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// ToDefinition converts the graph into its serializable document form.
func (g *WorkflowGraph) ToDefinition() *GraphDefinition {
	def := &GraphDefinition{
		ID:        g.id,
		Metadata:  g.meta,
		Nodes:     make(map[string]WorkflowNode, len(g.nodes)),
		Edges:     make(map[string]WorkflowEdge, len(g.edges)),
		Variables: g.Variables(),
	}
	for id, node := range g.nodes {
		def.Nodes[id] = *node
	}
	for id, edge := range g.edges {
		def.Edges[id] = *edge
	}
	return def
}

// FromDefinition reconstructs a WorkflowGraph from its document form.
// Edge endpoints are validated against the node set; cycle checking is
// deferred to ExecutionOrder so that historical documents always load.
func FromDefinition(def *GraphDefinition) (*WorkflowGraph, error) {
	if def == nil {
		return nil, types.NewError(types.ErrInvalidDefinition, "definition is nil")
	}
	g := &WorkflowGraph{
		id:        def.ID,
		nodes:     make(map[string]*WorkflowNode, len(def.Nodes)),
		edges:     make(map[string]*WorkflowEdge, len(def.Edges)),
		meta:      def.Metadata,
		variables: make(map[string]any, len(def.Variables)),
	}
	for id, node := range def.Nodes {
		n := node
		if n.ID == "" {
			n.ID = id
		}
		if n.ID != id {
			return nil, types.NewErrorf(types.ErrInvalidDefinition,
				"node map key %q does not match node id %q", id, n.ID)
		}
		g.nodes[id] = &n
	}
	for id, edge := range def.Edges {
		e := edge
		if e.ID == "" {
			e.ID = id
		}
		if e.ID != id {
			return nil, types.NewErrorf(types.ErrInvalidDefinition,
				"edge map key %q does not match edge id %q", id, e.ID)
		}
		if _, ok := g.nodes[e.Source]; !ok {
			return nil, types.NewErrorf(types.ErrDanglingEdge,
				"edge %q references unknown source node %q", id, e.Source)
		}
		if _, ok := g.nodes[e.Target]; !ok {
			return nil, types.NewErrorf(types.ErrDanglingEdge,
				"edge %q references unknown target node %q", id, e.Target)
		}
		g.edges[id] = &e
	}
	for k, v := range def.Variables {
		g.variables[k] = v
	}
	return g, nil
}

// ToJSON serializes the graph to indented JSON.
func (g *WorkflowGraph) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(g.ToDefinition(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal graph to JSON: %w", err)
	}
	return data, nil
}

// FromJSON loads a graph from its JSON document form.
func FromJSON(data []byte) (*WorkflowGraph, error) {
	var def GraphDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, types.NewError(types.ErrInvalidDefinition, "parse graph JSON").WithCause(err)
	}
	return FromDefinition(&def)
}

// ToYAML serializes the graph to YAML.
func (g *WorkflowGraph) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(g.ToDefinition())
	if err != nil {
		return nil, fmt.Errorf("marshal graph to YAML: %w", err)
	}
	return data, nil
}

// FromYAML loads a graph from its YAML document form.
func FromYAML(data []byte) (*WorkflowGraph, error) {
	var def GraphDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, types.NewError(types.ErrInvalidDefinition, "parse graph YAML").WithCause(err)
	}
	return FromDefinition(&def)
}

// LoadGraphFile loads a graph from a JSON or YAML file depending on the
// file extension. Anything other than .yaml/.yml is treated as JSON.
func LoadGraphFile(filename string) (*WorkflowGraph, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}
	if isYAMLFile(filename) {
		return FromYAML(data)
	}
	return FromJSON(data)
}

// SaveGraphFile writes the graph to a JSON or YAML file depending on the
// file extension.
func (g *WorkflowGraph) SaveGraphFile(filename string) error {
	var (
		data []byte
		err  error
	)
	if isYAMLFile(filename) {
		data, err = g.ToYAML()
	} else {
		data, err = g.ToJSON()
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("write graph file: %w", err)
	}
	return nil
}

func isYAMLFile(filename string) bool {
	for _, ext := range []string{".yaml", ".yml"} {
		if len(filename) > len(ext) && filename[len(filename)-len(ext):] == ext {
			return true
		}
	}
	return false
}
