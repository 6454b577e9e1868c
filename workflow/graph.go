package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/canvasflow-ai/canvasflow/types"
)

// Position holds the canvas coordinates of a node. It is carried through
// serialization untouched and has no effect on execution.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// WorkflowNode represents a single processing node in the workflow graph.
type WorkflowNode struct {
	// ID is the unique identifier, generated on insertion if empty
	ID string `json:"id" yaml:"id"`
	// Type is the registry key of the implementation backing this node
	Type string `json:"node_type" yaml:"node_type"`
	// Label is display-only
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	// Config is an opaque map handed to the node implementation
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	// Disabled nodes are skipped at execution time and their outgoing
	// edges are ignored when resolving dependencies
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	// Position is opaque canvas metadata
	Position Position `json:"position" yaml:"position"`
}

// WorkflowEdge represents a directed data-flow connection between two nodes.
// Port names are free-form strings matched against the node schemas by the
// engine, never validated by the graph itself.
type WorkflowEdge struct {
	ID         string `json:"id" yaml:"id"`
	Source     string `json:"source_node_id" yaml:"source_node_id"`
	SourcePort string `json:"source_port,omitempty" yaml:"source_port,omitempty"`
	Target     string `json:"target_node_id" yaml:"target_node_id"`
	TargetPort string `json:"target_port,omitempty" yaml:"target_port,omitempty"`
	Label      string `json:"label,omitempty" yaml:"label,omitempty"`
	// Disabled edges are excluded from cycle checks and execution ordering
	// but remain part of the serialized graph
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Metadata describes a workflow graph.
type Metadata struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string    `json:"version,omitempty" yaml:"version,omitempty"`
	Author      string    `json:"author,omitempty" yaml:"author,omitempty"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// WorkflowGraph is the directed acyclic graph of a workflow. It owns the
// node and edge maps and enforces the structural invariants: no dangling
// edge endpoints and no cycles over non-disabled edges.
//
// The graph is not safe for concurrent mutation. During a run the engine
// treats it as read-only, so no locking is required.
type WorkflowGraph struct {
	id        string
	nodes     map[string]*WorkflowNode
	edges     map[string]*WorkflowEdge
	meta      Metadata
	variables map[string]any
}

// NewGraph creates an empty workflow graph with the given name.
func NewGraph(name string) *WorkflowGraph {
	now := time.Now().UTC()
	return &WorkflowGraph{
		id:    uuid.NewString(),
		nodes: make(map[string]*WorkflowNode),
		edges: make(map[string]*WorkflowEdge),
		meta: Metadata{
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		},
		variables: make(map[string]any),
	}
}

// ID returns the graph identifier.
func (g *WorkflowGraph) ID() string {
	return g.id
}

// Metadata returns a copy of the graph metadata.
func (g *WorkflowGraph) Metadata() Metadata {
	return g.meta
}

// SetMetadata replaces the graph metadata, preserving the creation
// timestamp and bumping the update timestamp.
func (g *WorkflowGraph) SetMetadata(meta Metadata) {
	meta.CreatedAt = g.meta.CreatedAt
	g.meta = meta
	g.touch()
}

// SetVariable sets a named constant available to all nodes at run time.
func (g *WorkflowGraph) SetVariable(key string, value any) {
	g.variables[key] = value
	g.touch()
}

// Variable retrieves a graph variable.
func (g *WorkflowGraph) Variable(key string) (any, bool) {
	v, ok := g.variables[key]
	return v, ok
}

// Variables returns a copy of the graph variables map.
func (g *WorkflowGraph) Variables() map[string]any {
	out := make(map[string]any, len(g.variables))
	for k, v := range g.variables {
		out[k] = v
	}
	return out
}

// AddNode inserts a node and returns its id, generating one if unset.
// Inserting a node whose id already exists replaces the previous node in
// place; edges touching the id stay valid because the endpoint id is
// unchanged.
func (g *WorkflowGraph) AddNode(node *WorkflowNode) string {
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	g.nodes[node.ID] = node
	g.touch()
	return node.ID
}

// RemoveNode deletes a node and every edge touching it. Returns false if
// the node does not exist.
func (g *WorkflowGraph) RemoveNode(id string) bool {
	if _, ok := g.nodes[id]; !ok {
		return false
	}
	delete(g.nodes, id)
	for edgeID, edge := range g.edges {
		if edge.Source == id || edge.Target == id {
			delete(g.edges, edgeID)
		}
	}
	g.touch()
	return true
}

// AddEdge inserts an edge after checking that the edge id is not already
// taken, that both endpoints exist, and that the edge would not create a
// cycle among non-disabled edges. On failure the graph is left unchanged
// and a descriptive error is returned.
func (g *WorkflowGraph) AddEdge(edge *WorkflowEdge) error {
	if edge.ID != "" {
		if _, ok := g.edges[edge.ID]; ok {
			return types.NewErrorf(types.ErrInvalidGraph, "edge %q already exists", edge.ID)
		}
	}
	if _, ok := g.nodes[edge.Source]; !ok {
		return types.NewErrorf(types.ErrDanglingEdge, "edge source node %q does not exist", edge.Source)
	}
	if _, ok := g.nodes[edge.Target]; !ok {
		return types.NewErrorf(types.ErrDanglingEdge, "edge target node %q does not exist", edge.Target)
	}
	if !edge.Disabled && g.wouldCreateCycle(edge) {
		return types.NewErrorf(types.ErrCycleDetected,
			"edge %s -> %s would create a cycle", edge.Source, edge.Target)
	}
	if edge.ID == "" {
		edge.ID = uuid.NewString()
	}
	g.edges[edge.ID] = edge
	g.touch()
	return nil
}

// RemoveEdge deletes an edge. Returns false if the edge does not exist.
func (g *WorkflowGraph) RemoveEdge(id string) bool {
	if _, ok := g.edges[id]; !ok {
		return false
	}
	delete(g.edges, id)
	g.touch()
	return true
}

// Node retrieves a node by id.
func (g *WorkflowGraph) Node(id string) (*WorkflowNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Edge retrieves an edge by id.
func (g *WorkflowGraph) Edge(id string) (*WorkflowEdge, bool) {
	e, ok := g.edges[id]
	return e, ok
}

// NodeCount returns the number of nodes in the graph.
func (g *WorkflowGraph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *WorkflowGraph) EdgeCount() int {
	return len(g.edges)
}

// NodeIDs returns the ids of all nodes in the graph.
func (g *WorkflowGraph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	return ids
}

// IncomingEdges returns every edge whose target is the given node,
// including disabled edges.
func (g *WorkflowGraph) IncomingEdges(nodeID string) []*WorkflowEdge {
	var in []*WorkflowEdge
	for _, edge := range g.edges {
		if edge.Target == nodeID {
			in = append(in, edge)
		}
	}
	return in
}

// OutgoingEdges returns every edge whose source is the given node,
// including disabled edges.
func (g *WorkflowGraph) OutgoingEdges(nodeID string) []*WorkflowEdge {
	var out []*WorkflowEdge
	for _, edge := range g.edges {
		if edge.Source == nodeID {
			out = append(out, edge)
		}
	}
	return out
}

// EdgesForNode returns the incoming and outgoing edges of a node.
func (g *WorkflowGraph) EdgesForNode(nodeID string) (incoming, outgoing []*WorkflowEdge) {
	return g.IncomingEdges(nodeID), g.OutgoingEdges(nodeID)
}

// SourceNodes returns nodes with zero incoming edges. Disabled edges still
// count as structural here.
func (g *WorkflowGraph) SourceNodes() []*WorkflowNode {
	var sources []*WorkflowNode
	for id, node := range g.nodes {
		if len(g.IncomingEdges(id)) == 0 {
			sources = append(sources, node)
		}
	}
	return sources
}

// SinkNodes returns nodes with zero outgoing edges.
func (g *WorkflowGraph) SinkNodes() []*WorkflowNode {
	var sinks []*WorkflowNode
	for id, node := range g.nodes {
		if len(g.OutgoingEdges(id)) == 0 {
			sinks = append(sinks, node)
		}
	}
	return sinks
}

// Dependencies returns the transitive closure of ancestor node ids
// reachable from the given node by walking enabled incoming edges.
func (g *WorkflowGraph) Dependencies(nodeID string) map[string]bool {
	return g.closure(nodeID, func(id string) []string {
		var parents []string
		for _, edge := range g.edges {
			if edge.Target == id && !edge.Disabled {
				parents = append(parents, edge.Source)
			}
		}
		return parents
	})
}

// Dependents returns the transitive closure of descendant node ids
// reachable from the given node by walking enabled outgoing edges.
func (g *WorkflowGraph) Dependents(nodeID string) map[string]bool {
	return g.closure(nodeID, func(id string) []string {
		var children []string
		for _, edge := range g.edges {
			if edge.Source == id && !edge.Disabled {
				children = append(children, edge.Target)
			}
		}
		return children
	})
}

// closure walks the graph breadth-first from start using the given
// neighbor function. The start node itself is not part of the result.
func (g *WorkflowGraph) closure(start string, neighbors func(string) []string) map[string]bool {
	result := make(map[string]bool)
	queue := neighbors(start)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if result[id] {
			continue
		}
		result[id] = true
		queue = append(queue, neighbors(id)...)
	}
	return result
}

// ExecutionOrder computes a topological layering of the graph restricted
// to enabled edges. Each layer contains nodes with no remaining
// dependencies on later layers, so nodes within a layer are safe to run
// concurrently. Returns an error if a cycle is present; this fires even
// when a cycle was introduced by manipulating the maps directly, since
// the same traversal backs AddEdge and this check.
func (g *WorkflowGraph) ExecutionOrder() ([][]string, error) {
	if g.hasCycle(nil) {
		return nil, types.NewError(types.ErrCycleDetected, "cycle detected, no valid execution order exists")
	}

	inDegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = 0
	}
	for _, edge := range g.edges {
		if edge.Disabled {
			continue
		}
		inDegree[edge.Target]++
	}

	var layers [][]string
	remaining := len(g.nodes)
	for remaining > 0 {
		var layer []string
		for id, deg := range inDegree {
			if deg == 0 {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			// Unreachable after the cycle check above, kept as a guard
			// against concurrent mutation during ordering.
			return nil, types.NewError(types.ErrCycleDetected, "cycle detected, no valid execution order exists")
		}
		for _, id := range layer {
			delete(inDegree, id)
			for _, edge := range g.edges {
				if edge.Disabled || edge.Source != id {
					continue
				}
				if _, ok := inDegree[edge.Target]; ok {
					inDegree[edge.Target]--
				}
			}
		}
		layers = append(layers, layer)
		remaining -= len(layer)
	}
	return layers, nil
}

// Validate checks the graph for structural problems that are legal during
// editing but suspicious in a finished workflow. With more than one node,
// any node with zero edges in either direction is reported as disconnected.
// A single lone node is valid.
func (g *WorkflowGraph) Validate() []error {
	var errs []error
	if len(g.nodes) <= 1 {
		return errs
	}
	for id := range g.nodes {
		if len(g.IncomingEdges(id)) == 0 && len(g.OutgoingEdges(id)) == 0 {
			errs = append(errs, types.NewErrorf(types.ErrDisconnected,
				"node %q is not connected to any other node", id).WithNode(id))
		}
	}
	return errs
}

// wouldCreateCycle reports whether inserting candidate would close a
// directed cycle among enabled edges.
func (g *WorkflowGraph) wouldCreateCycle(candidate *WorkflowEdge) bool {
	return g.hasCycle(candidate)
}

// hasCycle runs a depth-first cycle search over the enabled edge set,
// optionally including one extra candidate edge. This is the single
// traversal primitive behind both the preventive check in AddEdge and the
// defensive check in ExecutionOrder.
func (g *WorkflowGraph) hasCycle(extra *WorkflowEdge) bool {
	adjacency := make(map[string][]string, len(g.nodes))
	for _, edge := range g.edges {
		if edge.Disabled {
			continue
		}
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
	}
	if extra != nil && !extra.Disabled {
		adjacency[extra.Source] = append(adjacency[extra.Source], extra.Target)
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = inStack
		for _, next := range adjacency[id] {
			switch state[next] {
			case inStack:
				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		state[id] = done
		return false
	}

	for id := range g.nodes {
		if state[id] == unvisited && visit(id) {
			return true
		}
	}
	return false
}

func (g *WorkflowGraph) touch() {
	g.meta.UpdatedAt = time.Now().UTC()
}
