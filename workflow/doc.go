// Package workflow implements the workflow graph execution engine: a
// directed-acyclic-graph model of typed processing nodes, a node-type
// registry, per-node execution state with retry semantics, and an engine
// that computes a concurrent execution order and drives nodes to
// completion while propagating data along edges.
//
// The three moving parts compose top-down:
//
//   - [WorkflowGraph] owns nodes, edges, metadata, and variables, and
//     enforces the structural invariants (no dangling edges, no cycles).
//     [WorkflowGraph.ExecutionOrder] layers the graph so that nodes
//     within a layer can run concurrently.
//   - [Registry] maps node type names to [Factory] constructors for
//     implementations of the [Node] contract.
//   - [Engine.Execute] consumes a graph, resolves node inputs from
//     upstream outputs and variables, and records everything into a
//     [WorkflowState].
//
// Graphs round-trip losslessly through JSON and YAML via
// [WorkflowGraph.ToDefinition] and [FromDefinition].
package workflow
