package canvasflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/canvasflow-ai/canvasflow/config"
	"github.com/canvasflow-ai/canvasflow/workflow"
)

type echoNode struct {
	nodeID string
	config map[string]any
}

func (n *echoNode) Schema() workflow.NodeSchema {
	return workflow.NodeSchema{
		NodeType:    "echo_node",
		DisplayName: "Echo",
		Category:    "test",
	}
}

func (n *echoNode) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	out := map[string]any{"echo": true}
	for k, v := range inputs {
		out[k] = v
	}
	return out, nil
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := New(
		WithConfig(config.DefaultConfig()),
		WithLogger(zaptest.NewLogger(t)),
		WithoutMetrics(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func TestNew_Defaults(t *testing.T) {
	rt := newTestRuntime(t)

	assert.NotNil(t, rt.Registry())
	assert.NotNil(t, rt.Engine())
	assert.NotNil(t, rt.Store())
	assert.NotNil(t, rt.Logger())
	assert.NotNil(t, rt.History())
	assert.NotNil(t, rt.Config())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Engine.MaxRetries = -1

	_, err := New(WithConfig(cfg), WithoutMetrics())
	assert.Error(t, err)
}

func TestRuntime_Run(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Registry().Register(func(nodeID string, cfg map[string]any) workflow.Node {
		return &echoNode{nodeID: nodeID, config: cfg}
	})

	g := workflow.NewGraph("echo-flow")
	a := g.AddNode(&workflow.WorkflowNode{Type: "echo_node"})
	b := g.AddNode(&workflow.WorkflowNode{Type: "echo_node"})
	require.NoError(t, g.AddEdge(&workflow.WorkflowEdge{Source: a, Target: b}))

	state, err := rt.Run(context.Background(), g, map[string]any{"seed": 7})
	require.NoError(t, err)
	assert.Equal(t, workflow.WorkflowStatusCompleted, state.GetStatus())

	// The run state is persisted after execution.
	saved, err := rt.Store().GetState(context.Background(), state.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, state.ExecutionID, saved.ExecutionID)
}

func TestRuntime_RunUnknownNodeType(t *testing.T) {
	rt := newTestRuntime(t)

	g := workflow.NewGraph("broken")
	g.AddNode(&workflow.WorkflowNode{Type: "missing_type"})

	state, err := rt.Run(context.Background(), g, nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.WorkflowStatusFailed, state.GetStatus())
}
