package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/canvasflow-ai/canvasflow/types"
)

// funcNode wraps a function as a Node implementation for tests.
type funcNode struct {
	schema NodeSchema
	fn     func(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

func (n *funcNode) Schema() NodeSchema { return n.schema }

func (n *funcNode) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	return n.fn(ctx, inputs)
}

func registerFunc(r *Registry, name string, fn func(ctx context.Context, inputs map[string]any) (map[string]any, error)) {
	r.RegisterNamed(name, func(nodeID string, config map[string]any) Node {
		return &funcNode{schema: NodeSchema{NodeType: name}, fn: fn}
	})
}

// testRig bundles a registry and recorder shared by engine tests.
type testRig struct {
	registry *Registry

	mu       sync.Mutex
	started  []string
	inputsBy map[string]map[string]any
}

func newTestRig(t *testing.T) *testRig {
	rig := &testRig{
		registry: NewRegistry(zaptest.NewLogger(t)),
		inputsBy: make(map[string]map[string]any),
	}
	return rig
}

// registerEcho registers a node type that records its invocation and
// returns the given outputs.
func (r *testRig) registerEcho(name string, outputs map[string]any) {
	r.registry.RegisterNamed(name, func(nodeID string, config map[string]any) Node {
		return &funcNode{
			schema: NodeSchema{NodeType: name},
			fn: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
				r.record(nodeID, inputs)
				return outputs, nil
			},
		}
	})
}

func (r *testRig) record(nodeID string, inputs map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, nodeID)
	r.inputsBy[nodeID] = inputs
}

func (r *testRig) startedNodes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.started))
	copy(out, r.started)
	return out
}

func (r *testRig) inputsOf(nodeID string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputsBy[nodeID]
}

func fastRetry() RetryConfig {
	return RetryConfig{
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestExecute_NilGraph(t *testing.T) {
	e := NewEngine(NewRegistry(nil), zaptest.NewLogger(t))

	_, err := e.Execute(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidGraph, types.GetErrorCode(err))
}

func TestExecute_EmptyGraphCompletes(t *testing.T) {
	e := NewEngine(NewRegistry(nil), zaptest.NewLogger(t))

	state, err := e.Execute(context.Background(), NewGraph("empty"), nil)
	require.NoError(t, err)
	assert.Equal(t, WorkflowStatusCompleted, state.GetStatus())
	assert.Empty(t, state.NodeStates)
	require.NotNil(t, state.CompletedAt)
}

func TestExecute_LinearChain(t *testing.T) {
	rig := newTestRig(t)
	rig.registerEcho("producer", map[string]any{"value": 42})
	rig.registerEcho("consumer", map[string]any{"done": true})

	g := NewGraph("chain")
	g.AddNode(&WorkflowNode{ID: "p", Type: "producer"})
	g.AddNode(&WorkflowNode{ID: "c", Type: "consumer"})
	require.NoError(t, g.AddEdge(&WorkflowEdge{
		Source: "p", SourcePort: "value", Target: "c", TargetPort: "amount",
	}))

	e := NewEngine(rig.registry, zaptest.NewLogger(t))
	state, err := e.Execute(context.Background(), g, nil)
	require.NoError(t, err)

	assert.Equal(t, WorkflowStatusCompleted, state.GetStatus())
	assert.Equal(t, []string{"p", "c"}, rig.startedNodes())
	// The producer's "value" output arrives under the edge's target port.
	assert.Equal(t, 42, rig.inputsOf("c")["amount"])

	outputs, ok := state.NodeOutputs("c")
	require.True(t, ok)
	assert.Equal(t, true, outputs["done"])
}

func TestExecute_DiamondRunsMiddleLayerConcurrently(t *testing.T) {
	rig := newTestRig(t)

	var inFlight, maxInFlight int32
	block := make(chan struct{})
	registerFunc(rig.registry, "slow", func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxInFlight)
			if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
				break
			}
		}
		<-block
		atomic.AddInt32(&inFlight, -1)
		return nil, nil
	})
	rig.registerEcho("task", nil)

	g := NewGraph("diamond")
	g.AddNode(&WorkflowNode{ID: "a", Type: "task"})
	g.AddNode(&WorkflowNode{ID: "b", Type: "slow"})
	g.AddNode(&WorkflowNode{ID: "c", Type: "slow"})
	g.AddNode(&WorkflowNode{ID: "d", Type: "task"})
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "a", Target: "b"}))
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "a", Target: "c"}))
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "b", Target: "d"}))
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "c", Target: "d"}))

	// Release the middle layer once both nodes are in flight.
	go func() {
		for atomic.LoadInt32(&inFlight) < 2 {
			time.Sleep(time.Millisecond)
		}
		close(block)
	}()

	e := NewEngine(rig.registry, zaptest.NewLogger(t))
	state, err := e.Execute(context.Background(), g, nil)
	require.NoError(t, err)

	assert.Equal(t, WorkflowStatusCompleted, state.GetStatus())
	assert.Equal(t, int32(2), atomic.LoadInt32(&maxInFlight), "b and c overlap in time")

	started := rig.startedNodes()
	require.Len(t, started, 2)
	assert.Equal(t, "a", started[0])
	assert.Equal(t, "d", started[1], "d starts only after the layer barrier")
}

func TestExecute_MaxConcurrencyCapsLayer(t *testing.T) {
	rig := newTestRig(t)

	var inFlight, maxInFlight int32
	registerFunc(rig.registry, "slow", func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxInFlight)
			if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil, nil
	})

	g := NewGraph("wide")
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		g.AddNode(&WorkflowNode{ID: id, Type: "slow"})
	}

	e := NewEngine(rig.registry, zaptest.NewLogger(t), WithMaxConcurrency(2))
	state, err := e.Execute(context.Background(), g, nil)
	require.NoError(t, err)

	assert.Equal(t, WorkflowStatusCompleted, state.GetStatus())
	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(2))
}

func TestExecute_RetryBudgetThenFailure(t *testing.T) {
	rig := newTestRig(t)

	var calls int32
	registerFunc(rig.registry, "flaky", func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("boom")
	})
	rig.registerEcho("task", nil)

	g := NewGraph("retry")
	g.AddNode(&WorkflowNode{ID: "f", Type: "flaky", Config: map[string]any{"max_retries": 2}})
	g.AddNode(&WorkflowNode{ID: "down", Type: "task"})
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "f", Target: "down"}))

	e := NewEngine(rig.registry, zaptest.NewLogger(t), WithRetryConfig(fastRetry()))
	state, err := e.Execute(context.Background(), g, nil)
	require.NoError(t, err)

	// max_retries=2 means three attempts in total.
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, WorkflowStatusFailed, state.GetStatus())
	assert.Equal(t, NodeStatusFailed, state.NodeStatusOf("f"))
	assert.Equal(t, 3, state.NodeAttempts("f"))

	// The dependent never ran.
	assert.Equal(t, NodeStatusSkipped, state.NodeStatusOf("down"))
	assert.Empty(t, rig.startedNodes())

	s, ok := state.NodeState("down")
	require.True(t, ok)
	assert.Contains(t, s.SkipReason, "f")
}

func TestExecute_RetrySucceedsMidBudget(t *testing.T) {
	rig := newTestRig(t)

	var calls int32
	registerFunc(rig.registry, "flaky", func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("transient")
		}
		return map[string]any{"ok": true}, nil
	})

	g := NewGraph("recovery")
	g.AddNode(&WorkflowNode{ID: "f", Type: "flaky", Config: map[string]any{"max_retries": 5}})

	e := NewEngine(rig.registry, zaptest.NewLogger(t), WithRetryConfig(fastRetry()))
	state, err := e.Execute(context.Background(), g, nil)
	require.NoError(t, err)

	assert.Equal(t, WorkflowStatusCompleted, state.GetStatus())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, NodeStatusCompleted, state.NodeStatusOf("f"))
	// Two failed attempts remain on the record.
	assert.Equal(t, 2, state.NodeAttempts("f"))
}

func TestExecute_IndependentBranchContinuesAfterFailure(t *testing.T) {
	rig := newTestRig(t)
	registerFunc(rig.registry, "broken", func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	rig.registerEcho("task", nil)

	// Two roots: one fails, the other's chain still runs to completion.
	g := NewGraph("branches")
	g.AddNode(&WorkflowNode{ID: "bad", Type: "broken"})
	g.AddNode(&WorkflowNode{ID: "bad_child", Type: "task"})
	g.AddNode(&WorkflowNode{ID: "good", Type: "task"})
	g.AddNode(&WorkflowNode{ID: "good_child", Type: "task"})
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "bad", Target: "bad_child"}))
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "good", Target: "good_child"}))

	e := NewEngine(rig.registry, zaptest.NewLogger(t))
	state, err := e.Execute(context.Background(), g, nil)
	require.NoError(t, err)

	assert.Equal(t, WorkflowStatusFailed, state.GetStatus())
	assert.Equal(t, NodeStatusFailed, state.NodeStatusOf("bad"))
	assert.Equal(t, NodeStatusSkipped, state.NodeStatusOf("bad_child"))
	assert.Equal(t, NodeStatusCompleted, state.NodeStatusOf("good"))
	assert.Equal(t, NodeStatusCompleted, state.NodeStatusOf("good_child"))
}

func TestExecute_SkipCascadesTransitively(t *testing.T) {
	rig := newTestRig(t)
	registerFunc(rig.registry, "broken", func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	rig.registerEcho("task", nil)

	// bad -> child -> grandchild: the grandchild is skipped because its
	// parent was skipped, not because anything it depends on failed
	// directly.
	g := NewGraph("cascade")
	g.AddNode(&WorkflowNode{ID: "bad", Type: "broken"})
	g.AddNode(&WorkflowNode{ID: "child", Type: "task"})
	g.AddNode(&WorkflowNode{ID: "grandchild", Type: "task"})
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "bad", Target: "child"}))
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "child", Target: "grandchild"}))

	e := NewEngine(rig.registry, zaptest.NewLogger(t))
	state, err := e.Execute(context.Background(), g, nil)
	require.NoError(t, err)

	assert.Equal(t, NodeStatusSkipped, state.NodeStatusOf("child"))
	assert.Equal(t, NodeStatusSkipped, state.NodeStatusOf("grandchild"))

	child, _ := state.NodeState("child")
	assert.Contains(t, child.SkipReason, "failed")
	grandchild, _ := state.NodeState("grandchild")
	assert.Contains(t, grandchild.SkipReason, "skipped")
}

func TestExecute_DisabledNodeSkippedButNotGating(t *testing.T) {
	rig := newTestRig(t)
	rig.registerEcho("task", map[string]any{"ok": true})

	// a -> off -> b with off disabled: off is skipped, b still runs.
	g := NewGraph("disabled")
	g.AddNode(&WorkflowNode{ID: "a", Type: "task"})
	g.AddNode(&WorkflowNode{ID: "off", Type: "task", Disabled: true})
	g.AddNode(&WorkflowNode{ID: "b", Type: "task"})
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "a", Target: "off"}))
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "off", Target: "b"}))

	e := NewEngine(rig.registry, zaptest.NewLogger(t))
	state, err := e.Execute(context.Background(), g, nil)
	require.NoError(t, err)

	assert.Equal(t, WorkflowStatusCompleted, state.GetStatus())
	assert.Equal(t, NodeStatusSkipped, state.NodeStatusOf("off"))
	s, _ := state.NodeState("off")
	assert.Equal(t, "node disabled", s.SkipReason)
	assert.Equal(t, NodeStatusCompleted, state.NodeStatusOf("b"))
}

func TestExecute_DisabledEdgeDoesNotGateOrCarryData(t *testing.T) {
	rig := newTestRig(t)
	registerFunc(rig.registry, "broken", func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	rig.registerEcho("task", nil)

	g := NewGraph("edge-off")
	g.AddNode(&WorkflowNode{ID: "bad", Type: "broken"})
	g.AddNode(&WorkflowNode{ID: "b", Type: "task"})
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "bad", Target: "b", Disabled: true}))

	e := NewEngine(rig.registry, zaptest.NewLogger(t))
	state, err := e.Execute(context.Background(), g, nil)
	require.NoError(t, err)

	// The failure does not propagate across a disabled edge.
	assert.Equal(t, NodeStatusCompleted, state.NodeStatusOf("b"))
	assert.Equal(t, WorkflowStatusFailed, state.GetStatus())
}

func TestExecute_UnregisteredTypeFailsNode(t *testing.T) {
	rig := newTestRig(t)
	rig.registerEcho("task", nil)

	g := NewGraph("unknown")
	g.AddNode(&WorkflowNode{ID: "mystery", Type: "not_registered"})
	g.AddNode(&WorkflowNode{ID: "fine", Type: "task"})

	e := NewEngine(rig.registry, zaptest.NewLogger(t), WithMaxRetries(3), WithRetryConfig(fastRetry()))
	state, err := e.Execute(context.Background(), g, nil)
	require.NoError(t, err)

	assert.Equal(t, WorkflowStatusFailed, state.GetStatus())
	assert.Equal(t, NodeStatusFailed, state.NodeStatusOf("mystery"))
	// Missing executors fail fast without consuming the retry budget.
	assert.Equal(t, 1, state.NodeAttempts("mystery"))
	assert.Equal(t, NodeStatusCompleted, state.NodeStatusOf("fine"))

	s, _ := state.NodeState("mystery")
	assert.Contains(t, s.Error, "not_registered")
}

func TestExecute_Cancellation(t *testing.T) {
	rig := newTestRig(t)

	running := make(chan struct{})
	registerFunc(rig.registry, "hang", func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		close(running)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	rig.registerEcho("task", nil)

	g := NewGraph("cancel")
	g.AddNode(&WorkflowNode{ID: "first", Type: "hang"})
	g.AddNode(&WorkflowNode{ID: "second", Type: "task"})
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "first", Target: "second"}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-running
		cancel()
	}()

	e := NewEngine(rig.registry, zaptest.NewLogger(t))
	state, err := e.Execute(ctx, g, nil)
	require.NoError(t, err, "cancellation is reported through the state, not the error")

	assert.Equal(t, WorkflowStatusCancelled, state.GetStatus())
	assert.Equal(t, NodeStatusFailed, state.NodeStatusOf("first"))
	assert.Equal(t, NodeStatusSkipped, state.NodeStatusOf("second"))
	s, _ := state.NodeState("second")
	assert.Equal(t, "workflow cancelled", s.SkipReason)
}

func TestExecute_NodeTimeout(t *testing.T) {
	rig := newTestRig(t)
	// The implementation ignores ctx entirely; the engine's timeout race
	// must still unblock the run and abandon the goroutine.
	registerFunc(rig.registry, "stuck", func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	})

	g := NewGraph("timeout")
	g.AddNode(&WorkflowNode{ID: "s", Type: "stuck"})

	e := NewEngine(rig.registry, zaptest.NewLogger(t),
		WithNodeTimeout(10*time.Millisecond),
		WithRetryConfig(fastRetry()),
	)
	state, err := e.Execute(context.Background(), g, nil)
	require.NoError(t, err)

	assert.Equal(t, WorkflowStatusFailed, state.GetStatus())
	s, ok := state.NodeState("s")
	require.True(t, ok)
	assert.Equal(t, NodeStatusFailed, s.Status)
	assert.Contains(t, s.Error, "timed out")
}

func TestExecute_TimeoutOverrideFromNodeConfig(t *testing.T) {
	rig := newTestRig(t)
	registerFunc(rig.registry, "quick", func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		select {
		case <-time.After(20 * time.Millisecond):
			return map[string]any{"ok": true}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	g := NewGraph("override")
	// Engine-level timeout is far too small, the node raises its own.
	g.AddNode(&WorkflowNode{ID: "q", Type: "quick", Config: map[string]any{"timeout_seconds": 5}})

	e := NewEngine(rig.registry, zaptest.NewLogger(t), WithNodeTimeout(time.Millisecond))
	state, err := e.Execute(context.Background(), g, nil)
	require.NoError(t, err)

	assert.Equal(t, WorkflowStatusCompleted, state.GetStatus())
}

func TestExecute_VariablesFlowIntoInputs(t *testing.T) {
	rig := newTestRig(t)
	rig.registerEcho("task", nil)

	g := NewGraph("vars")
	g.SetVariable("region", "eu-west-1")
	g.SetVariable("batch", 100)
	g.AddNode(&WorkflowNode{ID: "a", Type: "task"})

	e := NewEngine(rig.registry, zaptest.NewLogger(t))
	_, err := e.Execute(context.Background(), g, map[string]any{"batch": 500})
	require.NoError(t, err)

	inputs := rig.inputsOf("a")
	assert.Equal(t, "eu-west-1", inputs["region"])
	// Caller-supplied variables win over graph variables.
	assert.Equal(t, 500, inputs["batch"])
}

func TestExecute_InputResolutionKeying(t *testing.T) {
	rig := newTestRig(t)
	rig.registerEcho("producer", map[string]any{"body": "payload", "status": 200})
	rig.registerEcho("sink", nil)

	g := NewGraph("ports")
	g.AddNode(&WorkflowNode{ID: "p", Type: "producer"})
	g.AddNode(&WorkflowNode{ID: "by_target", Type: "sink"})
	g.AddNode(&WorkflowNode{ID: "by_source", Type: "sink"})
	g.AddNode(&WorkflowNode{ID: "merged", Type: "sink"})
	g.AddNode(&WorkflowNode{ID: "absent", Type: "sink"})
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "p", SourcePort: "body", Target: "by_target", TargetPort: "input"}))
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "p", SourcePort: "status", Target: "by_source"}))
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "p", Target: "merged"}))
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "p", SourcePort: "missing_port", Target: "absent", TargetPort: "input"}))

	e := NewEngine(rig.registry, zaptest.NewLogger(t))
	state, err := e.Execute(context.Background(), g, nil)
	require.NoError(t, err)
	assert.Equal(t, WorkflowStatusCompleted, state.GetStatus())

	// Keyed by target port.
	assert.Equal(t, "payload", rig.inputsOf("by_target")["input"])
	// Falls back to the source port name.
	assert.Equal(t, 200, rig.inputsOf("by_source")["status"])
	// No ports at all merges the whole output map.
	merged := rig.inputsOf("merged")
	assert.Equal(t, "payload", merged["body"])
	assert.Equal(t, 200, merged["status"])
	// A port the producer never emitted is an omission, not an error.
	_, present := rig.inputsOf("absent")["input"]
	assert.False(t, present)
}

func TestExecute_RateLimitThrottlesLaunches(t *testing.T) {
	rig := newTestRig(t)
	rig.registerEcho("task", nil)

	g := NewGraph("throttled")
	for _, id := range []string{"a", "b", "c"} {
		g.AddNode(&WorkflowNode{ID: id, Type: "task"})
	}

	e := NewEngine(rig.registry, zaptest.NewLogger(t), WithRateLimit(100, 1))
	start := time.Now()
	state, err := e.Execute(context.Background(), g, nil)
	require.NoError(t, err)

	assert.Equal(t, WorkflowStatusCompleted, state.GetStatus())
	// Three launches at 100 rps with burst 1 need at least ~20ms.
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestExecute_RateLimitZeroBurstFailsNode(t *testing.T) {
	rig := newTestRig(t)
	rig.registerEcho("task", nil)

	g := NewGraph("misconfigured")
	g.AddNode(&WorkflowNode{ID: "a", Type: "task"})

	// A zero burst rejects every Wait outright. The node must fail with a
	// config error rather than be skipped as cancelled.
	e := NewEngine(rig.registry, zaptest.NewLogger(t), WithRateLimit(100, 0))
	state, err := e.Execute(context.Background(), g, nil)
	require.NoError(t, err)

	assert.Equal(t, WorkflowStatusFailed, state.GetStatus())
	ns, ok := state.NodeState("a")
	require.True(t, ok)
	assert.Equal(t, NodeStatusFailed, ns.Status)
	assert.Contains(t, ns.Error, "rate limiter rejected node launch")
	assert.Empty(t, rig.startedNodes())
}

func TestExecute_HistoryRecorded(t *testing.T) {
	rig := newTestRig(t)
	rig.registerEcho("task", map[string]any{"ok": true})
	registerFunc(rig.registry, "broken", func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	})

	g := NewGraph("audited")
	g.AddNode(&WorkflowNode{ID: "a", Type: "task"})
	g.AddNode(&WorkflowNode{ID: "b", Type: "broken"})
	g.AddNode(&WorkflowNode{ID: "c", Type: "task"})
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "a", Target: "b"}))
	require.NoError(t, g.AddEdge(&WorkflowEdge{Source: "b", Target: "c"}))

	store := NewHistoryStore()
	e := NewEngine(rig.registry, zaptest.NewLogger(t), WithHistoryStore(store))
	state, err := e.Execute(context.Background(), g, nil)
	require.NoError(t, err)

	h, ok := store.Get(state.ExecutionID)
	require.True(t, ok)
	assert.Equal(t, WorkflowStatusFailed, h.Status)
	assert.Equal(t, g.ID(), h.WorkflowID)
	assert.False(t, h.EndTime.IsZero())

	records := h.NodeRecords()
	byID := make(map[string]*NodeExecutionRecord)
	for _, record := range records {
		byID[record.NodeID] = record
	}
	require.Contains(t, byID, "a")
	assert.Equal(t, NodeStatusCompleted, byID["a"].Status)
	require.Contains(t, byID, "b")
	assert.Equal(t, NodeStatusFailed, byID["b"].Status)
	assert.Equal(t, "boom", byID["b"].Error)
	require.Contains(t, byID, "c")
	assert.Equal(t, NodeStatusSkipped, byID["c"].Status)

	assert.Len(t, store.ListByWorkflow(g.ID()), 1)
	assert.Len(t, store.ListByStatus(WorkflowStatusFailed), 1)
	assert.Empty(t, store.ListByStatus(WorkflowStatusCompleted))
}

func TestCalculateBackoff(t *testing.T) {
	c := RetryConfig{
		InitialBackoff:    time.Second,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}

	assert.Equal(t, time.Second, c.CalculateBackoff(0))
	assert.Equal(t, time.Second, c.CalculateBackoff(1))
	assert.Equal(t, 2*time.Second, c.CalculateBackoff(2))
	assert.Equal(t, 4*time.Second, c.CalculateBackoff(3))
	assert.Equal(t, 8*time.Second, c.CalculateBackoff(4))
	// Capped by MaxBackoff.
	assert.Equal(t, 10*time.Second, c.CalculateBackoff(5))
	assert.Equal(t, 10*time.Second, c.CalculateBackoff(20))
}
