package workflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/canvasflow-ai/canvasflow/internal/metrics"
	"github.com/canvasflow-ai/canvasflow/types"
)

// RetryConfig defines the backoff between node retry attempts.
type RetryConfig struct {
	// InitialBackoff is the delay before the first retry (default: 1s)
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`
	// MaxBackoff caps the delay between retries (default: 30s)
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff"`
	// BackoffMultiplier is the exponential growth factor (default: 2.0)
	BackoffMultiplier float64 `json:"backoff_multiplier" yaml:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry backoff configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// CalculateBackoff returns the backoff duration before the given retry
// attempt, counting from 1.
func (c RetryConfig) CalculateBackoff(attempt int) time.Duration {
	if attempt <= 1 {
		return c.InitialBackoff
	}
	backoff := c.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * c.BackoffMultiplier)
		if backoff > c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return backoff
}

// Engine drives a workflow graph to completion. It computes the execution
// order once up front, runs each layer's nodes concurrently behind a
// barrier, resolves node inputs from upstream outputs, and records
// everything into a WorkflowState.
//
// The graph is treated as read-only for the duration of a run.
type Engine struct {
	registry  *Registry
	logger    *zap.Logger
	collector *metrics.Collector
	history   *HistoryStore
	tracer    trace.Tracer

	nodeTimeout    time.Duration
	maxRetries     int
	retry          RetryConfig
	maxConcurrency int
	limiter        *rate.Limiter
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithNodeTimeout bounds each node execution. Zero disables the bound.
func WithNodeTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.nodeTimeout = d }
}

// WithMaxRetries sets the default retry budget for nodes whose config
// does not carry a "max_retries" key.
func WithMaxRetries(n int) EngineOption {
	return func(e *Engine) { e.maxRetries = n }
}

// WithRetryConfig sets the backoff applied between retry attempts.
func WithRetryConfig(c RetryConfig) EngineOption {
	return func(e *Engine) { e.retry = c }
}

// WithMaxConcurrency caps how many nodes of a layer run at once. Zero
// means layer width.
func WithMaxConcurrency(n int) EngineOption {
	return func(e *Engine) { e.maxConcurrency = n }
}

// WithRateLimit throttles node launches across the whole run, useful when
// node implementations call rate-limited upstream APIs.
func WithRateLimit(rps float64, burst int) EngineOption {
	return func(e *Engine) { e.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithMetrics attaches a Prometheus collector to the engine.
func WithMetrics(c *metrics.Collector) EngineOption {
	return func(e *Engine) { e.collector = c }
}

// WithHistoryStore attaches an execution history store to the engine.
func WithHistoryStore(s *HistoryStore) EngineOption {
	return func(e *Engine) { e.history = s }
}

// NewEngine creates an execution engine bound to a node registry. A nil
// logger falls back to a no-op logger.
func NewEngine(registry *Registry, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		registry: registry,
		logger:   logger.With(zap.String("component", "workflow_engine")),
		tracer:   otel.Tracer("github.com/canvasflow-ai/canvasflow/workflow"),
		retry:    DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the graph to a terminal state and returns the run record.
// Node-level failures never surface as an error here; they are captured
// in the returned WorkflowState and drive retry and skip logic. The error
// return is reserved for programming errors: a nil graph, or a graph
// whose edge set contains a cycle.
func (e *Engine) Execute(ctx context.Context, graph *WorkflowGraph, initialVars map[string]any) (*WorkflowState, error) {
	if graph == nil {
		return nil, types.NewError(types.ErrInvalidGraph, "graph is nil")
	}
	order, err := graph.ExecutionOrder()
	if err != nil {
		return nil, err
	}

	state := NewWorkflowState(graph.ID())
	for k, v := range graph.Variables() {
		state.Variables[k] = v
	}
	for k, v := range initialVars {
		state.Variables[k] = v
	}
	state.InitializeNodes(graph.NodeIDs(), e.maxRetries)
	for _, id := range graph.NodeIDs() {
		if node, ok := graph.Node(id); ok {
			if s, found := state.NodeState(id); found {
				s.MaxRetries = e.maxRetriesFor(node)
			}
		}
	}

	ctx, span := e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("workflow.id", graph.ID()),
		attribute.String("execution.id", state.ExecutionID),
		attribute.Int("workflow.nodes", graph.NodeCount()),
		attribute.Int("workflow.layers", len(order)),
	))
	defer span.End()

	start := time.Now()
	e.collector.WorkflowStarted()
	state.SetStatus(WorkflowStatusRunning)
	history := e.beginHistory(graph, state)

	e.logger.Info("starting workflow execution",
		zap.String("workflow_id", graph.ID()),
		zap.String("execution_id", state.ExecutionID),
		zap.Int("nodes", graph.NodeCount()),
		zap.Int("layers", len(order)),
	)

	cancelled := false
	for _, layer := range order {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		runnable := e.partitionLayer(graph, state, layer, history)
		if len(runnable) == 0 {
			continue
		}
		e.collector.LayerLaunched(len(runnable))

		g := new(errgroup.Group)
		if e.maxConcurrency > 0 {
			g.SetLimit(e.maxConcurrency)
		}
		for _, nodeID := range runnable {
			id := nodeID
			g.Go(func() error {
				if e.limiter != nil {
					if err := e.limiter.Wait(ctx); err != nil {
						if ctx.Err() != nil {
							state.SkipNode(id, "workflow cancelled")
							return nil
						}
						// Wait also errors without cancellation when a
						// single launch exceeds the limiter's burst.
						ferr := types.NewError(types.ErrInvalidConfig,
							"rate limiter rejected node launch").WithNode(id).WithCause(err)
						state.FailNode(id, ferr)
						if node, ok := graph.Node(id); ok {
							history.RecordNodeFail(id, node.Type, ferr)
							e.collector.NodeFinished(node.Type, string(NodeStatusFailed), 0)
						}
						e.logger.Error("rate limiter rejected node launch",
							zap.String("node_id", id),
							zap.Error(err),
						)
						return nil
					}
				}
				e.runNode(ctx, graph, id, state, history)
				return nil
			})
		}
		// Layer barrier: a node never starts before every dependency
		// reached a terminal state.
		_ = g.Wait()
	}

	duration := time.Since(start)
	switch {
	case cancelled || ctx.Err() != nil:
		for _, id := range state.PendingNodes() {
			state.SkipNode(id, "workflow cancelled")
		}
		state.SetStatus(WorkflowStatusCancelled)
		span.SetStatus(codes.Error, "cancelled")
	case len(state.FailedNodes()) > 0:
		state.SetStatus(WorkflowStatusFailed)
		span.SetStatus(codes.Error, "one or more nodes failed")
	default:
		state.SetStatus(WorkflowStatusCompleted)
		span.SetStatus(codes.Ok, "")
	}

	e.collector.WorkflowFinished(string(state.GetStatus()), duration)
	e.finishHistory(history, state)
	e.logger.Info("workflow execution finished",
		zap.String("execution_id", state.ExecutionID),
		zap.String("status", string(state.GetStatus())),
		zap.Duration("duration", duration),
		zap.Strings("failed_nodes", state.FailedNodes()),
	)
	return state, nil
}

// partitionLayer skips the layer's nodes that must not run and returns
// the ids that should. A node is skipped when it is disabled or when an
// enabled upstream edge leads from a node that did not complete; skips
// therefore cascade transitively, so a node never runs with a missing
// required input.
func (e *Engine) partitionLayer(graph *WorkflowGraph, state *WorkflowState, layer []string, history *ExecutionHistory) []string {
	var runnable []string
	for _, id := range layer {
		node, ok := graph.Node(id)
		if !ok {
			continue
		}
		if reason, skip := e.skipReason(graph, state, node); skip {
			state.SkipNode(id, reason)
			history.RecordNodeSkip(id, node.Type, reason)
			e.logger.Debug("skipping node",
				zap.String("node_id", id),
				zap.String("reason", reason),
			)
			continue
		}
		runnable = append(runnable, id)
	}
	return runnable
}

// skipReason decides whether a node must be skipped instead of executed.
// Edges from disabled source nodes do not gate their dependents; a
// disabled node is invisible as a dependency.
func (e *Engine) skipReason(graph *WorkflowGraph, state *WorkflowState, node *WorkflowNode) (string, bool) {
	if node.Disabled {
		return "node disabled", true
	}
	for _, edge := range graph.IncomingEdges(node.ID) {
		if edge.Disabled {
			continue
		}
		if src, ok := graph.Node(edge.Source); ok && src.Disabled {
			continue
		}
		switch state.NodeStatusOf(edge.Source) {
		case NodeStatusCompleted:
		case NodeStatusFailed:
			return "upstream node " + edge.Source + " failed", true
		case NodeStatusSkipped:
			return "upstream node " + edge.Source + " was skipped", true
		default:
			return "upstream node " + edge.Source + " did not finish", true
		}
	}
	return "", false
}

// runNode drives a single node through its state machine, including the
// retry loop and the timeout race.
func (e *Engine) runNode(ctx context.Context, graph *WorkflowGraph, nodeID string, state *WorkflowState, history *ExecutionHistory) {
	node, ok := graph.Node(nodeID)
	if !ok {
		return
	}
	log := e.logger.With(
		zap.String("node_id", nodeID),
		zap.String("node_type", node.Type),
	)

	ctx, span := e.tracer.Start(ctx, "workflow.node", trace.WithAttributes(
		attribute.String("node.id", nodeID),
		attribute.String("node.type", node.Type),
	))
	defer span.End()

	factory, err := e.registry.GetRequired(node.Type)
	if err != nil {
		state.FailNode(nodeID, err)
		history.RecordNodeFail(nodeID, node.Type, err)
		e.collector.NodeFinished(node.Type, string(NodeStatusFailed), 0)
		span.SetStatus(codes.Error, err.Error())
		log.Error("no executor registered for node", zap.Error(err))
		return
	}
	instance := factory(node.ID, node.Config)
	inputs := e.resolveInputs(graph, state, node)
	maxRetries := e.maxRetriesFor(node)

	start := time.Now()
	history.RecordNodeStart(nodeID, node.Type, inputs)
	var lastErr error
	for {
		state.StartNode(nodeID, inputs, maxRetries)
		outputs, execErr := e.invoke(ctx, instance, node, inputs)
		if execErr == nil {
			state.CompleteNode(nodeID, outputs)
			history.RecordNodeEnd(nodeID, outputs, nil)
			e.collector.NodeFinished(node.Type, string(NodeStatusCompleted), time.Since(start))
			span.SetStatus(codes.Ok, "")
			log.Debug("node completed",
				zap.Duration("duration", time.Since(start)),
				zap.Int("attempts", state.NodeAttempts(nodeID)+1),
			)
			return
		}
		lastErr = execErr
		state.FailNode(nodeID, execErr)
		if ctx.Err() != nil || !state.NodeCanRetry(nodeID) {
			break
		}

		attempt := state.NodeAttempts(nodeID)
		e.collector.NodeRetried(node.Type)
		backoff := e.retry.CalculateBackoff(attempt)
		log.Warn("node failed, retrying",
			zap.Error(execErr),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			e.logger.Debug("retry wait interrupted by cancellation", zap.String("node_id", nodeID))
			goto terminal
		}
	}

terminal:
	history.RecordNodeEnd(nodeID, nil, lastErr)
	e.collector.NodeFinished(node.Type, string(NodeStatusFailed), time.Since(start))
	span.SetStatus(codes.Error, lastErr.Error())
	log.Error("node failed terminally",
		zap.Error(lastErr),
		zap.Int("attempts", state.NodeAttempts(nodeID)),
	)
}

// invoke races the node's Execute call against the per-node timeout. The
// race is owned by the engine so that an implementation that ignores ctx
// still cannot stall the run; its goroutine is abandoned on timeout.
func (e *Engine) invoke(ctx context.Context, instance Node, node *WorkflowNode, inputs map[string]any) (map[string]any, error) {
	timeout := e.nodeTimeoutFor(node)
	if timeout <= 0 {
		return instance.Execute(ctx, inputs)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		outputs map[string]any
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outputs, err := instance.Execute(ctx, inputs)
		done <- result{outputs, err}
	}()

	select {
	case r := <-done:
		return r.outputs, r.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, types.NewErrorf(types.ErrNodeTimeout,
				"node timed out after %s", timeout).WithNode(node.ID).WithRetryable(true)
		}
		return nil, types.NewError(types.ErrExecutionCancelled, "execution cancelled").WithNode(node.ID).WithCause(ctx.Err())
	}
}

// resolveInputs merges run variables with the outputs of every completed
// predecessor connected by an enabled edge. The value is keyed by the
// edge's target port; an empty target port falls back to the source port
// name, and an edge with no ports at all merges the whole upstream output
// map. A source port the predecessor never produced is an omission, not
// an error.
func (e *Engine) resolveInputs(graph *WorkflowGraph, state *WorkflowState, node *WorkflowNode) map[string]any {
	inputs := state.VariablesSnapshot()
	for _, edge := range graph.IncomingEdges(node.ID) {
		if edge.Disabled {
			continue
		}
		outputs, ok := state.NodeOutputs(edge.Source)
		if !ok {
			continue
		}
		value := any(outputs)
		if edge.SourcePort != "" {
			v, produced := outputs[edge.SourcePort]
			if !produced {
				continue
			}
			value = v
		}
		key := edge.TargetPort
		if key == "" {
			key = edge.SourcePort
		}
		if key == "" {
			for k, v := range outputs {
				inputs[k] = v
			}
			continue
		}
		inputs[key] = value
	}
	return inputs
}

// maxRetriesFor reads the node's "max_retries" config override, falling
// back to the engine default.
func (e *Engine) maxRetriesFor(node *WorkflowNode) int {
	if node.Config != nil {
		if n, err := IntConfig(node.Config, "max_retries"); err == nil && n >= 0 {
			return n
		}
	}
	return e.maxRetries
}

// nodeTimeoutFor reads the node's "timeout_seconds" config override,
// falling back to the engine default.
func (e *Engine) nodeTimeoutFor(node *WorkflowNode) time.Duration {
	if node.Config != nil {
		if n, err := IntConfig(node.Config, "timeout_seconds"); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return e.nodeTimeout
}

func (e *Engine) beginHistory(graph *WorkflowGraph, state *WorkflowState) *ExecutionHistory {
	if e.history == nil {
		return nil
	}
	return NewExecutionHistory(state.ExecutionID, graph.ID())
}

func (e *Engine) finishHistory(history *ExecutionHistory, state *WorkflowState) {
	if history == nil {
		return
	}
	history.Finish(state.GetStatus())
	e.history.Save(history)
}
