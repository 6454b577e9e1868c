package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NodeStatus is the per-node execution status.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// Terminal reports whether the status is a terminal node state.
func (s NodeStatus) Terminal() bool {
	switch s {
	case NodeStatusCompleted, NodeStatusFailed, NodeStatusSkipped:
		return true
	}
	return false
}

// WorkflowStatus is the overall execution status of a run.
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// Terminal reports whether the status is a terminal workflow state.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	}
	return false
}

// NodeExecutionState is the durable record of one node within one run:
// what it received, what it produced, and how it got there. It is mutated
// only by the engine through Start, Complete, Fail, and Skip.
type NodeExecutionState struct {
	NodeID      string         `json:"node_id"`
	Status      NodeStatus     `json:"status"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	Error       string         `json:"error,omitempty"`
	SkipReason  string         `json:"skip_reason,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	// Attempts counts failed attempts so far; it is incremented by Fail
	Attempts   int `json:"attempts"`
	MaxRetries int `json:"max_retries"`
}

// NewNodeExecutionState creates a PENDING state record for a node.
func NewNodeExecutionState(nodeID string, maxRetries int) *NodeExecutionState {
	return &NodeExecutionState{
		NodeID:     nodeID,
		Status:     NodeStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start transitions the node to RUNNING and records the resolved inputs
// and the start timestamp. Attempts are not incremented here; the count
// moves on Fail.
func (s *NodeExecutionState) Start(inputs map[string]any) {
	now := time.Now().UTC()
	s.Status = NodeStatusRunning
	s.Inputs = inputs
	s.StartedAt = &now
}

// Complete transitions the node to COMPLETED with its outputs.
func (s *NodeExecutionState) Complete(outputs map[string]any) {
	now := time.Now().UTC()
	s.Status = NodeStatusCompleted
	s.Outputs = outputs
	s.CompletedAt = &now
}

// Fail transitions the node to FAILED, records the error, and consumes
// one attempt.
func (s *NodeExecutionState) Fail(err error) {
	now := time.Now().UTC()
	s.Status = NodeStatusFailed
	if err != nil {
		s.Error = err.Error()
	}
	s.CompletedAt = &now
	s.Attempts++
}

// Skip transitions the node to SKIPPED. Legal straight from PENDING; a
// prior Start is not required.
func (s *NodeExecutionState) Skip(reason string) {
	now := time.Now().UTC()
	s.Status = NodeStatusSkipped
	s.SkipReason = reason
	s.CompletedAt = &now
}

// CanRetry reports whether the engine should re-attempt this node. A node
// with MaxRetries=2 is attempted three times in total: the initial
// attempt plus two retries.
func (s *NodeExecutionState) CanRetry() bool {
	return s.Status == NodeStatusFailed && s.Attempts <= s.MaxRetries
}

// WorkflowState is the durable record of one workflow run. Node state
// writes from concurrent layer goroutines are serialized behind its
// mutex.
type WorkflowState struct {
	WorkflowID  string                         `json:"workflow_id"`
	ExecutionID string                         `json:"execution_id"`
	Status      WorkflowStatus                 `json:"status"`
	NodeStates  map[string]*NodeExecutionState `json:"node_states"`
	Variables   map[string]any                 `json:"variables,omitempty"`
	StartedAt   *time.Time                     `json:"started_at,omitempty"`
	CompletedAt *time.Time                     `json:"completed_at,omitempty"`

	mu sync.RWMutex
}

// NewWorkflowState creates a PENDING run record with a fresh execution id.
func NewWorkflowState(workflowID string) *WorkflowState {
	return &WorkflowState{
		WorkflowID:  workflowID,
		ExecutionID: uuid.NewString(),
		Status:      WorkflowStatusPending,
		NodeStates:  make(map[string]*NodeExecutionState),
		Variables:   make(map[string]any),
	}
}

// InitializeNodes seeds PENDING entries for a known node id set before
// execution starts, so consumers can observe pending nodes the engine has
// not touched yet.
func (w *WorkflowState) InitializeNodes(ids []string, maxRetries int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range ids {
		if _, ok := w.NodeStates[id]; !ok {
			w.NodeStates[id] = NewNodeExecutionState(id, maxRetries)
		}
	}
}

// NodeState retrieves the state record for a node.
func (w *WorkflowState) NodeState(id string) (*NodeExecutionState, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.NodeStates[id]
	return s, ok
}

// NodeStatusOf returns the status of a node, or PENDING when the node has
// no state record yet.
func (w *WorkflowState) NodeStatusOf(id string) NodeStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if s, ok := w.NodeStates[id]; ok {
		return s.Status
	}
	return NodeStatusPending
}

// StartNode marks a node RUNNING, creating its state record lazily if the
// node was never initialized.
func (w *WorkflowState) StartNode(id string, inputs map[string]any, maxRetries int) *NodeExecutionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.NodeStates[id]
	if !ok {
		s = NewNodeExecutionState(id, maxRetries)
		w.NodeStates[id] = s
	}
	s.Start(inputs)
	return s
}

// CompleteNode marks a node COMPLETED with its outputs.
func (w *WorkflowState) CompleteNode(id string, outputs map[string]any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.NodeStates[id]; ok {
		s.Complete(outputs)
	}
}

// FailNode marks a node FAILED and consumes one attempt.
func (w *WorkflowState) FailNode(id string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.NodeStates[id]; ok {
		s.Fail(err)
	}
}

// SkipNode marks a node SKIPPED.
func (w *WorkflowState) SkipNode(id, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.NodeStates[id]; ok {
		s.Skip(reason)
	}
}

// NodeOutputs returns the outputs of a node if it completed.
func (w *WorkflowState) NodeOutputs(id string) (map[string]any, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.NodeStates[id]
	if !ok || s.Status != NodeStatusCompleted {
		return nil, false
	}
	return s.Outputs, true
}

// SetStatus transitions the overall run status, stamping start and
// completion times.
func (w *WorkflowState) SetStatus(status WorkflowStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now().UTC()
	switch status {
	case WorkflowStatusRunning:
		if w.StartedAt == nil {
			w.StartedAt = &now
		}
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		w.CompletedAt = &now
	}
	w.Status = status
}

// GetStatus returns the overall run status.
func (w *WorkflowState) GetStatus() WorkflowStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.Status
}

// IsComplete reports whether the run reached a terminal status.
func (w *WorkflowState) IsComplete() bool {
	return w.GetStatus().Terminal()
}

// SetVariable sets a run-scoped variable, overriding any graph variable
// of the same name.
func (w *WorkflowState) SetVariable(key string, value any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Variables[key] = value
}

// Variable retrieves a run-scoped variable.
func (w *WorkflowState) Variable(key string) (any, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v, ok := w.Variables[key]
	return v, ok
}

// VariablesSnapshot returns a copy of the run variables map.
func (w *WorkflowState) VariablesSnapshot() map[string]any {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]any, len(w.Variables))
	for k, v := range w.Variables {
		out[k] = v
	}
	return out
}

// NodeCanRetry reports whether a node has retry budget left.
func (w *WorkflowState) NodeCanRetry(id string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.NodeStates[id]
	return ok && s.CanRetry()
}

// NodeAttempts returns the failed attempt count of a node.
func (w *WorkflowState) NodeAttempts(id string) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if s, ok := w.NodeStates[id]; ok {
		return s.Attempts
	}
	return 0
}

// FailedNodes returns the ids of nodes that ended FAILED.
func (w *WorkflowState) FailedNodes() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var failed []string
	for id, s := range w.NodeStates {
		if s.Status == NodeStatusFailed {
			failed = append(failed, id)
		}
	}
	return failed
}

// PendingNodes returns the ids of nodes still PENDING.
func (w *WorkflowState) PendingNodes() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var pending []string
	for id, s := range w.NodeStates {
		if s.Status == NodeStatusPending {
			pending = append(pending, id)
		}
	}
	return pending
}
