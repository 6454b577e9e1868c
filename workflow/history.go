package workflow

import (
	"sort"
	"sync"
	"time"
)

// NodeExecutionRecord captures one node execution inside a run history.
type NodeExecutionRecord struct {
	NodeID     string         `json:"node_id"`
	NodeType   string         `json:"node_type"`
	Status     NodeStatus     `json:"status"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    time.Time      `json:"end_time"`
	Duration   time.Duration  `json:"duration"`
	Inputs     map[string]any `json:"inputs,omitempty"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	Error      string         `json:"error,omitempty"`
	SkipReason string         `json:"skip_reason,omitempty"`
}

// ExecutionHistory records the complete execution path of one workflow
// run. All methods are safe on a nil receiver so the engine can run
// without a history store attached.
type ExecutionHistory struct {
	ExecutionID string                 `json:"execution_id"`
	WorkflowID  string                 `json:"workflow_id"`
	StartTime   time.Time              `json:"start_time"`
	EndTime     time.Time              `json:"end_time"`
	Duration    time.Duration          `json:"duration"`
	Status      WorkflowStatus         `json:"status"`
	Nodes       []*NodeExecutionRecord `json:"nodes"`

	mu sync.RWMutex
}

// NewExecutionHistory creates a history record for a starting run.
func NewExecutionHistory(executionID, workflowID string) *ExecutionHistory {
	return &ExecutionHistory{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		StartTime:   time.Now().UTC(),
		Status:      WorkflowStatusRunning,
	}
}

// RecordNodeStart appends a RUNNING record for a node.
func (h *ExecutionHistory) RecordNodeStart(nodeID, nodeType string, inputs map[string]any) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Nodes = append(h.Nodes, &NodeExecutionRecord{
		NodeID:    nodeID,
		NodeType:  nodeType,
		Status:    NodeStatusRunning,
		StartTime: time.Now().UTC(),
		Inputs:    inputs,
	})
}

// RecordNodeEnd closes the most recent record for a node with its outcome.
func (h *ExecutionHistory) RecordNodeEnd(nodeID string, outputs map[string]any, err error) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.Nodes) - 1; i >= 0; i-- {
		record := h.Nodes[i]
		if record.NodeID != nodeID || record.Status != NodeStatusRunning {
			continue
		}
		record.EndTime = time.Now().UTC()
		record.Duration = record.EndTime.Sub(record.StartTime)
		if err != nil {
			record.Status = NodeStatusFailed
			record.Error = err.Error()
		} else {
			record.Status = NodeStatusCompleted
			record.Outputs = outputs
		}
		return
	}
}

// RecordNodeFail appends a FAILED record for a node that never started,
// such as one with no registered executor.
func (h *ExecutionHistory) RecordNodeFail(nodeID, nodeType string, err error) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now().UTC()
	record := &NodeExecutionRecord{
		NodeID:    nodeID,
		NodeType:  nodeType,
		Status:    NodeStatusFailed,
		StartTime: now,
		EndTime:   now,
	}
	if err != nil {
		record.Error = err.Error()
	}
	h.Nodes = append(h.Nodes, record)
}

// RecordNodeSkip appends a SKIPPED record for a node that never ran.
func (h *ExecutionHistory) RecordNodeSkip(nodeID, nodeType, reason string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now().UTC()
	h.Nodes = append(h.Nodes, &NodeExecutionRecord{
		NodeID:     nodeID,
		NodeType:   nodeType,
		Status:     NodeStatusSkipped,
		StartTime:  now,
		EndTime:    now,
		SkipReason: reason,
	})
}

// Finish stamps the run's terminal status and duration.
func (h *ExecutionHistory) Finish(status WorkflowStatus) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.EndTime = time.Now().UTC()
	h.Duration = h.EndTime.Sub(h.StartTime)
	h.Status = status
}

// NodeRecords returns a copy of the per-node records.
func (h *ExecutionHistory) NodeRecords() []*NodeExecutionRecord {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*NodeExecutionRecord, len(h.Nodes))
	copy(out, h.Nodes)
	return out
}

// HistoryStore keeps execution histories in memory, queryable by
// execution id, workflow id, and terminal status.
type HistoryStore struct {
	mu        sync.RWMutex
	histories map[string]*ExecutionHistory
}

// NewHistoryStore creates an empty history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{histories: make(map[string]*ExecutionHistory)}
}

// Save stores a finished history, keyed by execution id.
func (s *HistoryStore) Save(h *ExecutionHistory) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[h.ExecutionID] = h
}

// Get retrieves a history by execution id.
func (s *HistoryStore) Get(executionID string) (*ExecutionHistory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.histories[executionID]
	return h, ok
}

// List returns all histories ordered by start time.
func (s *HistoryStore) List() []*ExecutionHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ExecutionHistory, 0, len(s.histories))
	for _, h := range s.histories {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// ListByWorkflow returns the histories of one workflow ordered by start
// time.
func (s *HistoryStore) ListByWorkflow(workflowID string) []*ExecutionHistory {
	var out []*ExecutionHistory
	for _, h := range s.List() {
		if h.WorkflowID == workflowID {
			out = append(out, h)
		}
	}
	return out
}

// ListByStatus returns the histories with the given terminal status
// ordered by start time.
func (s *HistoryStore) ListByStatus(status WorkflowStatus) []*ExecutionHistory {
	var out []*ExecutionHistory
	for _, h := range s.List() {
		if h.Status == status {
			out = append(out, h)
		}
	}
	return out
}
