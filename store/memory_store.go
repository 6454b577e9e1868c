package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/canvasflow-ai/canvasflow/workflow"
)

// MemoryStore is an in-memory implementation of Store. Suitable for
// development and tests; contents are lost on process exit.
type MemoryStore struct {
	mu     sync.RWMutex
	graphs map[string][]byte
	states map[string][]byte
	// byWorkflow indexes execution ids per workflow id
	byWorkflow map[string][]string
	closed     bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		graphs:     make(map[string][]byte),
		states:     make(map[string][]byte),
		byWorkflow: make(map[string][]string),
	}
}

// Close marks the store closed. Subsequent calls fail with ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks the store is usable.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveGraph stores a graph, replacing any prior version.
func (s *MemoryStore) SaveGraph(ctx context.Context, graph *workflow.WorkflowGraph) error {
	if graph == nil {
		return ErrInvalidInput
	}
	data, err := json.Marshal(graph.ToDefinition())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.graphs[graph.ID()] = data
	return nil
}

// GetGraph loads a graph by id.
func (s *MemoryStore) GetGraph(ctx context.Context, id string) (*workflow.WorkflowGraph, error) {
	s.mu.RLock()
	data, ok := s.graphs[id]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrStoreClosed
	}
	if !ok {
		return nil, ErrNotFound
	}
	return workflow.FromJSON(data)
}

// DeleteGraph removes a graph by id.
func (s *MemoryStore) DeleteGraph(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.graphs[id]; !ok {
		return ErrNotFound
	}
	delete(s.graphs, id)
	return nil
}

// ListGraphs returns the ids of all stored graphs.
func (s *MemoryStore) ListGraphs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	ids := make([]string, 0, len(s.graphs))
	for id := range s.graphs {
		ids = append(ids, id)
	}
	return ids, nil
}

// SaveState stores a run state, replacing any prior snapshot.
func (s *MemoryStore) SaveState(ctx context.Context, state *workflow.WorkflowState) error {
	if state == nil {
		return ErrInvalidInput
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.states[state.ExecutionID]; !ok {
		s.byWorkflow[state.WorkflowID] = append(s.byWorkflow[state.WorkflowID], state.ExecutionID)
	}
	s.states[state.ExecutionID] = data
	return nil
}

// GetState loads a run state by execution id.
func (s *MemoryStore) GetState(ctx context.Context, executionID string) (*workflow.WorkflowState, error) {
	s.mu.RLock()
	data, ok := s.states[executionID]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrStoreClosed
	}
	if !ok {
		return nil, ErrNotFound
	}
	var state workflow.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// ListStates returns every run state recorded for a workflow.
func (s *MemoryStore) ListStates(ctx context.Context, workflowID string) ([]*workflow.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	var out []*workflow.WorkflowState
	for _, execID := range s.byWorkflow[workflowID] {
		data, ok := s.states[execID]
		if !ok {
			continue
		}
		var state workflow.WorkflowState
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, err
		}
		out = append(out, &state)
	}
	return out, nil
}

// DeleteState removes a run state by execution id.
func (s *MemoryStore) DeleteState(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.states[executionID]; !ok {
		return ErrNotFound
	}
	delete(s.states, executionID)
	return nil
}
