package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/canvasflow-ai/canvasflow/workflow"
)

// RedisStore is a Redis-based implementation of Store for shared
// deployments. Graphs and states are stored as JSON values with set
// indexes for listing.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "canvasflow:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}, nil
}

// Close closes the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) graphKey(id string) string {
	return s.keyPrefix + "graph:" + id
}

func (s *RedisStore) graphIndexKey() string {
	return s.keyPrefix + "graphs"
}

func (s *RedisStore) stateKey(executionID string) string {
	return s.keyPrefix + "state:" + executionID
}

func (s *RedisStore) workflowStatesKey(workflowID string) string {
	return s.keyPrefix + "workflow:" + workflowID + ":states"
}

// SaveGraph stores a graph and indexes its id.
func (s *RedisStore) SaveGraph(ctx context.Context, graph *workflow.WorkflowGraph) error {
	if graph == nil {
		return ErrInvalidInput
	}
	data, err := json.Marshal(graph.ToDefinition())
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.graphKey(graph.ID()), data, 0)
	pipe.SAdd(ctx, s.graphIndexKey(), graph.ID())
	_, err = pipe.Exec(ctx)
	return err
}

// GetGraph loads a graph by id.
func (s *RedisStore) GetGraph(ctx context.Context, id string) (*workflow.WorkflowGraph, error) {
	data, err := s.client.Get(ctx, s.graphKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return workflow.FromJSON(data)
}

// DeleteGraph removes a graph and its index entry.
func (s *RedisStore) DeleteGraph(ctx context.Context, id string) error {
	removed, err := s.client.Del(ctx, s.graphKey(id)).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrNotFound
	}
	return s.client.SRem(ctx, s.graphIndexKey(), id).Err()
}

// ListGraphs returns the ids of all stored graphs.
func (s *RedisStore) ListGraphs(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.graphIndexKey()).Result()
}

// SaveState stores a run state and indexes it under its workflow, scored
// by start time so listings come back in execution order.
func (s *RedisStore) SaveState(ctx context.Context, state *workflow.WorkflowState) error {
	if state == nil {
		return ErrInvalidInput
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	score := float64(time.Now().UnixNano())
	if state.StartedAt != nil {
		score = float64(state.StartedAt.UnixNano())
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.stateKey(state.ExecutionID), data, 0)
	pipe.ZAdd(ctx, s.workflowStatesKey(state.WorkflowID), redis.Z{
		Score:  score,
		Member: state.ExecutionID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// GetState loads a run state by execution id.
func (s *RedisStore) GetState(ctx context.Context, executionID string) (*workflow.WorkflowState, error) {
	data, err := s.client.Get(ctx, s.stateKey(executionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var state workflow.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

// ListStates returns the run states of a workflow in execution order.
func (s *RedisStore) ListStates(ctx context.Context, workflowID string) ([]*workflow.WorkflowState, error) {
	execIDs, err := s.client.ZRange(ctx, s.workflowStatesKey(workflowID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*workflow.WorkflowState, 0, len(execIDs))
	for _, execID := range execIDs {
		state, err := s.GetState(ctx, execID)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, nil
}

// DeleteState removes a run state by execution id.
func (s *RedisStore) DeleteState(ctx context.Context, executionID string) error {
	state, err := s.GetState(ctx, executionID)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.stateKey(executionID))
	pipe.ZRem(ctx, s.workflowStatesKey(state.WorkflowID), executionID)
	_, err = pipe.Exec(ctx)
	return err
}
