// Package store provides persistent storage for workflow graphs and run
// states, keyed by id.
//
// Supported backends:
//   - Memory: for development and testing (default)
//   - Redis: for shared deployments
//   - Database: sqlite, postgres, or mysql through GORM
package store

import (
	"context"
	"errors"
	"time"

	"github.com/canvasflow-ai/canvasflow/workflow"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend.
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeDatabase StoreType = "database"
)

// GraphStore persists workflow graphs keyed by graph id.
type GraphStore interface {
	SaveGraph(ctx context.Context, graph *workflow.WorkflowGraph) error
	GetGraph(ctx context.Context, id string) (*workflow.WorkflowGraph, error)
	DeleteGraph(ctx context.Context, id string) error
	ListGraphs(ctx context.Context) ([]string, error)
}

// StateStore persists workflow run states keyed by execution id.
type StateStore interface {
	SaveState(ctx context.Context, state *workflow.WorkflowState) error
	GetState(ctx context.Context, executionID string) (*workflow.WorkflowState, error)
	ListStates(ctx context.Context, workflowID string) ([]*workflow.WorkflowState, error)
	DeleteState(ctx context.Context, executionID string) error
}

// Store is the combined persistence interface.
type Store interface {
	GraphStore
	StateStore

	// Close releases backend resources
	Close() error
	// Ping checks backend health
	Ping(ctx context.Context) error
}

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr" env:"ADDR"`
	Password  string `json:"password" yaml:"password" env:"PASSWORD"`
	DB        int    `json:"db" yaml:"db" env:"DB"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig contains SQL database configuration.
type DatabaseConfig struct {
	// Driver is one of sqlite, postgres, mysql
	Driver string `json:"driver" yaml:"driver" env:"DRIVER"`
	// DSN is the driver-specific data source name. For sqlite this is a
	// file path, or ":memory:" for an in-process database.
	DSN             string        `json:"dsn" yaml:"dsn" env:"DSN"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// Config is the configuration for all store implementations.
type Config struct {
	Type     StoreType      `json:"type" yaml:"type" env:"TYPE"`
	Redis    RedisConfig    `json:"redis" yaml:"redis" env:"REDIS"`
	Database DatabaseConfig `json:"database" yaml:"database" env:"DATABASE"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Type: StoreTypeMemory,
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "canvasflow:",
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          ":memory:",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
	}
}
