package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/canvasflow-ai/canvasflow/workflow"
)

// graphRecord is the database row for a stored workflow graph. The full
// document lives in Definition; Name is denormalized for listings.
type graphRecord struct {
	ID         string `gorm:"primaryKey"`
	Name       string
	Definition []byte
	CreatedAt  int64 `gorm:"autoCreateTime:nano"`
	UpdatedAt  int64 `gorm:"autoUpdateTime:nano"`
}

func (graphRecord) TableName() string { return "workflow_graphs" }

// stateRecord is the database row for a stored run state.
type stateRecord struct {
	ExecutionID string `gorm:"primaryKey"`
	WorkflowID  string `gorm:"index"`
	Status      string
	Snapshot    []byte
	CreatedAt   int64 `gorm:"autoCreateTime:nano"`
	UpdatedAt   int64 `gorm:"autoUpdateTime:nano"`
}

func (stateRecord) TableName() string { return "workflow_states" }

// DBStore is a SQL implementation of Store backed by GORM. The sqlite
// driver runs without cgo, so ":memory:" is the default for embedded use;
// postgres and mysql serve shared deployments.
type DBStore struct {
	db *gorm.DB
}

// NewDBStore opens the configured database and migrates the schema.
func NewDBStore(cfg DatabaseConfig) (*DBStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&graphRecord{}, &stateRecord{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &DBStore{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *DBStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database health.
func (s *DBStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SaveGraph upserts a graph row.
func (s *DBStore) SaveGraph(ctx context.Context, graph *workflow.WorkflowGraph) error {
	if graph == nil {
		return ErrInvalidInput
	}
	data, err := json.Marshal(graph.ToDefinition())
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	record := graphRecord{
		ID:         graph.ID(),
		Name:       graph.Metadata().Name,
		Definition: data,
	}
	return s.db.WithContext(ctx).Save(&record).Error
}

// GetGraph loads a graph by id.
func (s *DBStore) GetGraph(ctx context.Context, id string) (*workflow.WorkflowGraph, error) {
	var record graphRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return workflow.FromJSON(record.Definition)
}

// DeleteGraph removes a graph row.
func (s *DBStore) DeleteGraph(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&graphRecord{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGraphs returns the ids of all stored graphs.
func (s *DBStore) ListGraphs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&graphRecord{}).Pluck("id", &ids).Error
	return ids, err
}

// SaveState upserts a run state row.
func (s *DBStore) SaveState(ctx context.Context, state *workflow.WorkflowState) error {
	if state == nil {
		return ErrInvalidInput
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	record := stateRecord{
		ExecutionID: state.ExecutionID,
		WorkflowID:  state.WorkflowID,
		Status:      string(state.GetStatus()),
		Snapshot:    data,
	}
	return s.db.WithContext(ctx).Save(&record).Error
}

// GetState loads a run state by execution id.
func (s *DBStore) GetState(ctx context.Context, executionID string) (*workflow.WorkflowState, error) {
	var record stateRecord
	err := s.db.WithContext(ctx).First(&record, "execution_id = ?", executionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var state workflow.WorkflowState
	if err := json.Unmarshal(record.Snapshot, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

// ListStates returns the run states of a workflow in insertion order.
func (s *DBStore) ListStates(ctx context.Context, workflowID string) ([]*workflow.WorkflowState, error) {
	var records []stateRecord
	err := s.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("created_at").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	out := make([]*workflow.WorkflowState, 0, len(records))
	for _, record := range records {
		var state workflow.WorkflowState
		if err := json.Unmarshal(record.Snapshot, &state); err != nil {
			return nil, fmt.Errorf("unmarshal state %s: %w", record.ExecutionID, err)
		}
		out = append(out, &state)
	}
	return out, nil
}

// DeleteState removes a run state row.
func (s *DBStore) DeleteState(ctx context.Context, executionID string) error {
	result := s.db.WithContext(ctx).Delete(&stateRecord{}, "execution_id = ?", executionID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
