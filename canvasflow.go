// Package canvasflow provides a top-level convenience entry point for
// running workflow graphs with minimal boilerplate.
//
// Usage:
//
//	import "github.com/canvasflow-ai/canvasflow"
//
//	rt, err := canvasflow.New(canvasflow.WithConfigFile("canvasflow.yaml"))
//	rt.Registry().Register(myNodeFactory)
//	state, err := rt.Run(ctx, graph, nil)
//
// The runtime assembles the configuration loader, logger, telemetry,
// persistence, node registry, and execution engine. Every piece can be
// replaced through an option; components left unset are built from
// configuration defaults.
package canvasflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/canvasflow-ai/canvasflow/config"
	"github.com/canvasflow-ai/canvasflow/internal/metrics"
	"github.com/canvasflow-ai/canvasflow/internal/telemetry"
	"github.com/canvasflow-ai/canvasflow/store"
	"github.com/canvasflow-ai/canvasflow/workflow"
)

// Runtime bundles the engine with its supporting components.
type Runtime struct {
	cfg       *config.Config
	logger    *zap.Logger
	ownLogger bool
	registry  *workflow.Registry
	engine    *workflow.Engine
	store     store.Store
	history   *workflow.HistoryStore
	collector *metrics.Collector
	providers *telemetry.Providers
}

// Option configures the runtime created by [New].
type Option func(*options)

type options struct {
	cfg              *config.Config
	configPath       string
	logger           *zap.Logger
	store            store.Store
	registry         *workflow.Registry
	metricsNamespace string
	disableMetrics   bool
}

// WithConfig supplies a pre-built configuration, skipping the loader.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithConfigFile loads configuration from a YAML file with environment
// variable overrides.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithLogger sets a custom zap logger. The runtime will not close it.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithStore sets a pre-built persistence backend, overriding the store
// section of the configuration.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithRegistry sets a pre-populated node registry.
func WithRegistry(r *workflow.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithMetricsNamespace sets the Prometheus namespace for engine metrics.
// The default is "canvasflow".
func WithMetricsNamespace(ns string) Option {
	return func(o *options) { o.metricsNamespace = ns }
}

// WithoutMetrics disables Prometheus collector registration. Useful when
// several runtimes share one process.
func WithoutMetrics() Option {
	return func(o *options) { o.disableMetrics = true }
}

// New assembles a Runtime. Components not overridden by options are built
// from the resolved configuration.
func New(opts ...Option) (*Runtime, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		loader := config.NewLoader()
		if o.configPath != "" {
			loader = loader.WithConfigPath(o.configPath)
		}
		loaded, err := loader.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rt := &Runtime{cfg: cfg}

	rt.logger = o.logger
	if rt.logger == nil {
		rt.logger = config.BuildLogger(cfg.Log)
		rt.ownLogger = true
	}

	providers, err := telemetry.Init(cfg.Telemetry, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	rt.providers = providers

	rt.store = o.store
	if rt.store == nil {
		s, err := store.New(cfg.Store, rt.logger)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		rt.store = s
	}

	rt.registry = o.registry
	if rt.registry == nil {
		rt.registry = workflow.NewRegistry(rt.logger)
	}

	if !o.disableMetrics {
		ns := o.metricsNamespace
		if ns == "" {
			ns = "canvasflow"
		}
		rt.collector = metrics.NewCollector(ns, rt.logger)
	}

	rt.history = workflow.NewHistoryStore()

	engineOpts := []workflow.EngineOption{
		workflow.WithMaxRetries(cfg.Engine.MaxRetries),
		workflow.WithHistoryStore(rt.history),
	}
	if cfg.Engine.NodeTimeout > 0 {
		engineOpts = append(engineOpts, workflow.WithNodeTimeout(cfg.Engine.NodeTimeout))
	}
	if cfg.Engine.MaxConcurrency > 0 {
		engineOpts = append(engineOpts, workflow.WithMaxConcurrency(cfg.Engine.MaxConcurrency))
	}
	if cfg.Engine.RateLimit > 0 {
		engineOpts = append(engineOpts, workflow.WithRateLimit(cfg.Engine.RateLimit, cfg.Engine.RateBurst))
	}
	if cfg.Engine.InitialBackoff > 0 {
		engineOpts = append(engineOpts, workflow.WithRetryConfig(workflow.RetryConfig{
			InitialBackoff:    cfg.Engine.InitialBackoff,
			MaxBackoff:        cfg.Engine.MaxBackoff,
			BackoffMultiplier: cfg.Engine.BackoffMultiplier,
		}))
	}
	if rt.collector != nil {
		engineOpts = append(engineOpts, workflow.WithMetrics(rt.collector))
	}

	rt.engine = workflow.NewEngine(rt.registry, rt.logger, engineOpts...)
	return rt, nil
}

// Registry returns the node registry for registering node types.
func (rt *Runtime) Registry() *workflow.Registry { return rt.registry }

// Engine returns the execution engine.
func (rt *Runtime) Engine() *workflow.Engine { return rt.engine }

// Store returns the persistence backend.
func (rt *Runtime) Store() store.Store { return rt.store }

// Logger returns the runtime logger.
func (rt *Runtime) Logger() *zap.Logger { return rt.logger }

// History returns the in-process execution history store.
func (rt *Runtime) History() *workflow.HistoryStore { return rt.history }

// Config returns the resolved configuration.
func (rt *Runtime) Config() *config.Config { return rt.cfg }

// Run executes a graph and persists the final run state.
func (rt *Runtime) Run(ctx context.Context, graph *workflow.WorkflowGraph, vars map[string]any) (*workflow.WorkflowState, error) {
	state, err := rt.engine.Execute(ctx, graph, vars)
	if err != nil {
		return state, err
	}
	if saveErr := rt.store.SaveState(ctx, state); saveErr != nil {
		rt.logger.Warn("failed to persist run state",
			zap.String("execution_id", state.ExecutionID),
			zap.Error(saveErr))
	}
	return state, nil
}

// Close flushes telemetry and releases the store. Loggers supplied through
// WithLogger are left open.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if err := rt.providers.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.ownLogger {
		_ = rt.logger.Sync()
	}
	return errors.Join(errs...)
}
