package workflow

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/canvasflow-ai/canvasflow/types"
)

// registration pairs a factory with the schema captured at registration
// time from a probe instance.
type registration struct {
	factory Factory
	schema  NodeSchema
}

// Registry maps node type names to constructible implementations. It is an
// explicit instance passed to the engine by reference, never hidden global
// state, so independent engines and tests can carry independent registries.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	entries map[string]*registration
}

// NewRegistry creates an empty node type registry. A nil logger falls
// back to a no-op logger.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:  logger.With(zap.String("component", "node_registry")),
		entries: make(map[string]*registration),
	}
}

// Register registers a factory under a type name derived from the Go type
// of the node it constructs: every capital letter starts a new
// underscore-separated segment, so "HTTPNode" becomes "h_t_t_p_node".
// That rendering is part of the stored-workflow format and must not
// change. Returns the derived name.
func (r *Registry) Register(factory Factory) string {
	probe := factory("", nil)
	name := deriveTypeName(probe)
	r.RegisterNamed(name, factory)
	return name
}

// RegisterNamed registers a factory under an explicit type name.
// Re-registering an existing name overwrites the prior mapping and logs a
// warning rather than failing.
func (r *Registry) RegisterNamed(name string, factory Factory) {
	probe := factory("", nil)
	schema := probe.Schema()
	if schema.NodeType == "" {
		schema.NodeType = name
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		r.logger.Warn("node type already registered, overwriting",
			zap.String("node_type", name),
		)
	}
	r.entries[name] = &registration{factory: factory, schema: schema}
}

// Get retrieves a factory by type name.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return entry.factory, true
}

// GetRequired retrieves a factory by type name, failing with a
// not-registered error if absent.
func (r *Registry) GetRequired(name string) (Factory, error) {
	factory, ok := r.Get(name)
	if !ok {
		return nil, types.NewErrorf(types.ErrExecutorNotRegistered,
			"no node implementation registered for type %q", name)
	}
	return factory, nil
}

// Create constructs a node instance of the given type.
func (r *Registry) Create(name, nodeID string, config map[string]any) (Node, error) {
	factory, err := r.GetRequired(name)
	if err != nil {
		return nil, err
	}
	return factory(nodeID, config), nil
}

// Schema retrieves the declared schema of a registered type.
func (r *Registry) Schema(name string) (NodeSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return NodeSchema{}, false
	}
	return entry.schema, true
}

// ListNodes returns all registered type names, sorted.
func (r *Registry) ListNodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListCategories returns the distinct schema categories, sorted.
func (r *Registry) ListCategories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	for _, entry := range r.entries {
		if entry.schema.Category != "" {
			seen[entry.schema.Category] = true
		}
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}

// NodesByCategory returns the type names registered under a category,
// sorted.
func (r *Registry) NodesByCategory(category string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, entry := range r.entries {
		if entry.schema.Category == category {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Schemas returns the schemas of every registered type, ordered by type
// name.
func (r *Registry) Schemas() []NodeSchema {
	names := r.ListNodes()
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]NodeSchema, 0, len(names))
	for _, name := range names {
		if entry, ok := r.entries[name]; ok {
			schemas = append(schemas, entry.schema)
		}
	}
	return schemas
}

// Unregister removes a type. Returns false if it was not registered.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return false
	}
	delete(r.entries, name)
	return true
}

// Clear removes every registered type.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*registration)
}

// deriveTypeName converts the Go type name of a node implementation into
// the registry key: each capital rune, consecutive capitals included,
// opens a new snake_case segment.
func deriveTypeName(node Node) string {
	t := reflect.TypeOf(node)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	var b strings.Builder
	for i, r := range t.Name() {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
