package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/chainflow/pkg/agent"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ids"
	"github.com/aretw0/chainflow/pkg/ports"
)

// Spec is the declaration an agent is built from.
type Spec struct {
	ID      string
	Name    string
	Params  []domain.Parameter
	Outputs []string
	Mapping map[string]string

	// With carries factory specific settings (template text, prompt, value...).
	With map[string]any

	IDs ids.Generator
}

// Options converts the common declarations into agent options.
func (s Spec) Options() []agent.Option {
	opts := []agent.Option{
		agent.WithParameters(s.Params...),
		agent.WithOutputKeys(s.Outputs...),
		agent.WithIDGenerator(s.IDs),
	}
	if s.ID != "" {
		opts = append(opts, agent.WithID(s.ID))
	}
	if s.Mapping != nil {
		opts = append(opts, agent.WithOutputMapping(s.Mapping))
	}
	return opts
}

// String returns a With value as a string.
func (s Spec) String(key string) string {
	v, ok := s.With[key]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Factory builds an agent from its declaration.
type Factory func(spec Spec) (ports.Agent, error)

// ToolFunction is a plain function exposed as an agent.
// It receives the bound variables and returns a single value.
type ToolFunction func(ctx context.Context, args map[string]any) (any, error)

// Registry maps agent type names to factories. It is passed explicitly to
// whatever compiles chains; there is no process-wide instance.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory. An existing factory with the same name is overwritten.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// RegisterFunc registers fn as a plain-value agent type.
func (r *Registry) RegisterFunc(name string, fn ToolFunction) {
	r.Register(name, func(spec Spec) (ports.Agent, error) {
		return agent.NewValue(nameOr(spec.Name, name), agent.ValueFunc(fn), spec.Options()...), nil
	})
}

// Build looks up a factory by name and builds the agent.
func (r *Registry) Build(name string, spec Spec) (ports.Agent, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAgent, name)
	}
	a, err := f(spec)
	if err != nil {
		return nil, fmt.Errorf("build agent %s: %w", name, err)
	}
	return a, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names lists the registered types, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
