package chainflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/chainflow/internal/logging"
	"github.com/aretw0/chainflow/pkg/adapters/lua"
	"github.com/aretw0/chainflow/pkg/adapters/memory"
	"github.com/aretw0/chainflow/pkg/chain"
	"github.com/aretw0/chainflow/pkg/definition"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ids"
	"github.com/aretw0/chainflow/pkg/observability"
	"github.com/aretw0/chainflow/pkg/ports"
	"github.com/aretw0/chainflow/pkg/registry"
	"github.com/aretw0/chainflow/pkg/session"
)

// ErrChainNotFound is returned when no definition carries the requested name.
var ErrChainNotFound = errors.New("chain not found")

// Engine is the high-level entry point for the chainflow library.
// It owns the chain definitions and drives runs through a session manager.
type Engine struct {
	mu   sync.RWMutex
	defs map[string]*definition.Definition

	registry  *registry.Registry
	store     ports.SnapshotStore
	locker    ports.DistributedLocker
	expr      ports.ExpressionEngine
	chat      ports.ChatClient
	ids       ids.Generator
	logger    *slog.Logger
	metrics   *observability.Metrics
	listeners []chain.EventListener

	compiler *definition.Compiler
	sessions *session.Manager
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore sets the snapshot store. Defaults to an in-memory store.
func WithStore(store ports.SnapshotStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithRegistry sets the agent registry. Built-in agent types are registered
// into it unless already present.
func WithRegistry(reg *registry.Registry) Option {
	return func(e *Engine) {
		e.registry = reg
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics attaches a metrics listener to every chain the engine builds.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithExpressionEngine replaces the Lua engine used by expression routers and conditions.
func WithExpressionEngine(expr ports.ExpressionEngine) Option {
	return func(e *Engine) {
		e.expr = expr
	}
}

// WithChatClient sets the client used by chat agents and chat routers.
func WithChatClient(chat ports.ChatClient) Option {
	return func(e *Engine) {
		e.chat = chat
	}
}

// WithIDGenerator sets the generator for run, chain and node ids.
func WithIDGenerator(gen ids.Generator) Option {
	return func(e *Engine) {
		e.ids = gen
	}
}

// WithLocker enables distributed locking of runs.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithEventListener subscribes fn to every event of every built chain.
func WithEventListener(fn chain.EventListener) Option {
	return func(e *Engine) {
		e.listeners = append(e.listeners, fn)
	}
}

// WithDefinitions preloads chain definitions.
func WithDefinitions(defs ...*definition.Definition) Option {
	return func(e *Engine) {
		for _, def := range defs {
			e.defs[def.ID] = def
		}
	}
}

// New initializes an Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{defs: make(map[string]*definition.Definition)}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.store == nil {
		e.store = memory.NewStore()
	}
	if e.ids == nil {
		e.ids = ids.Default
	}
	if e.expr == nil {
		e.expr = lua.New(lua.WithLogger(e.logger))
	}
	if e.registry == nil {
		e.registry = registry.NewRegistry()
	}
	if !e.registry.Has(registry.TypeConstant) {
		registry.RegisterBuiltins(e.registry, e.chat)
	}

	for id, def := range e.defs {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("chain %q: %w", id, err)
		}
	}

	e.compiler = &definition.Compiler{
		Registry: e.registry,
		Engine:   e.expr,
		Chat:     e.chat,
		IDs:      e.ids,
		Logger:   e.logger,
	}

	sessionOpts := []session.Option{session.WithLogger(e.logger)}
	if e.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(e.locker))
	}
	e.sessions = session.NewManager(e.store, sessionOpts...)
	return e, nil
}

// LoadDir adds every definition found in dir.
func (e *Engine) LoadDir(dir string) error {
	defs, err := definition.LoadDir(dir)
	if err != nil {
		return err
	}
	for _, id := range definition.IDs(defs) {
		if err := e.AddDefinition(defs[id]); err != nil {
			return err
		}
	}
	return nil
}

// AddDefinition registers def under its id.
func (e *Engine) AddDefinition(def *definition.Definition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("%w: definition without id", domain.ErrInvalidDefinition)
	}
	if err := def.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.defs[def.ID]; dup {
		return fmt.Errorf("%w: chain %q", domain.ErrDuplicateID, def.ID)
	}
	e.defs[def.ID] = def
	e.logger.Debug("definition added", "chain", def.ID, "kind", def.Kind)
	return nil
}

// Definitions returns the sorted ids of the known chains.
func (e *Engine) Definitions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return definition.IDs(e.defs)
}

// Definition returns the definition registered under name.
func (e *Engine) Definition(name string) (*definition.Definition, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrChainNotFound, name)
	}
	return def, nil
}

// Build compiles the named chain and attaches the engine's listeners.
func (e *Engine) Build(name string, opts ...chain.Option) (chain.Runnable, error) {
	def, err := e.Definition(name)
	if err != nil {
		return nil, err
	}
	r, err := e.compiler.Compile(def, opts...)
	if err != nil {
		return nil, err
	}
	c := r.Core()
	c.OnEvent(domain.EventAny, observability.LogListener(e.logger))
	if e.metrics != nil {
		e.metrics.Attach(c)
	}
	for _, fn := range e.listeners {
		c.OnEvent(domain.EventAny, fn)
	}
	return r, nil
}

// Start builds the named chain, executes it with vars and persists the run.
func (e *Engine) Start(ctx context.Context, name string, vars map[string]any) (*domain.Snapshot, error) {
	r, err := e.Build(name)
	if err != nil {
		return nil, err
	}
	return e.sessions.Start(ctx, r, vars)
}

// Resume continues a suspended run with vars. The chain is rebuilt from the
// definition named in the stored snapshot.
func (e *Engine) Resume(ctx context.Context, runID string, vars map[string]any) (*domain.Snapshot, error) {
	stored, err := e.sessions.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	r, err := e.Build(stored.Name)
	if err != nil {
		return nil, err
	}
	return e.sessions.Resume(ctx, runID, r, vars)
}

// Inspect returns the persisted snapshot of a run.
func (e *Engine) Inspect(ctx context.Context, runID string) (*domain.Snapshot, error) {
	return e.sessions.Load(ctx, runID)
}

// Runs returns every persisted run.
func (e *Engine) Runs(ctx context.Context) ([]*domain.Snapshot, error) {
	return e.sessions.Summaries(ctx)
}

// Delete removes a persisted run.
func (e *Engine) Delete(ctx context.Context, runID string) error {
	return e.sessions.Delete(ctx, runID)
}

// Sessions exposes the underlying session manager.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Registry exposes the agent registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}
