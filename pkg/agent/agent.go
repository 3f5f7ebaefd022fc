package agent

import (
	"sync"

	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ids"
)

// Base carries the identity and declarations shared by every agent.
// Embed it and implement Execute.
type Base struct {
	id          string
	name        string
	description string
	params      []domain.Parameter
	outputKeys  []string
	mapping     map[string]string
	gen         ids.Generator
	memory      *sync.Map
}

// Option configures a Base.
type Option func(*Base)

// WithID fixes the agent id instead of generating one.
func WithID(id string) Option {
	return func(b *Base) {
		b.id = id
	}
}

// WithIDGenerator injects the generator used for the agent id.
func WithIDGenerator(gen ids.Generator) Option {
	return func(b *Base) {
		if gen != nil {
			b.gen = gen
		}
	}
}

// WithDescription documents the agent.
func WithDescription(desc string) Option {
	return func(b *Base) {
		b.description = desc
	}
}

// WithParameters declares the input parameters.
func WithParameters(params ...domain.Parameter) Option {
	return func(b *Base) {
		b.params = append(b.params, params...)
	}
}

// WithOutputKeys declares the output keys materialized into chain memory.
func WithOutputKeys(keys ...string) Option {
	return func(b *Base) {
		b.outputKeys = append(b.outputKeys, keys...)
	}
}

// WithOutputMapping renames declared output keys (key -> target).
func WithOutputMapping(mapping map[string]string) Option {
	return func(b *Base) {
		b.mapping = mapping
	}
}

// NewBase builds the shared part of an agent.
func NewBase(name string, opts ...Option) Base {
	b := Base{name: name, gen: ids.Default, memory: new(sync.Map)}
	for _, opt := range opts {
		opt(&b)
	}
	if b.id == "" {
		b.id = b.gen.NewID()
	}
	return b
}

func (b *Base) ID() string          { return b.id }
func (b *Base) Name() string        { return b.name }
func (b *Base) Description() string { return b.description }

// InputParameters returns a copy of the declared parameters.
func (b *Base) InputParameters() []domain.Parameter {
	return append([]domain.Parameter(nil), b.params...)
}

// OutputKeys returns a copy of the declared output keys.
func (b *Base) OutputKeys() []string {
	return append([]string(nil), b.outputKeys...)
}

// OutputMapping returns the key remapping table.
func (b *Base) OutputMapping() map[string]string {
	return b.mapping
}

// Remember stores a value in the agent's own memory.
func (b *Base) Remember(key string, value any) {
	b.memory.Store(key, value)
}

// Recall reads the agent's own memory.
func (b *Base) Recall(key string) (any, bool) {
	return b.memory.Load(key)
}
