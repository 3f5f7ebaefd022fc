package ports

import (
	"context"

	"github.com/aretw0/chainflow/pkg/domain"
)

// ChainView is the read-only face of a chain handed to collaborators.
type ChainView interface {
	// ID returns the unique identifier of the chain run.
	ID() string

	// Get resolves a key through the chain's memory, walking up to parent chains.
	// It never creates entries.
	Get(key string) (any, bool)

	// Memory returns a flattened copy of the visible memory (parents first, local wins).
	Memory() map[string]any

	// Status returns the current lifecycle status.
	Status() domain.Status
}

// Agent is a unit of work with declared input parameters.
// The engine binds the parameters from chain memory and calls Execute.
type Agent interface {
	ID() string
	Name() string

	// InputParameters declares the slots the agent needs.
	InputParameters() []domain.Parameter

	// OutputKeys optionally declares the keys the agent produces.
	// A nil result means the raw Output is used as-is.
	OutputKeys() []string

	// Execute runs the agent with the bound variables.
	Execute(ctx context.Context, vars map[string]any, view ChainView) (domain.Output, error)
}

// OutputMapper is implemented by agents carrying a key-remapping table applied
// when their declared output keys are materialized into chain memory.
type OutputMapper interface {
	OutputMapping() map[string]string
}
