package chain_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/chainflow/pkg/agent"
	"github.com/aretw0/chainflow/pkg/chain"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ports"
)

// funcNode is a node driven by a closure.
type funcNode struct {
	id   string
	fn   func(ctx context.Context, c *chain.Chain) (domain.Output, error)
	skip bool
}

func (n *funcNode) ID() string             { return n.id }
func (n *funcNode) Name() string           { return n.id }
func (n *funcNode) Skip(context.Context, *chain.Chain) bool { return n.skip }

func (n *funcNode) Execute(ctx context.Context, c *chain.Chain) (domain.Output, error) {
	return n.fn(ctx, c)
}

func emit(id string, out domain.Output) *funcNode {
	return &funcNode{id: id, fn: func(context.Context, *chain.Chain) (domain.Output, error) {
		return out, nil
	}}
}

// constant returns an agent producing out, identified by id.
func constant(id string, out domain.Output, opts ...agent.Option) *agent.Func {
	opts = append([]agent.Option{agent.WithID(id)}, opts...)
	return agent.NewFunc(id, func(context.Context, map[string]any, ports.ChainView) (domain.Output, error) {
		return out.Clone(), nil
	}, opts...)
}

// recorder collects events delivered to a listener.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) listen(ev domain.Event, _ *chain.Chain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(kind domain.EventKind, chainID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind && (chainID == "" || ev.ChainID == chainID) {
			n++
		}
	}
	return n
}

func (r *recorder) kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// roundTrip serializes a snapshot to JSON and back.
func roundTrip(t *testing.T, snap *domain.Snapshot) *domain.Snapshot {
	t.Helper()
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var back domain.Snapshot
	require.NoError(t, json.Unmarshal(data, &back))
	return &back
}
