package chain

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/aretw0/chainflow/pkg/domain"
)

// Node is a unit of work inside a node-oriented chain (Sequential, RouterNode targets).
type Node interface {
	ID() string
	Name() string

	// Execute runs the node. A nil output with a paused chain means the node suspended.
	Execute(ctx context.Context, c *Chain) (domain.Output, error)

	// Skip reports whether the node result must be discarded for this run.
	// A skipped node still executes.
	Skip(ctx context.Context, c *Chain) bool
}

// Invoker adapts a unit of work to list-oriented chains (Parallel, Loop, RouterChain).
type Invoker interface {
	ID() string
	CheckCondition(ctx context.Context, c *Chain, last domain.Output) bool
	Invoke(ctx context.Context, c *Chain, last domain.Output) (domain.Output, error)
}

// attacher is implemented by nodes and invokers wrapping child chains.
type attacher interface {
	attachTo(parent *Chain) error
}

type kinded interface {
	Kind() string
}

// NodeOption configures nodes and invokers. Options a unit does not use are ignored.
type NodeOption func(*nodeConfig)

type nodeConfig struct {
	id        string
	name      string
	mapping   map[string]string
	skip      Condition
	condition Condition
	strategy  MultiMatchStrategy
	rand      *rand.Rand
}

func newNodeConfig(opts []NodeOption) nodeConfig {
	cfg := nodeConfig{strategy: StrategyAll}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithNodeID overrides the unit id.
func WithNodeID(id string) NodeOption {
	return func(cfg *nodeConfig) {
		cfg.id = id
	}
}

// WithNodeName overrides the unit name.
func WithNodeName(name string) NodeOption {
	return func(cfg *nodeConfig) {
		cfg.name = name
	}
}

// WithOutputMapping renames declared output keys when materialized (key -> target).
func WithOutputMapping(mapping map[string]string) NodeOption {
	return func(cfg *nodeConfig) {
		cfg.mapping = mapping
	}
}

// WithSkip marks a node as skipped whenever cond holds against the last result.
func WithSkip(cond Condition) NodeOption {
	return func(cfg *nodeConfig) {
		cfg.skip = cond
	}
}

// WithCondition gates an invoker.
func WithCondition(cond Condition) NodeOption {
	return func(cfg *nodeConfig) {
		cfg.condition = cond
	}
}

// WithStrategy sets how a RouterNode or RoutingInvoker resolves several matches.
func WithStrategy(s MultiMatchStrategy) NodeOption {
	return func(cfg *nodeConfig) {
		cfg.strategy = s
	}
}

// WithRand injects the source used by StrategyRandom.
func WithRand(r *rand.Rand) NodeOption {
	return func(cfg *nodeConfig) {
		cfg.rand = r
	}
}

func describeNodes(nodes []Node) []domain.NodeInfo {
	infos := make([]domain.NodeInfo, len(nodes))
	for i, n := range nodes {
		infos[i] = domain.NodeInfo{ID: n.ID(), Name: n.Name(), Kind: unitKind(n)}
	}
	return infos
}

func describeInvokers(invokers []Invoker) []domain.NodeInfo {
	infos := make([]domain.NodeInfo, len(invokers))
	for i, inv := range invokers {
		infos[i] = domain.NodeInfo{ID: inv.ID(), Name: inv.ID(), Kind: unitKind(inv)}
	}
	return infos
}

func unitKind(u any) string {
	if k, ok := u.(kinded); ok {
		return k.Kind()
	}
	return fmt.Sprintf("%T", u)
}

func uniqueIDs(ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty id", domain.ErrDuplicateID)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %q", domain.ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func nodeIDs(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	return out
}

func invokerIDs(invokers []Invoker) []string {
	out := make([]string, len(invokers))
	for i, inv := range invokers {
		out[i] = inv.ID()
	}
	return out
}

func attachUnits[T any](parent *Chain, units []T) error {
	for _, u := range units {
		if a, ok := any(u).(attacher); ok {
			if err := a.attachTo(parent); err != nil {
				return err
			}
		}
	}
	return nil
}

// splitRoute turns "a, b,,a" into [a b].
func splitRoute(route string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(route, ",") {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// invokerNode lets a RouterChain run invokers inside a nested Sequential.
type invokerNode struct {
	inv Invoker
}

func (n invokerNode) ID() string   { return n.inv.ID() }
func (n invokerNode) Name() string { return n.inv.ID() }
func (n invokerNode) Kind() string { return unitKind(n.inv) }

func (n invokerNode) Execute(ctx context.Context, c *Chain) (domain.Output, error) {
	return n.inv.Invoke(ctx, c, c.LastResult())
}

func (n invokerNode) Skip(context.Context, *Chain) bool { return false }
