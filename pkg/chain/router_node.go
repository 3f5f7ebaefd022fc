package chain

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ports"
)

var randIntN = rand.IntN

// RouterNode routes to one or more of its target nodes from inside a Sequential.
// Matches are resolved with a MultiMatchStrategy (StrategyAll by default).
type RouterNode struct {
	router Router
	nodes  []Node
	cfg    nodeConfig
}

// NewRouterNode builds a router node. Target ids must be unique.
func NewRouterNode(id string, router Router, nodes []Node, opts ...NodeOption) (*RouterNode, error) {
	if err := uniqueIDs(nodeIDs(nodes)); err != nil {
		return nil, err
	}
	cfg := newNodeConfig(append([]NodeOption{WithNodeID(id)}, opts...))
	if cfg.name == "" {
		cfg.name = id
	}
	return &RouterNode{router: router, nodes: nodes, cfg: cfg}, nil
}

// NewExpressionRouterNode routes on the value of expr evaluated by engine.
func NewExpressionRouterNode(id string, engine ports.ExpressionEngine, expr string, nodes []Node, opts ...NodeOption) (*RouterNode, error) {
	return NewRouterNode(id, ExpressionRouter{Engine: engine, Expression: expr}, nodes, opts...)
}

// NewChatRouterNode routes on a model answer to the rendered prompt template.
func NewChatRouterNode(id string, client ports.ChatClient, prompt string, nodes []Node, opts ...NodeOption) (*RouterNode, error) {
	router, err := NewChatRouter(client, prompt)
	if err != nil {
		return nil, err
	}
	return NewRouterNode(id, router, nodes, opts...)
}

func (n *RouterNode) ID() string   { return n.cfg.id }
func (n *RouterNode) Name() string { return n.cfg.name }
func (n *RouterNode) Kind() string { return "router:" + string(n.cfg.strategy) }

// Strategy returns the multi-match strategy.
func (n *RouterNode) Strategy() MultiMatchStrategy { return n.cfg.strategy }

// Targets returns the routable nodes.
func (n *RouterNode) Targets() []Node { return append([]Node(nil), n.nodes...) }

func (n *RouterNode) Skip(ctx context.Context, c *Chain) bool { return n.cfg.skipped(ctx, c) }

func (n *RouterNode) attachTo(parent *Chain) error {
	return attachUnits(parent, n.nodes)
}

// routeProgress is the persisted state of a selected route: the chosen target
// ids, the next one to run and the merged outputs so far.
type routeProgress struct {
	ids     []string
	next    int
	partial domain.Output
}

func (n *RouterNode) stateKey() string { return "router:" + n.cfg.id }

func (n *RouterNode) Execute(ctx context.Context, c *Chain) (domain.Output, error) {
	progress, ok := n.loadProgress(c)
	if !ok {
		selected, err := n.selectTargets(ctx, c)
		if err != nil {
			return nil, err
		}
		if len(selected) == 0 {
			return nil, nil
		}
		progress = routeProgress{ids: selected}
	}

	byID := make(map[string]Node, len(n.nodes))
	for _, node := range n.nodes {
		byID[node.ID()] = node
	}

	merged := progress.partial
	for i := progress.next; i < len(progress.ids); i++ {
		target, ok := byID[progress.ids[i]]
		if !ok {
			return nil, fmt.Errorf("router %s: unknown target %q", n.cfg.id, progress.ids[i])
		}
		skip := target.Skip(ctx, c)
		out, err := c.executeNode(ctx, target)
		if err != nil {
			c.setState(n.stateKey(), nil)
			return nil, err
		}
		if c.isPaused() {
			n.saveProgress(c, routeProgress{ids: progress.ids, next: i, partial: merged})
			return nil, nil
		}
		if !skip && out != nil {
			merged = merged.Merge(out)
		}
	}
	c.setState(n.stateKey(), nil)
	return merged, nil
}

// selectTargets routes, emits the match events and applies the strategy.
// An empty result means no target matched and the chain was stopped.
func (n *RouterNode) selectTargets(ctx context.Context, c *Chain) ([]string, error) {
	route, err := n.router.Route(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("router %s: %w", n.cfg.id, err)
	}

	known := make(map[string]struct{}, len(n.nodes))
	for _, node := range n.nodes {
		known[node.ID()] = struct{}{}
	}
	var matched []string
	for _, id := range splitRoute(route) {
		if _, ok := known[id]; ok {
			matched = append(matched, id)
		}
	}

	if len(matched) == 0 {
		c.logger.Info("no route matched", "chain_id", c.ID(), "node_id", n.cfg.id, "route", route)
		c.emit(domain.EventRouteMissed, n.cfg.id, nil, nil)
		c.Stop()
		return nil, nil
	}
	c.emit(domain.EventRouteMatched, n.cfg.id, domain.Output{stateRoute: strings.Join(matched, ",")}, nil)

	if len(matched) == 1 {
		return matched, nil
	}
	if idx := n.cfg.pick(len(matched)); idx != nil {
		return []string{matched[*idx]}, nil
	}
	return matched, nil
}

func (n *RouterNode) saveProgress(c *Chain, p routeProgress) {
	c.setState(n.stateKey(), map[string]any{
		"ids":     toAnySlice(p.ids),
		"next":    p.next,
		"partial": map[string]any(p.partial.Clone()),
	})
}

func (n *RouterNode) loadProgress(c *Chain) (routeProgress, bool) {
	raw, ok := c.stateValue(n.stateKey())
	if !ok {
		return routeProgress{}, false
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return routeProgress{}, false
	}
	var p routeProgress
	if ids, ok := m["ids"].([]any); ok {
		for _, id := range ids {
			if s, ok := id.(string); ok {
				p.ids = append(p.ids, s)
			}
		}
	}
	switch v := m["next"].(type) {
	case int:
		p.next = v
	case float64:
		p.next = int(v)
	}
	if partial, ok := m["partial"].(map[string]any); ok {
		p.partial = domain.Output(partial)
	}
	return p, len(p.ids) > 0
}
