package chain

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ports"
)

// Router computes a comma-separated list of target ids.
type Router interface {
	Route(ctx context.Context, c *Chain) (string, error)
}

// RouterFunc adapts a function to Router.
type RouterFunc func(ctx context.Context, c *Chain) (string, error)

// Route implements Router.
func (f RouterFunc) Route(ctx context.Context, c *Chain) (string, error) {
	return f(ctx, c)
}

// StaticRouter always returns the same route.
type StaticRouter string

// Route implements Router.
func (r StaticRouter) Route(context.Context, *Chain) (string, error) {
	return string(r), nil
}

// ExpressionRouter evaluates an expression against the chain.
type ExpressionRouter struct {
	Engine     ports.ExpressionEngine
	Expression string
}

// Route implements Router.
func (r ExpressionRouter) Route(ctx context.Context, c *Chain) (string, error) {
	if r.Engine == nil {
		return "", fmt.Errorf("expression router: no engine configured")
	}
	return r.Engine.Run(ctx, r.Expression, c)
}

// ChatRouter renders a prompt from chain memory, asks a model, and routes on
// the raw response text.
type ChatRouter struct {
	client ports.ChatClient
	prompt *template.Template
}

// NewChatRouter parses the prompt template. The template data is the flattened
// chain memory.
func NewChatRouter(client ports.ChatClient, prompt string) (*ChatRouter, error) {
	tmpl, err := template.New("route").Option("missingkey=zero").Parse(prompt)
	if err != nil {
		return nil, fmt.Errorf("parse route prompt: %w", err)
	}
	return &ChatRouter{client: client, prompt: tmpl}, nil
}

// Route implements Router.
func (r *ChatRouter) Route(ctx context.Context, c *Chain) (string, error) {
	var buf bytes.Buffer
	if err := r.prompt.Execute(&buf, c.Memory()); err != nil {
		return "", fmt.Errorf("render route prompt: %w", err)
	}
	resp, err := r.client.Chat(ctx, buf.String())
	if err != nil {
		return "", fmt.Errorf("route chat: %w", err)
	}
	return resp.Text(), nil
}

// MultiMatchStrategy resolves a route matching several targets.
type MultiMatchStrategy string

const (
	StrategyAll    MultiMatchStrategy = "all"    // Run every match, merge outputs in match order
	StrategyFirst  MultiMatchStrategy = "first"  // Run the first match
	StrategyLast   MultiMatchStrategy = "last"   // Run the last match
	StrategyRandom MultiMatchStrategy = "random" // Run one match chosen uniformly
)

// ParseStrategy maps a name to a strategy. Empty means StrategyAll.
func ParseStrategy(name string) (MultiMatchStrategy, error) {
	switch s := MultiMatchStrategy(strings.ToLower(strings.TrimSpace(name))); s {
	case "":
		return StrategyAll, nil
	case StrategyAll, StrategyFirst, StrategyLast, StrategyRandom:
		return s, nil
	default:
		return "", fmt.Errorf("unknown multi-match strategy %q", name)
	}
}

// RouterChain routes to its invokers. One match runs directly; several run in a
// nested Sequential, in route order. Invoker conditions are applied to the
// matches before either path. No match stops the chain without a result.
type RouterChain struct {
	*Chain
	router   Router
	invokers []Invoker
	nested   *Sequential
}

// NewRouterChain builds a routing chain over invokers.
func NewRouterChain(router Router, invokers []Invoker, opts ...Option) (*RouterChain, error) {
	if err := uniqueIDs(invokerIDs(invokers)); err != nil {
		return nil, err
	}
	r := &RouterChain{router: router, invokers: invokers}
	r.Chain = newChain(KindRouter, r, opts)
	if err := attachUnits(r.Chain, invokers); err != nil {
		return nil, err
	}
	return r, nil
}

const stateRoute = "route"

func (r *RouterChain) describe() []domain.NodeInfo {
	return describeInvokers(r.invokers)
}

func (r *RouterChain) match(ctx context.Context, ids []string, last domain.Output) []Invoker {
	var out []Invoker
	for _, id := range ids {
		for _, inv := range r.invokers {
			if inv.ID() == id && inv.CheckCondition(ctx, r.Chain, last) {
				out = append(out, inv)
				break
			}
		}
	}
	return out
}

func (r *RouterChain) executeInternal(ctx context.Context) (domain.Output, error) {
	r.nested = nil
	route, err := r.router.Route(ctx, r.Chain)
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}
	matched := r.match(ctx, splitRoute(route), r.LastResult())
	if len(matched) == 0 {
		r.logger.Info("no route matched", "chain_id", r.ID(), "route", route)
		r.emit(domain.EventRouteMissed, "", nil, nil)
		r.Stop()
		return nil, nil
	}

	ids := invokerIDs(matched)
	r.emit(domain.EventRouteMatched, "", domain.Output{stateRoute: strings.Join(ids, ",")}, nil)
	r.setState(stateRoute, toAnySlice(ids))
	return r.dispatch(ctx, matched, false)
}

func (r *RouterChain) resumeInternal(ctx context.Context) (domain.Output, error) {
	ids := routeFromState(r.Chain, stateRoute)
	if len(ids) == 0 {
		return r.executeInternal(ctx)
	}
	var matched []Invoker
	for _, id := range ids {
		for _, inv := range r.invokers {
			if inv.ID() == id {
				matched = append(matched, inv)
			}
		}
	}
	return r.dispatch(ctx, matched, true)
}

func (r *RouterChain) dispatch(ctx context.Context, matched []Invoker, resumed bool) (domain.Output, error) {
	if len(matched) == 1 {
		out, err := r.invoke(ctx, matched[0], r.LastResult())
		if err != nil || r.isPaused() {
			return nil, err
		}
		return r.finishRoute(out), nil
	}

	if r.nested == nil || !resumed {
		nested, err := r.buildNested(matched)
		if err != nil {
			return nil, err
		}
		r.nested = nested
	}

	if resumed && r.nested.isPaused() {
		waiting := r.nested.WaitInputParameters()
		vals := make(map[string]any, len(waiting))
		for _, p := range waiting {
			if v, ok := r.Get(p.Name); ok {
				vals[p.Name] = v
			}
		}
		r.nested.Resume(ctx, vals)
	} else {
		r.nested.Execute(ctx, nil)
	}

	switch status := r.nested.Status(); {
	case status.IsPaused():
		r.WaitInput(r.nested.WaitInputParameters(), r.nested.ID())
		return nil, nil
	case status == domain.StatusFinishedAbnormal:
		return nil, fmt.Errorf("routed sequence: %w", r.nested.Err())
	}
	return r.finishRoute(r.nested.Output()), nil
}

func (r *RouterChain) finishRoute(out domain.Output) domain.Output {
	r.setState(stateRoute, nil)
	if out != nil {
		r.memory.Merge(out)
		r.setLastResult(out)
	}
	return out
}

func (r *RouterChain) buildNested(matched []Invoker) (*Sequential, error) {
	nodes := make([]Node, len(matched))
	for i, inv := range matched {
		nodes[i] = invokerNode{inv: inv}
	}
	nested, err := NewSequential(nodes, WithID(r.ID()+"/route"), WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	if err := nested.attach(r.Chain, false); err != nil {
		return nil, err
	}
	return nested, nil
}

func (r *RouterChain) snapshotInto(snap *domain.Snapshot) {
	if r.nested == nil || routeFromState(r.Chain, stateRoute) == nil {
		return
	}
	if snap.Children == nil {
		snap.Children = make(map[string]*domain.Snapshot)
	}
	snap.Children[stateRoute] = r.nested.Snapshot()
}

func (r *RouterChain) restoreFrom(snap *domain.Snapshot) error {
	r.nested = nil
	ids := routeFromState(r.Chain, stateRoute)
	nestedSnap, ok := snap.Children[stateRoute]
	if len(ids) < 2 || !ok {
		return nil
	}
	var matched []Invoker
	for _, id := range ids {
		for _, inv := range r.invokers {
			if inv.ID() == id {
				matched = append(matched, inv)
			}
		}
	}
	nested, err := r.buildNested(matched)
	if err != nil {
		return err
	}
	if err := nested.Restore(nestedSnap); err != nil {
		return fmt.Errorf("restore routed sequence: %w", err)
	}
	r.nested = nested
	return nil
}

// RoutingInvoker routes among its own target invokers and resolves several
// matches with a MultiMatchStrategy. It lets Parallel and Loop chains branch.
type RoutingInvoker struct {
	router  Router
	targets []Invoker
	cfg     nodeConfig
}

// NewRoutingInvoker builds a routing invoker. Target ids must be unique.
func NewRoutingInvoker(id string, router Router, targets []Invoker, opts ...NodeOption) (*RoutingInvoker, error) {
	if err := uniqueIDs(invokerIDs(targets)); err != nil {
		return nil, err
	}
	cfg := newNodeConfig(append([]NodeOption{WithNodeID(id)}, opts...))
	return &RoutingInvoker{router: router, targets: targets, cfg: cfg}, nil
}

func (i *RoutingInvoker) ID() string   { return i.cfg.id }
func (i *RoutingInvoker) Kind() string { return "routing" }

func (i *RoutingInvoker) CheckCondition(ctx context.Context, c *Chain, last domain.Output) bool {
	return i.cfg.check(ctx, c, last)
}

func (i *RoutingInvoker) Invoke(ctx context.Context, c *Chain, last domain.Output) (domain.Output, error) {
	route, err := i.router.Route(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}
	var matched []Invoker
	for _, id := range splitRoute(route) {
		for _, t := range i.targets {
			if t.ID() == id && t.CheckCondition(ctx, c, last) {
				matched = append(matched, t)
				break
			}
		}
	}
	if len(matched) == 0 {
		c.emit(domain.EventRouteMissed, i.cfg.id, nil, nil)
		c.Stop()
		return nil, nil
	}
	c.emit(domain.EventRouteMatched, i.cfg.id, domain.Output{stateRoute: strings.Join(invokerIDs(matched), ",")}, nil)

	selected := i.cfg.pick(len(matched))
	if selected == nil {
		var merged domain.Output
		for _, t := range matched {
			out, err := t.Invoke(ctx, c, last)
			if err != nil {
				return nil, err
			}
			if c.isPaused() {
				return nil, nil
			}
			merged = merged.Merge(out)
		}
		return merged, nil
	}
	return matched[*selected].Invoke(ctx, c, last)
}

func (i *RoutingInvoker) attachTo(parent *Chain) error {
	return attachUnits(parent, i.targets)
}

// pick returns the index a single-target strategy selects, or nil for StrategyAll.
func (cfg nodeConfig) pick(n int) *int {
	var idx int
	switch cfg.strategy {
	case StrategyFirst:
		idx = 0
	case StrategyLast:
		idx = n - 1
	case StrategyRandom:
		if cfg.rand != nil {
			idx = cfg.rand.IntN(n)
		} else {
			idx = randIntN(n)
		}
	default:
		return nil
	}
	return &idx
}

func toAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// routeFromState reads a route persisted in chain state. Values are []any of
// strings, both live and after a JSON round trip.
func routeFromState(c *Chain, key string) []string {
	raw, ok := c.stateValue(key)
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
