package definition

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/chainflow/internal/logging"
	"github.com/aretw0/chainflow/pkg/chain"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ids"
	"github.com/aretw0/chainflow/pkg/ports"
	"github.com/aretw0/chainflow/pkg/registry"
)

// Compiler turns definitions into runnable chains. Every collaborator is passed
// in explicitly.
type Compiler struct {
	Registry *registry.Registry
	Engine   ports.ExpressionEngine
	Chat     ports.ChatClient
	IDs      ids.Generator
	Logger   *slog.Logger
}

// Compile builds the chain declared by def. opts apply to the root chain only.
func (c *Compiler) Compile(def *Definition, opts ...chain.Option) (chain.Runnable, error) {
	if c.Registry == nil {
		return nil, fmt.Errorf("%w: compiler has no registry", domain.ErrInvalidDefinition)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return c.compileChain(def, nil, opts)
}

func (c *Compiler) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.NewNop()
}

type scope struct {
	agents map[string]AgentSpec
	parent *scope
}

func (s *scope) lookup(id string) (AgentSpec, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if spec, ok := cur.agents[id]; ok {
			return spec, true
		}
	}
	return AgentSpec{}, false
}

func (c *Compiler) compileChain(def *Definition, parent *scope, extra []chain.Option) (chain.Runnable, error) {
	sc := &scope{agents: make(map[string]AgentSpec, len(def.Agents)), parent: parent}
	for _, a := range def.Agents {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: agent without id in %q", domain.ErrInvalidDefinition, def.ID)
		}
		sc.agents[a.ID] = a
	}

	opts := []chain.Option{
		chain.WithName(def.ID),
		chain.WithLogger(c.logger()),
		chain.WithIDGenerator(c.IDs),
		chain.WithMemory(def.Memory),
	}
	if def.Concurrency > 0 {
		opts = append(opts, chain.WithConcurrency(def.Concurrency))
	}
	opts = append(opts, extra...)

	switch def.Kind {
	case KindSequential, "":
		nodes, err := c.compileNodes(def.Nodes, sc)
		if err != nil {
			return nil, err
		}
		return wrap(chain.NewSequential(nodes, opts...))

	case KindParallel:
		invokers, err := c.compileInvokers(def.Nodes, sc)
		if err != nil {
			return nil, err
		}
		return wrap(chain.NewParallel(reducer(def.Reduce), invokers, opts...))

	case KindLoop:
		invokers, err := c.compileInvokers(def.Nodes, sc)
		if err != nil {
			return nil, err
		}
		return wrap(chain.NewLoop(invokers, opts...))

	case KindRouter:
		invokers, err := c.compileInvokers(def.Nodes, sc)
		if err != nil {
			return nil, err
		}
		router, err := c.router(def.Route)
		if err != nil {
			return nil, err
		}
		return wrap(chain.NewRouterChain(router, invokers, opts...))
	}
	return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidDefinition, def.Kind)
}

func wrap[T chain.Runnable](r T, err error) (chain.Runnable, error) {
	if err != nil {
		return nil, err
	}
	return r, nil
}

func reducer(name string) chain.Reducer {
	switch name {
	case "collect":
		return chain.CollectValues
	case "first":
		return chain.PickFirst
	default:
		return chain.MergeAll
	}
}

func (c *Compiler) compileNodes(specs []NodeSpec, sc *scope) ([]chain.Node, error) {
	nodes := make([]chain.Node, 0, len(specs))
	for _, spec := range specs {
		node, err := c.compileNode(spec, sc)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (c *Compiler) compileNode(spec NodeSpec, sc *scope) (chain.Node, error) {
	opts := []chain.NodeOption{chain.WithNodeID(spec.ID)}
	if spec.Skip != "" {
		cond, err := c.condition(spec.Skip)
		if err != nil {
			return nil, err
		}
		opts = append(opts, chain.WithSkip(cond))
	}

	switch {
	case spec.Agent != "":
		a, err := c.agent(spec, sc)
		if err != nil {
			return nil, err
		}
		if spec.Outputs != nil {
			opts = append(opts, chain.WithOutputMapping(spec.Outputs))
		}
		return chain.NewAgentNode(a, opts...), nil

	case spec.Router != nil:
		targets, err := c.compileNodes(spec.Router.Nodes, sc)
		if err != nil {
			return nil, err
		}
		router, err := c.router(spec.Router)
		if err != nil {
			return nil, err
		}
		strategy, err := chain.ParseStrategy(spec.Router.Strategy)
		if err != nil {
			return nil, fmt.Errorf("%w: node %q: %v", domain.ErrInvalidDefinition, spec.ID, err)
		}
		node, err := chain.NewRouterNode(spec.ID, router, targets, append(opts, chain.WithStrategy(strategy))...)
		if err != nil {
			return nil, err
		}
		return node, nil

	case spec.Chain != nil:
		child, err := c.compileChain(spec.Chain, sc, nil)
		if err != nil {
			return nil, err
		}
		return chain.NewChainNode(child, opts...), nil
	}
	return nil, fmt.Errorf("%w: node %q is empty", domain.ErrInvalidDefinition, spec.ID)
}

func (c *Compiler) compileInvokers(specs []NodeSpec, sc *scope) ([]chain.Invoker, error) {
	invokers := make([]chain.Invoker, 0, len(specs))
	for _, spec := range specs {
		inv, err := c.compileInvoker(spec, sc)
		if err != nil {
			return nil, err
		}
		invokers = append(invokers, inv)
	}
	return invokers, nil
}

func (c *Compiler) compileInvoker(spec NodeSpec, sc *scope) (chain.Invoker, error) {
	var conds []chain.Condition
	if spec.MaxPasses > 0 {
		conds = append(conds, chain.MaxPasses(spec.MaxPasses))
	}
	if spec.When != "" {
		cond, err := c.condition(spec.When)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	opts := []chain.NodeOption{chain.WithNodeID(spec.ID)}
	if len(conds) > 0 {
		opts = append(opts, chain.WithCondition(chain.And(conds...)))
	}

	switch {
	case spec.Agent != "":
		a, err := c.agent(spec, sc)
		if err != nil {
			return nil, err
		}
		if spec.Outputs != nil {
			opts = append(opts, chain.WithOutputMapping(spec.Outputs))
		}
		return chain.NewAgentInvoker(a, opts...), nil

	case spec.Router != nil:
		targets, err := c.compileInvokers(spec.Router.Nodes, sc)
		if err != nil {
			return nil, err
		}
		router, err := c.router(spec.Router)
		if err != nil {
			return nil, err
		}
		strategy, err := chain.ParseStrategy(spec.Router.Strategy)
		if err != nil {
			return nil, fmt.Errorf("%w: node %q: %v", domain.ErrInvalidDefinition, spec.ID, err)
		}
		inv, err := chain.NewRoutingInvoker(spec.ID, router, targets, append(opts, chain.WithStrategy(strategy))...)
		if err != nil {
			return nil, err
		}
		return inv, nil

	case spec.Chain != nil:
		child, err := c.compileChain(spec.Chain, sc, nil)
		if err != nil {
			return nil, err
		}
		return chain.NewChainInvoker(child, opts...), nil
	}
	return nil, fmt.Errorf("%w: node %q is empty", domain.ErrInvalidDefinition, spec.ID)
}

// agent resolves a node's agent reference: a declared agent id first, then a
// registry type built with defaults.
func (c *Compiler) agent(spec NodeSpec, sc *scope) (ports.Agent, error) {
	decl, ok := sc.lookup(spec.Agent)
	if !ok {
		decl = AgentSpec{ID: spec.ID, Type: spec.Agent}
	}
	if decl.Type == "" {
		return nil, fmt.Errorf("%w: agent %q has no type", domain.ErrInvalidDefinition, decl.ID)
	}
	return c.Registry.Build(decl.Type, registry.Spec{
		ID:      decl.ID,
		Name:    decl.Name,
		Params:  decl.Params,
		Outputs: decl.Outputs,
		Mapping: decl.Mapping,
		With:    decl.With,
		IDs:     c.IDs,
	})
}

func (c *Compiler) router(spec *RouteSpec) (chain.Router, error) {
	switch {
	case spec.Expression != "":
		if c.Engine == nil {
			return nil, fmt.Errorf("%w: expression router without an expression engine", domain.ErrInvalidDefinition)
		}
		return chain.ExpressionRouter{Engine: c.Engine, Expression: spec.Expression}, nil
	case spec.Prompt != "":
		if c.Chat == nil {
			return nil, fmt.Errorf("%w: chat router without a chat client", domain.ErrInvalidDefinition)
		}
		r, err := chain.NewChatRouter(c.Chat, spec.Prompt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDefinition, err)
		}
		return r, nil
	default:
		return chain.StaticRouter(spec.Static), nil
	}
}

func (c *Compiler) condition(expr string) (chain.Condition, error) {
	if c.Engine == nil {
		return nil, fmt.Errorf("%w: condition %q without an expression engine", domain.ErrInvalidDefinition, expr)
	}
	return chain.ExpressionCondition(c.Engine, expr), nil
}
