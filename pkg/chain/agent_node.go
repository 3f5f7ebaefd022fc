package chain

import (
	"context"

	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ports"
)

// AgentNode runs an agent as a step of a node-oriented chain.
type AgentNode struct {
	agent ports.Agent
	cfg   nodeConfig
}

// NewAgentNode wraps agent. The node id defaults to the agent id.
func NewAgentNode(agent ports.Agent, opts ...NodeOption) *AgentNode {
	cfg := newNodeConfig(opts)
	if cfg.id == "" {
		cfg.id = agent.ID()
	}
	if cfg.name == "" {
		cfg.name = agent.Name()
	}
	return &AgentNode{agent: agent, cfg: cfg}
}

func (n *AgentNode) ID() string   { return n.cfg.id }
func (n *AgentNode) Name() string { return n.cfg.name }
func (n *AgentNode) Kind() string { return "agent" }

// Agent returns the wrapped agent.
func (n *AgentNode) Agent() ports.Agent { return n.agent }

func (n *AgentNode) Skip(ctx context.Context, c *Chain) bool { return n.cfg.skipped(ctx, c) }

func (n *AgentNode) Execute(ctx context.Context, c *Chain) (domain.Output, error) {
	return runAgent(ctx, c, n.cfg.id, n.agent, c.LastResult(), n.cfg.mapping)
}

// AgentInvoker runs an agent inside Parallel, Loop and RouterChain.
type AgentInvoker struct {
	agent ports.Agent
	cfg   nodeConfig
}

// NewAgentInvoker wraps agent. Without WithCondition the invoker always runs.
func NewAgentInvoker(agent ports.Agent, opts ...NodeOption) *AgentInvoker {
	cfg := newNodeConfig(opts)
	if cfg.id == "" {
		cfg.id = agent.ID()
	}
	return &AgentInvoker{agent: agent, cfg: cfg}
}

func (i *AgentInvoker) ID() string   { return i.cfg.id }
func (i *AgentInvoker) Kind() string { return "agent" }

func (i *AgentInvoker) CheckCondition(ctx context.Context, c *Chain, last domain.Output) bool {
	return i.cfg.check(ctx, c, last)
}

func (i *AgentInvoker) Invoke(ctx context.Context, c *Chain, last domain.Output) (domain.Output, error) {
	return runAgent(ctx, c, i.cfg.id, i.agent, last, i.cfg.mapping)
}

// runAgent binds the agent parameters, suspends the chain once with every missing
// required parameter, or executes the agent and maps its declared outputs.
func runAgent(ctx context.Context, c *Chain, unitID string, agent ports.Agent, last domain.Output, mapping map[string]string) (domain.Output, error) {
	vars, missing := bindParameters(c, last, agent.InputParameters())
	if len(missing) > 0 {
		c.WaitInput(missing, unitID)
		return nil, nil
	}
	out, err := agent.Execute(ctx, vars, c)
	if err != nil {
		return nil, err
	}
	return mapOutput(agent, out, mapping), nil
}

func bindParameters(c *Chain, last domain.Output, params []domain.Parameter) (map[string]any, []domain.Parameter) {
	vars := make(map[string]any, len(params))
	var missing []domain.Parameter
	for _, p := range params {
		if v, ok := c.Get(p.Name); ok {
			vars[p.Name] = v
			continue
		}
		if p.IsDefault && last.Has(domain.DefaultOutputKey) {
			vars[p.Name] = last.Value()
			continue
		}
		if p.Required {
			missing = append(missing, p)
		}
	}
	return vars, missing
}

func mapOutput(agent ports.Agent, out domain.Output, mapping map[string]string) domain.Output {
	keys := agent.OutputKeys()
	if len(keys) == 0 || out == nil {
		return out
	}
	if mapping == nil {
		if m, ok := agent.(ports.OutputMapper); ok {
			mapping = m.OutputMapping()
		}
	}
	res := make(domain.Output, len(keys))
	for _, key := range keys {
		v, ok := out[key]
		if !ok {
			continue
		}
		target := key
		if to, ok := mapping[key]; ok && to != "" {
			target = to
		}
		res[target] = v
	}
	return res
}
