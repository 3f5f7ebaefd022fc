package process

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/chainflow/pkg/agent"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ports"
	"github.com/aretw0/chainflow/pkg/registry"
)

// TypeProcess is the registry type of generic process agents; the tool is
// named by the "tool" setting.
const TypeProcess = "process"

// Agent runs an allow-listed tool with its bound variables.
// A JSON object result becomes the output as is; any other result is wrapped
// under the default "output" key.
type Agent struct {
	agent.Base
	runner *Runner
	tool   string
}

// NewAgent builds an agent for a registered tool. The tool's declared params
// and outputs are used unless opts override them.
func NewAgent(runner *Runner, tool string, opts ...agent.Option) (*Agent, error) {
	cfg, ok := runner.Tool(tool)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, tool)
	}
	defaults := []agent.Option{agent.WithDescription(cfg.Description)}
	for _, p := range cfg.Params {
		defaults = append(defaults, agent.WithParameters(domain.Required(p)))
	}
	defaults = append(defaults, agent.WithOutputKeys(cfg.Outputs...))
	return &Agent{
		Base:   agent.NewBase(tool, append(defaults, opts...)...),
		runner: runner,
		tool:   tool,
	}, nil
}

func (a *Agent) Execute(ctx context.Context, vars map[string]any, _ ports.ChainView) (domain.Output, error) {
	res, err := a.runner.Run(ctx, a.tool, vars, nil)
	if err != nil {
		return nil, err
	}
	if obj, ok := res.(map[string]any); ok {
		return domain.Output(obj), nil
	}
	return domain.NewOutput(res), nil
}

// ChatClient sends prompts to a tool on stdin and reads the reply from stdout.
// The prompt is also available as CHAINFLOW_ARG_PROMPT.
type ChatClient struct {
	runner *Runner
	tool   string
}

// NewChatClient builds a chat client backed by a registered tool.
func NewChatClient(runner *Runner, tool string) (*ChatClient, error) {
	if _, ok := runner.Tool(tool); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, tool)
	}
	return &ChatClient{runner: runner, tool: tool}, nil
}

// Chat implements ports.ChatClient. A JSON reply may carry "message" and "model".
func (c *ChatClient) Chat(ctx context.Context, prompt string) (ports.ChatResponse, error) {
	res, err := c.runner.Run(ctx, c.tool, map[string]any{"prompt": prompt}, strings.NewReader(prompt))
	if err != nil {
		return ports.ChatResponse{}, err
	}
	resp := ports.ChatResponse{Model: c.tool}
	switch v := res.(type) {
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			resp.Message = msg
		}
		if model, ok := v["model"].(string); ok {
			resp.Model = model
		}
	case string:
		resp.Message = v
	default:
		resp.Message = fmt.Sprint(v)
	}
	return resp, nil
}

// RegisterTools makes every tool of runner buildable through reg: each under
// its own name, and all of them through TypeProcess with a "tool" setting.
func RegisterTools(reg *registry.Registry, runner *Runner) {
	build := func(tool string, spec registry.Spec) (ports.Agent, error) {
		return NewAgent(runner, tool, spec.Options()...)
	}
	for _, name := range runner.Names() {
		reg.Register(name, func(spec registry.Spec) (ports.Agent, error) {
			return build(name, spec)
		})
	}
	reg.Register(TypeProcess, func(spec registry.Spec) (ports.Agent, error) {
		tool := spec.String("tool")
		if tool == "" {
			return nil, fmt.Errorf("%w: process agent %q needs a tool", domain.ErrInvalidDefinition, spec.ID)
		}
		return build(tool, spec)
	})
}
