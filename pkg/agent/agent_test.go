package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chainflow/pkg/agent"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ids"
	"github.com/aretw0/chainflow/pkg/ports"
)

func TestBase_IDFromGenerator(t *testing.T) {
	gen := ids.NewSequence("agent")
	a := agent.Constant("one", 1, agent.WithIDGenerator(gen))
	b := agent.Constant("two", 2, agent.WithIDGenerator(gen))

	assert.Equal(t, "agent-1", a.ID())
	assert.Equal(t, "agent-2", b.ID())
	assert.Equal(t, "one", a.Name())
}

func TestBase_Declarations(t *testing.T) {
	a := agent.Constant("c", "v",
		agent.WithParameters(domain.Required("x"), domain.Optional("y")),
		agent.WithOutputKeys("output"),
		agent.WithOutputMapping(map[string]string{"output": "answer"}),
	)

	assert.Equal(t, []string{"x", "y"}, domain.ParameterNames(a.InputParameters()))
	assert.Equal(t, []string{"output"}, a.OutputKeys())
	assert.Equal(t, "answer", a.OutputMapping()["output"])

	a.Remember("seen", true)
	v, ok := a.Recall("seen")
	require.True(t, ok)
	assert.Equal(t, true, v)
}

func TestValue_WrapsDefaultOutput(t *testing.T) {
	double := agent.NewValue("double", func(_ context.Context, vars map[string]any) (any, error) {
		return vars["x"].(int) * 2, nil
	})

	out, err := double.Execute(context.Background(), map[string]any{"x": 21}, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Value())
}

func TestTemplate_Render(t *testing.T) {
	greet, err := agent.NewTemplate("greet", "Hello, {{.name}}!")
	require.NoError(t, err)

	out, err := greet.Execute(context.Background(), map[string]any{"name": "Ada"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada!", out.Value())

	_, err = agent.NewTemplate("broken", "{{.name")
	assert.Error(t, err)
}

func TestChat_CallsClient(t *testing.T) {
	var prompt string
	client := ports.ChatFunc(func(_ context.Context, p string) (ports.ChatResponse, error) {
		prompt = p
		return ports.ChatResponse{Message: "pong", Model: "echo"}, nil
	})
	chat, err := agent.NewChat("ping", client, "say {{.word}}")
	require.NoError(t, err)

	out, err := chat.Execute(context.Background(), map[string]any{"word": "ping"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "say ping", prompt)
	assert.Equal(t, "pong", out.Value())
	assert.Equal(t, "echo", out["model"])
}

func TestChat_ClientError(t *testing.T) {
	boom := errors.New("boom")
	client := ports.ChatFunc(func(context.Context, string) (ports.ChatResponse, error) {
		return ports.ChatResponse{}, boom
	})
	chat, err := agent.NewChat("ping", client, "hi")
	require.NoError(t, err)

	_, err = chat.Execute(context.Background(), nil, nil)
	assert.ErrorIs(t, err, boom)
}

func TestUser_RequiresAnswer(t *testing.T) {
	u := agent.NewUser("ask", "answer")

	params := u.InputParameters()
	require.Len(t, params, 1)
	assert.Equal(t, "answer", params[0].Name)
	assert.True(t, params[0].Required)

	out, err := u.Execute(context.Background(), map[string]any{"answer": "yes"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "yes", out.Value())
}
