package chain_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chainflow/pkg/agent"
	"github.com/aretw0/chainflow/pkg/chain"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ids"
)

func TestSequential_ThreadsLastResult(t *testing.T) {
	upper := agent.NewValue("upper", func(_ context.Context, vars map[string]any) (any, error) {
		return strings.ToUpper(vars["text"].(string)), nil
	}, agent.WithID("upper"), agent.WithParameters(domain.Required("text")))
	exclaim := agent.NewValue("exclaim", func(_ context.Context, vars map[string]any) (any, error) {
		return vars["in"].(string) + "!", nil
	}, agent.WithID("exclaim"), agent.WithParameters(domain.Parameter{Name: "in", Required: true, IsDefault: true}))

	s, err := chain.NewSequential([]chain.Node{chain.NewAgentNode(upper), chain.NewAgentNode(exclaim)})
	require.NoError(t, err)

	out := s.Execute(context.Background(), map[string]any{"text": "hi"})

	assert.Equal(t, domain.StatusFinishedNormal, s.Status())
	assert.Equal(t, "HI!", out.Value())
	assert.Empty(t, s.WaitInputParameters())
}

func TestSequential_FailingNodeDoesNotAbort(t *testing.T) {
	boom := errors.New("boom")
	failing := &funcNode{id: "b", fn: func(context.Context, *chain.Chain) (domain.Output, error) {
		return nil, boom
	}}
	s, err := chain.NewSequential([]chain.Node{
		emit("a", domain.Output{"a": 1}),
		failing,
		emit("c", domain.Output{"c": 3}),
	})
	require.NoError(t, err)

	rec := &recorder{}
	var nodeErr error
	s.OnEvent(domain.EventNodeError, func(ev domain.Event, _ *chain.Chain) {
		nodeErr = ev.Err
		rec.listen(ev, nil)
	})

	out := s.Execute(context.Background(), nil)

	assert.Equal(t, domain.StatusFinishedNormal, s.Status())
	assert.Equal(t, domain.Output{"c": 3}, out)
	assert.Equal(t, 1, rec.count(domain.EventNodeError, ""))
	assert.ErrorIs(t, nodeErr, boom)

	var ne *domain.NodeError
	require.ErrorAs(t, nodeErr, &ne)
	assert.Equal(t, "b", ne.NodeID)

	mem := s.LocalMemory()
	assert.Equal(t, 1, mem["a"])
	assert.Equal(t, 3, mem["c"])
}

func TestSequential_StopInsideFailingNode(t *testing.T) {
	ran := false
	stopper := &funcNode{id: "b", fn: func(_ context.Context, c *chain.Chain) (domain.Output, error) {
		c.Stop()
		return nil, errors.New("fatal")
	}}
	after := &funcNode{id: "c", fn: func(context.Context, *chain.Chain) (domain.Output, error) {
		ran = true
		return nil, nil
	}}
	s, err := chain.NewSequential([]chain.Node{emit("a", domain.NewOutput("a")), stopper, after})
	require.NoError(t, err)

	out := s.Execute(context.Background(), nil)

	assert.False(t, ran)
	assert.Equal(t, domain.StatusFinishedNormal, s.Status())
	assert.Equal(t, "a", out.Value())
}

func TestSequential_StopWithOutput(t *testing.T) {
	stopper := &funcNode{id: "b", fn: func(_ context.Context, c *chain.Chain) (domain.Output, error) {
		c.StopWith(domain.NewOutput("early"))
		return domain.NewOutput("ignored"), nil
	}}
	s, err := chain.NewSequential([]chain.Node{emit("a", domain.NewOutput("a")), stopper, emit("c", domain.NewOutput("c"))})
	require.NoError(t, err)

	out := s.Execute(context.Background(), nil)
	assert.Equal(t, "early", out.Value())
}

func TestSequential_SkippedNodeRunsButKeepsLastResult(t *testing.T) {
	ran := false
	skipped := &funcNode{id: "b", skip: true, fn: func(context.Context, *chain.Chain) (domain.Output, error) {
		ran = true
		return domain.Output{"output": "b", "b": true}, nil
	}}
	s, err := chain.NewSequential([]chain.Node{emit("a", domain.NewOutput("a")), skipped})
	require.NoError(t, err)

	out := s.Execute(context.Background(), nil)

	assert.True(t, ran)
	assert.Equal(t, "a", out.Value())
	_, ok := s.Get("b")
	assert.False(t, ok)
}

func TestSequential_SkipCondition(t *testing.T) {
	shout := constant("shout", domain.NewOutput("LOUD"))
	s, err := chain.NewSequential([]chain.Node{
		emit("a", domain.Output{"quiet": true, "output": "a"}),
		chain.NewAgentNode(shout, chain.WithSkip(chain.WhenKey("quiet"))),
	})
	require.NoError(t, err)

	out := s.Execute(context.Background(), nil)
	assert.Equal(t, "a", out.Value())
}

func TestSequential_PanicBecomesNodeError(t *testing.T) {
	panicky := &funcNode{id: "p", fn: func(context.Context, *chain.Chain) (domain.Output, error) {
		panic("kaboom")
	}}
	s, err := chain.NewSequential([]chain.Node{panicky, emit("after", domain.NewOutput("ok"))})
	require.NoError(t, err)

	rec := &recorder{}
	s.OnEvent(domain.EventAny, rec.listen)

	out := s.Execute(context.Background(), nil)
	assert.Equal(t, "ok", out.Value())
	assert.Equal(t, 1, rec.count(domain.EventNodeError, s.ID()))
}

func TestSequential_CancelledContext(t *testing.T) {
	s, err := chain.NewSequential([]chain.Node{emit("a", domain.NewOutput("a"))})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Execute(ctx, nil)

	assert.Equal(t, domain.StatusFinishedAbnormal, s.Status())
	assert.ErrorIs(t, s.Err(), context.Canceled)
}

func TestSequential_DuplicateIDs(t *testing.T) {
	_, err := chain.NewSequential([]chain.Node{emit("a", nil), emit("a", nil)})
	assert.ErrorIs(t, err, domain.ErrDuplicateID)
}

func TestSequential_IDGenerator(t *testing.T) {
	gen := ids.NewSequence("chain")
	s1, err := chain.NewSequential(nil, chain.WithIDGenerator(gen))
	require.NoError(t, err)
	s2, err := chain.NewSequential(nil, chain.WithIDGenerator(gen))
	require.NoError(t, err)

	assert.Equal(t, "chain-1", s1.ID())
	assert.Equal(t, "chain-2", s2.ID())
}

func TestAgentNode_WaitsOnceForAllMissing(t *testing.T) {
	sum := agent.NewValue("sum", func(_ context.Context, vars map[string]any) (any, error) {
		return vars["a"].(string) + vars["b"].(string), nil
	}, agent.WithID("sum"), agent.WithParameters(domain.Required("a"), domain.Required("b"), domain.Optional("c")))

	s, err := chain.NewSequential([]chain.Node{chain.NewAgentNode(sum)})
	require.NoError(t, err)

	var calls [][]domain.Parameter
	s.OnInput(func(_ *chain.Chain, missing []domain.Parameter) {
		calls = append(calls, missing)
	})

	s.Execute(context.Background(), nil)

	require.Len(t, calls, 1)
	assert.Equal(t, []string{"a", "b"}, domain.ParameterNames(calls[0]))
	assert.Equal(t, domain.StatusPauseForInput, s.Status())
	assert.Equal(t, []string{"a", "b"}, domain.ParameterNames(s.WaitInputParameters()))
}

func TestAgentNode_OutputMapping(t *testing.T) {
	a := constant("a", domain.Output{"output": "v", "extra": "dropped"}, agent.WithOutputKeys("output"))
	s, err := chain.NewSequential([]chain.Node{
		chain.NewAgentNode(a, chain.WithOutputMapping(map[string]string{"output": "answer"})),
	})
	require.NoError(t, err)

	out := s.Execute(context.Background(), nil)

	assert.Equal(t, domain.Output{"answer": "v"}, out)
	v, ok := s.Get("answer")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	_, ok = s.Get("extra")
	assert.False(t, ok)
}

func TestAgentNode_AgentMappingTable(t *testing.T) {
	a := constant("a", domain.Output{"output": "v"},
		agent.WithOutputKeys("output"),
		agent.WithOutputMapping(map[string]string{"output": "mapped"}))
	s, err := chain.NewSequential([]chain.Node{chain.NewAgentNode(a)})
	require.NoError(t, err)

	out := s.Execute(context.Background(), nil)
	assert.Equal(t, domain.Output{"mapped": "v"}, out)
}

func TestScenario_PauseAndResume(t *testing.T) {
	a := constant("a", domain.NewOutput("A"))
	b := agent.NewValue("b", func(_ context.Context, vars map[string]any) (any, error) {
		return "B:" + vars["p1"].(string), nil
	}, agent.WithID("b"), agent.WithParameters(domain.Required("p1")))

	s, err := chain.NewSequential([]chain.Node{chain.NewAgentNode(a), chain.NewAgentNode(b)})
	require.NoError(t, err)

	s.Execute(context.Background(), map[string]any{})

	assert.Equal(t, domain.StatusPauseForInput, s.Status())
	assert.Equal(t, []string{"p1"}, domain.ParameterNames(s.WaitInputParameters()))
	assert.Equal(t, 1, s.Cursor())

	require.True(t, s.Resume(context.Background(), map[string]any{"p1": "x"}))

	assert.Equal(t, domain.StatusFinishedNormal, s.Status())
	assert.Empty(t, s.WaitInputParameters())
	v, ok := s.Get("p1")
	require.True(t, ok)
	assert.Equal(t, "x", v)
	assert.Equal(t, "B:x", s.Output().Value())
}

func TestResume_NoOpUnlessPaused(t *testing.T) {
	s, err := chain.NewSequential([]chain.Node{emit("a", domain.NewOutput("a"))})
	require.NoError(t, err)

	assert.False(t, s.Resume(context.Background(), map[string]any{"x": 1}))
	assert.Equal(t, domain.StatusReady, s.Status())
	_, ok := s.Get("x")
	assert.False(t, ok)

	s.Execute(context.Background(), nil)
	assert.False(t, s.Resume(context.Background(), map[string]any{"x": 1}))
	assert.Equal(t, domain.StatusFinishedNormal, s.Status())
}

func TestResume_RequiresEveryWaitingParameter(t *testing.T) {
	both := constant("both", domain.NewOutput("ok"), agent.WithParameters(domain.Required("a"), domain.Required("b")))
	s, err := chain.NewSequential([]chain.Node{chain.NewAgentNode(both)})
	require.NoError(t, err)

	s.Execute(context.Background(), nil)
	require.Equal(t, domain.StatusPauseForInput, s.Status())

	assert.False(t, s.Resume(context.Background(), map[string]any{"a": "1"}))
	assert.Equal(t, domain.StatusPauseForInput, s.Status())
	assert.Len(t, s.WaitInputParameters(), 2)

	assert.True(t, s.Resume(context.Background(), map[string]any{"a": "1", "b": "2"}))
	assert.Equal(t, domain.StatusFinishedNormal, s.Status())
}

func TestWaitWakeUp(t *testing.T) {
	sleeper := &funcNode{id: "sleep", fn: func(_ context.Context, c *chain.Chain) (domain.Output, error) {
		if v, ok := c.Get("signal"); ok {
			return domain.NewOutput(v), nil
		}
		c.WaitWakeUp([]domain.Parameter{domain.Required("signal")}, "sleep")
		return nil, nil
	}}
	s, err := chain.NewSequential([]chain.Node{sleeper})
	require.NoError(t, err)

	s.Execute(context.Background(), nil)
	assert.Equal(t, domain.StatusPauseForWakeUp, s.Status())

	require.True(t, s.Resume(context.Background(), map[string]any{"signal": "go"}))
	assert.Equal(t, "go", s.Output().Value())
}
