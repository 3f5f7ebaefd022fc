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
	"github.com/aretw0/chainflow/pkg/ports"
)

func TestEvents_CategorySubscription(t *testing.T) {
	s, err := chain.NewSequential([]chain.Node{emit("a", domain.NewOutput("a"))})
	require.NoError(t, err)

	all, chains, nodes, finished := &recorder{}, &recorder{}, &recorder{}, &recorder{}
	s.OnEvent(domain.EventAny, all.listen)
	s.OnEvent(domain.EventChain, chains.listen)
	s.OnEvent(domain.EventNode, nodes.listen)
	s.OnEvent(domain.EventChainFinished, finished.listen)

	s.Execute(context.Background(), nil)

	assert.Equal(t, []domain.EventKind{
		domain.EventChainStart,
		domain.EventNodeStart,
		domain.EventNodeFinish,
		domain.EventChainFinished,
	}, all.kinds())
	assert.Equal(t, []domain.EventKind{domain.EventChainStart, domain.EventChainFinished}, chains.kinds())
	assert.Equal(t, []domain.EventKind{domain.EventNodeStart, domain.EventNodeFinish}, nodes.kinds())
	assert.Equal(t, 1, finished.count(domain.EventChainFinished, s.ID()))
}

func TestEvents_FinishedFiresOncePerRunAfterTerminalStatus(t *testing.T) {
	needs := constant("needs", domain.NewOutput("done"), agent.WithParameters(domain.Required("p")))
	s, err := chain.NewSequential([]chain.Node{chain.NewAgentNode(needs)})
	require.NoError(t, err)

	var statusAtFinish []domain.Status
	s.OnEvent(domain.EventChainFinished, func(_ domain.Event, c *chain.Chain) {
		statusAtFinish = append(statusAtFinish, c.Status())
	})
	var outputs []domain.Output
	s.OnOutput(func(_ *chain.Chain, out domain.Output) {
		outputs = append(outputs, out)
	})

	s.Execute(context.Background(), nil)
	assert.Empty(t, statusAtFinish)
	assert.Empty(t, outputs)

	require.True(t, s.Resume(context.Background(), map[string]any{"p": "v"}))
	assert.Equal(t, []domain.Status{domain.StatusFinishedNormal}, statusAtFinish)
	require.Len(t, outputs, 1)
	assert.Equal(t, "done", outputs[0].Value())
}

func TestEvents_BubbleToParent(t *testing.T) {
	child, err := chain.NewSequential([]chain.Node{emit("inner", domain.NewOutput("inner"))}, chain.WithID("child"))
	require.NoError(t, err)
	parent, err := chain.NewSequential([]chain.Node{chain.NewChainNode(child)}, chain.WithID("parent"))
	require.NoError(t, err)

	rec := &recorder{}
	parent.OnEvent(domain.EventAny, rec.listen)

	out := parent.Execute(context.Background(), nil)

	assert.Equal(t, "inner", out.Value())
	assert.Equal(t, 1, rec.count(domain.EventChainStart, "child"))
	assert.Equal(t, 1, rec.count(domain.EventChainFinished, "child"))
	assert.Equal(t, 1, rec.count(domain.EventChainFinished, "parent"))
	assert.Equal(t, 1, rec.count(domain.EventNodeFinish, "child"))

	require.Len(t, parent.Children(), 1)
	assert.Same(t, parent.Chain, child.Parent())
}

func TestAttach_OnlyOnce(t *testing.T) {
	child, err := chain.NewSequential(nil)
	require.NoError(t, err)

	_, err = chain.NewSequential([]chain.Node{chain.NewChainNode(child)})
	require.NoError(t, err)

	_, err = chain.NewSequential([]chain.Node{chain.NewChainNode(child)})
	assert.ErrorIs(t, err, domain.ErrAlreadyAttached)
}

func TestHierarchicalLookup(t *testing.T) {
	var seen any
	reader := &funcNode{id: "reader", fn: func(_ context.Context, c *chain.Chain) (domain.Output, error) {
		seen, _ = c.Get("shared")
		return nil, nil
	}}
	child, err := chain.NewSequential([]chain.Node{reader})
	require.NoError(t, err)
	parent, err := chain.NewSequential([]chain.Node{chain.NewChainNode(child)}, chain.WithMemory(map[string]any{"shared": "from-parent"}))
	require.NoError(t, err)

	parent.Execute(context.Background(), nil)

	assert.Equal(t, "from-parent", seen)
	_, ok := child.LocalMemory()["shared"]
	assert.False(t, ok, "lookups must not copy parent values")
	assert.Equal(t, "from-parent", child.Memory()["shared"])
}

func TestChainNode_SuspendPropagatesAndResumes(t *testing.T) {
	ask := agent.NewUser("ask", "name", agent.WithID("ask"))
	child, err := chain.NewSequential([]chain.Node{chain.NewAgentNode(ask)}, chain.WithID("child"))
	require.NoError(t, err)

	greet, err := agent.NewTemplate("greet", "Hello, {{.name}}!",
		agent.WithID("greet"), agent.WithParameters(domain.Required("name")))
	require.NoError(t, err)

	parent, err := chain.NewSequential([]chain.Node{
		chain.NewChainNode(child),
		chain.NewAgentNode(greet),
	}, chain.WithID("parent"))
	require.NoError(t, err)

	parent.Execute(context.Background(), nil)

	assert.Equal(t, domain.StatusPauseForInput, parent.Status())
	assert.Equal(t, domain.StatusPauseForInput, child.Status())
	assert.Equal(t, []string{"name"}, domain.ParameterNames(parent.WaitInputParameters()))

	require.True(t, parent.Resume(context.Background(), map[string]any{"name": "Ada"}))

	assert.Equal(t, domain.StatusFinishedNormal, child.Status())
	assert.Equal(t, domain.StatusFinishedNormal, parent.Status())
	assert.Equal(t, "Hello, Ada!", parent.Output().Value())
}

func TestStop_RecursesToParent(t *testing.T) {
	stopper := &funcNode{id: "stop", fn: func(_ context.Context, c *chain.Chain) (domain.Output, error) {
		c.Stop()
		return nil, nil
	}}
	child, err := chain.NewSequential([]chain.Node{stopper})
	require.NoError(t, err)

	ran := false
	after := &funcNode{id: "after", fn: func(context.Context, *chain.Chain) (domain.Output, error) {
		ran = true
		return nil, nil
	}}
	parent, err := chain.NewSequential([]chain.Node{chain.NewChainNode(child), after})
	require.NoError(t, err)

	parent.Execute(context.Background(), nil)

	assert.False(t, ran)
	assert.True(t, parent.IsStop())
	assert.Equal(t, domain.StatusFinishedNormal, parent.Status())
}

func TestChainNode_AbnormalChildIsNodeError(t *testing.T) {
	boom := errors.New("boom")
	failing := agent.NewFunc("bad", func(context.Context, map[string]any, ports.ChainView) (domain.Output, error) {
		return nil, boom
	}, agent.WithID("bad"))
	child, err := chain.NewParallel(chain.MergeAll, []chain.Invoker{chain.NewAgentInvoker(failing)}, chain.WithID("fan"))
	require.NoError(t, err)

	parent, err := chain.NewSequential([]chain.Node{
		chain.NewChainNode(child),
		emit("after", domain.NewOutput("after")),
	})
	require.NoError(t, err)

	var nodeErrs []error
	parent.OnEvent(domain.EventNodeError, func(ev domain.Event, _ *chain.Chain) {
		if ev.ChainID == parent.ID() {
			nodeErrs = append(nodeErrs, ev.Err)
		}
	})

	out := parent.Execute(context.Background(), nil)

	assert.Equal(t, domain.StatusFinishedAbnormal, child.Status())
	assert.Equal(t, domain.StatusFinishedNormal, parent.Status())
	assert.Equal(t, "after", out.Value())
	require.Len(t, nodeErrs, 1)
	assert.ErrorIs(t, nodeErrs[0], boom)
}

func TestMemory_ReadsNeverCreate(t *testing.T) {
	m := chain.NewMemory(map[string]any{"a": 1})
	_, ok := m.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())

	snap := m.Snapshot()
	snap["a"] = 2
	v, _ := m.Get("a")
	assert.Equal(t, 1, v)
}

func TestNodeKinds(t *testing.T) {
	node, err := chain.NewRouterNode("r", chain.StaticRouter("b"), routerTargets(), chain.WithStrategy(chain.StrategyFirst))
	require.NoError(t, err)
	s, err := chain.NewSequential([]chain.Node{node, chain.NewAgentNode(constant("a", nil))})
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap.Nodes, 2)
	assert.True(t, strings.HasPrefix(snap.Nodes[0].Kind, "router"))
	assert.Equal(t, "agent", snap.Nodes[1].Kind)
}

func TestParseStrategy(t *testing.T) {
	s, err := chain.ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, chain.StrategyAll, s)

	s, err = chain.ParseStrategy(" FIRST ")
	require.NoError(t, err)
	assert.Equal(t, chain.StrategyFirst, s)

	_, err = chain.ParseStrategy("vote")
	assert.Error(t, err)
}
