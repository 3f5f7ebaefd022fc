package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/chainflow/pkg/domain"
)

// ChainNode embeds a child chain as one step of a node-oriented chain.
// The child reads the parent memory through hierarchical lookup.
type ChainNode struct {
	child *Chain
	cfg   nodeConfig
}

// NewChainNode wraps child. The node id defaults to the child chain id.
func NewChainNode(child Runnable, opts ...NodeOption) *ChainNode {
	cfg := newNodeConfig(opts)
	core := child.Core()
	if cfg.id == "" {
		cfg.id = core.ID()
	}
	if cfg.name == "" {
		cfg.name = core.Name()
	}
	return &ChainNode{child: core, cfg: cfg}
}

func (n *ChainNode) ID() string   { return n.cfg.id }
func (n *ChainNode) Name() string { return n.cfg.name }
func (n *ChainNode) Kind() string { return "chain:" + n.child.Kind() }

// Child returns the embedded chain.
func (n *ChainNode) Child() *Chain { return n.child }

func (n *ChainNode) Skip(ctx context.Context, c *Chain) bool { return n.cfg.skipped(ctx, c) }

func (n *ChainNode) Execute(ctx context.Context, c *Chain) (domain.Output, error) {
	return runChild(ctx, c, n.child, n.cfg.id)
}

func (n *ChainNode) attachTo(parent *Chain) error {
	return n.child.attach(parent, true)
}

// ChainInvoker embeds a child chain in Parallel, Loop and RouterChain.
type ChainInvoker struct {
	child *Chain
	cfg   nodeConfig
}

// NewChainInvoker wraps child. The invoker id defaults to the child chain id.
func NewChainInvoker(child Runnable, opts ...NodeOption) *ChainInvoker {
	cfg := newNodeConfig(opts)
	core := child.Core()
	if cfg.id == "" {
		cfg.id = core.ID()
	}
	return &ChainInvoker{child: core, cfg: cfg}
}

func (i *ChainInvoker) ID() string   { return i.cfg.id }
func (i *ChainInvoker) Kind() string { return "chain:" + i.child.Kind() }

func (i *ChainInvoker) CheckCondition(ctx context.Context, c *Chain, last domain.Output) bool {
	return i.cfg.check(ctx, c, last)
}

func (i *ChainInvoker) Invoke(ctx context.Context, c *Chain, _ domain.Output) (domain.Output, error) {
	return runChild(ctx, c, i.child, i.cfg.id)
}

func (i *ChainInvoker) attachTo(parent *Chain) error {
	return i.child.attach(parent, true)
}

// runChild executes the child, or resumes it when it is suspended. Child
// suspension is mirrored onto the parent waiting list.
func runChild(ctx context.Context, parent, child *Chain, unitID string) (domain.Output, error) {
	if child.isPaused() {
		waiting := child.WaitInputParameters()
		vals := make(map[string]any, len(waiting))
		for _, p := range waiting {
			if v, ok := parent.Get(p.Name); ok {
				vals[p.Name] = v
			}
		}
		if !child.Resume(ctx, vals) {
			parent.WaitInput(waiting, unitID)
			return nil, nil
		}
	} else {
		child.Execute(ctx, nil)
	}

	switch status := child.Status(); {
	case status.IsPaused():
		parent.WaitInput(child.WaitInputParameters(), unitID)
		return nil, nil
	case status == domain.StatusFinishedAbnormal:
		err := child.Err()
		if err == nil {
			err = errors.New("finished abnormally")
		}
		return nil, fmt.Errorf("child chain %s: %w", child.ID(), err)
	}
	return child.Output(), nil
}
