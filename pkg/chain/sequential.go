package chain

import (
	"context"

	"github.com/aretw0/chainflow/pkg/domain"
)

// Sequential runs its nodes in order, threading the last result from step to step.
// A failing node is reported and the next node runs.
type Sequential struct {
	*Chain
	nodes []Node
}

// NewSequential builds a sequential chain. Node ids must be unique.
func NewSequential(nodes []Node, opts ...Option) (*Sequential, error) {
	if err := uniqueIDs(nodeIDs(nodes)); err != nil {
		return nil, err
	}
	s := &Sequential{nodes: nodes}
	s.Chain = newChain(KindSequential, s, opts)
	if err := attachUnits(s.Chain, nodes); err != nil {
		return nil, err
	}
	return s, nil
}

// Nodes returns the node list.
func (s *Sequential) Nodes() []Node {
	return append([]Node(nil), s.nodes...)
}

func (s *Sequential) describe() []domain.NodeInfo {
	return describeNodes(s.nodes)
}

func (s *Sequential) executeInternal(ctx context.Context) (domain.Output, error) {
	return s.runFrom(ctx, 0)
}

func (s *Sequential) resumeInternal(ctx context.Context) (domain.Output, error) {
	return s.runFrom(ctx, s.Cursor())
}

func (s *Sequential) runFrom(ctx context.Context, start int) (domain.Output, error) {
	for i := start; i < len(s.nodes); i++ {
		if s.IsStop() {
			break
		}
		if err := ctx.Err(); err != nil {
			return s.LastResult(), err
		}
		s.setCursor(i)

		node := s.nodes[i]
		skip := node.Skip(ctx, s.Chain)
		out, err := s.executeNode(ctx, node)
		if err != nil {
			continue
		}
		if s.isPaused() {
			return nil, nil
		}
		if skip || out == nil {
			continue
		}
		s.memory.Merge(out)
		s.setLastResult(out)
	}
	return s.LastResult(), nil
}
