package chain

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/chainflow/pkg/domain"
)

// Parallel fans out to every eligible invoker against the same last result and
// reduces the ordered branch results into one output. Branches only read memory;
// the reduced output is written once all of them returned.
//
// A branch error fails the whole step and the chain finishes abnormally.
// Events raised by the branches are held and delivered on the calling
// goroutine once every branch returned, so listeners never run concurrently.
type Parallel struct {
	*Chain
	reduce   Reducer
	invokers []Invoker
}

// NewParallel builds a parallel chain. A nil reducer defaults to MergeAll.
func NewParallel(reduce Reducer, invokers []Invoker, opts ...Option) (*Parallel, error) {
	if err := uniqueIDs(invokerIDs(invokers)); err != nil {
		return nil, err
	}
	if reduce == nil {
		reduce = MergeAll
	}
	p := &Parallel{reduce: reduce, invokers: invokers}
	p.Chain = newChain(KindParallel, p, opts)
	if err := attachUnits(p.Chain, invokers); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parallel) describe() []domain.NodeInfo {
	return describeInvokers(p.invokers)
}

func (p *Parallel) executeInternal(ctx context.Context) (domain.Output, error) {
	return p.fanOut(ctx)
}

// resumeInternal reruns the whole fan-out; branches that completed before the
// suspension run again.
func (p *Parallel) resumeInternal(ctx context.Context) (domain.Output, error) {
	return p.fanOut(ctx)
}

func (p *Parallel) fanOut(ctx context.Context) (domain.Output, error) {
	last := p.LastResult()
	var active []Invoker
	for _, inv := range p.invokers {
		if inv.CheckCondition(ctx, p.Chain, last) {
			active = append(active, inv)
		}
	}

	release := p.holdEvents()
	defer release()

	results := make([]domain.Output, len(active))
	g, gctx := errgroup.WithContext(ctx)
	if p.concurrency > 0 {
		g.SetLimit(p.concurrency)
	}
	for i, inv := range active {
		g.Go(func() error {
			out, err := p.invoke(gctx, inv, last)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if p.isPaused() || p.IsStop() {
		return nil, nil
	}

	out := p.reduce(results)
	p.memory.Merge(out)
	p.setLastResult(out)
	return out, nil
}
