package chain

import (
	"context"

	"github.com/aretw0/chainflow/pkg/domain"
)

// Loop reruns its invokers pass after pass until the chain stops. Conditions are
// re-evaluated on every pass. A pass in which no invoker was eligible ends the loop.
type Loop struct {
	*Chain
	invokers []Invoker
}

// NewLoop builds a loop chain. Termination comes from an invoker, a condition
// (see MaxPasses) or an agent calling Stop, or from context cancellation.
func NewLoop(invokers []Invoker, opts ...Option) (*Loop, error) {
	if err := uniqueIDs(invokerIDs(invokers)); err != nil {
		return nil, err
	}
	l := &Loop{invokers: invokers}
	l.Chain = newChain(KindLoop, l, opts)
	if err := attachUnits(l.Chain, invokers); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loop) describe() []domain.NodeInfo {
	return describeInvokers(l.invokers)
}

func (l *Loop) executeInternal(ctx context.Context) (domain.Output, error) {
	return l.runFrom(ctx, 0)
}

func (l *Loop) resumeInternal(ctx context.Context) (domain.Output, error) {
	return l.runFrom(ctx, l.Cursor())
}

func (l *Loop) runFrom(ctx context.Context, start int) (domain.Output, error) {
	for !l.IsStop() {
		if err := ctx.Err(); err != nil {
			return l.LastResult(), err
		}

		ran := false
		for i := start; i < len(l.invokers); i++ {
			if l.IsStop() {
				break
			}
			l.setCursor(i)

			inv := l.invokers[i]
			last := l.LastResult()
			if !inv.CheckCondition(ctx, l.Chain, last) {
				continue
			}
			ran = true
			out, err := l.invoke(ctx, inv, last)
			if err != nil {
				continue
			}
			if l.isPaused() {
				return nil, nil
			}
			if out != nil {
				l.memory.Merge(out)
				l.setLastResult(out)
			}
		}
		start = 0

		if l.IsStop() {
			break
		}
		l.addPass()
		if !ran {
			break
		}
	}
	return l.LastResult(), nil
}
