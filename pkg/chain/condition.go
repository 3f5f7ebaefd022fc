package chain

import (
	"context"
	"strconv"
	"strings"

	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ports"
)

// Condition decides whether an invoker participates in the current pass, or
// whether a node result is skipped. ctx is the context of the run.
type Condition func(ctx context.Context, c *Chain, last domain.Output) bool

// Always is the default invoker condition.
func Always(context.Context, *Chain, domain.Output) bool { return true }

// Not negates a condition.
func Not(cond Condition) Condition {
	return func(ctx context.Context, c *Chain, last domain.Output) bool {
		return !cond(ctx, c, last)
	}
}

// And holds when every condition holds.
func And(conds ...Condition) Condition {
	return func(ctx context.Context, c *Chain, last domain.Output) bool {
		for _, cond := range conds {
			if !cond(ctx, c, last) {
				return false
			}
		}
		return true
	}
}

// MaxPasses halts the chain once n loop passes completed.
func MaxPasses(n int) Condition {
	return func(_ context.Context, c *Chain, _ domain.Output) bool {
		if c.Passes() >= n {
			c.Halt()
			return false
		}
		return true
	}
}

// WhenKey holds when the last result carries key.
func WhenKey(key string) Condition {
	return func(_ context.Context, _ *Chain, last domain.Output) bool {
		return last.Has(key)
	}
}

// ExpressionCondition evaluates expr with engine and parses the result as a boolean.
// Evaluation errors, cancellation included, count as false.
func ExpressionCondition(engine ports.ExpressionEngine, expr string) Condition {
	return func(ctx context.Context, c *Chain, _ domain.Output) bool {
		res, err := engine.Run(ctx, expr, c)
		if err != nil {
			c.logger.Warn("condition failed", "chain_id", c.ID(), "expr", expr, "err", err)
			return false
		}
		ok, err := strconv.ParseBool(strings.TrimSpace(res))
		return err == nil && ok
	}
}

func (cfg nodeConfig) check(ctx context.Context, c *Chain, last domain.Output) bool {
	if cfg.condition == nil {
		return true
	}
	return cfg.condition(ctx, c, last)
}

func (cfg nodeConfig) skipped(ctx context.Context, c *Chain) bool {
	if cfg.skip == nil {
		return false
	}
	return cfg.skip(ctx, c, c.LastResult())
}
