package agent

import (
	"context"

	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ports"
)

// ExecuteFunc is the body of a Func agent.
type ExecuteFunc func(ctx context.Context, vars map[string]any, view ports.ChainView) (domain.Output, error)

// Func is an agent whose work is a plain Go function.
type Func struct {
	Base
	fn ExecuteFunc
}

// NewFunc builds a function agent.
func NewFunc(name string, fn ExecuteFunc, opts ...Option) *Func {
	return &Func{Base: NewBase(name, opts...), fn: fn}
}

func (f *Func) Execute(ctx context.Context, vars map[string]any, view ports.ChainView) (domain.Output, error) {
	return f.fn(ctx, vars, view)
}

// ValueFunc computes a single value.
type ValueFunc func(ctx context.Context, vars map[string]any) (any, error)

// Value is a plain-value agent: its result is stored under domain.DefaultOutputKey.
type Value struct {
	Base
	fn ValueFunc
}

// NewValue builds a plain-value agent.
func NewValue(name string, fn ValueFunc, opts ...Option) *Value {
	return &Value{Base: NewBase(name, opts...), fn: fn}
}

func (v *Value) Execute(ctx context.Context, vars map[string]any, _ ports.ChainView) (domain.Output, error) {
	res, err := v.fn(ctx, vars)
	if err != nil {
		return nil, err
	}
	return domain.NewOutput(res), nil
}

// Constant returns the same value on every run.
func Constant(name string, value any, opts ...Option) *Value {
	return NewValue(name, func(context.Context, map[string]any) (any, error) {
		return value, nil
	}, opts...)
}
