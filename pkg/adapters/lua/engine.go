// Package lua evaluates routing expressions and conditions with gopher-lua.
//
// Every visible memory key is exposed as a global and inside the `memory`
// table. A single expression is evaluated as `return <expr>`; longer chunks
// must return their own value. Tables are returned as a comma-separated list
// of their array part, which is the format routers expect.
package lua

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	glua "github.com/yuin/gopher-lua"

	"github.com/aretw0/chainflow/internal/logging"
	"github.com/aretw0/chainflow/pkg/ports"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Engine implements ports.ExpressionEngine. Each Run uses a fresh Lua state.
type Engine struct {
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an expression engine.
func New(opts ...Option) *Engine {
	e := &Engine{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ ports.ExpressionEngine = (*Engine)(nil)

// Run evaluates expression against the chain memory and returns its text value.
func (e *Engine) Run(ctx context.Context, expression string, view ports.ChainView) (string, error) {
	L := glua.NewState(glua.Options{SkipOpenLibs: true})
	defer L.Close()
	L.SetContext(ctx)

	if err := openLibs(L); err != nil {
		return "", err
	}

	memory := L.NewTable()
	if view != nil {
		for k, v := range view.Memory() {
			lv := toLValue(L, v)
			memory.RawSetString(k, lv)
			if identifier.MatchString(k) {
				L.SetGlobal(k, lv)
			}
		}
		L.SetGlobal("chain_id", glua.LString(view.ID()))
	}
	L.SetGlobal("memory", memory)

	if err := L.DoString(chunk(expression)); err != nil {
		e.logger.Debug("lua expression failed", "expr", expression, "err", err)
		return "", fmt.Errorf("lua: %w", err)
	}
	if L.GetTop() == 0 {
		return "", nil
	}
	ret := L.Get(-1)
	L.Pop(1)
	return toText(ret), nil
}

func chunk(expr string) string {
	trimmed := strings.TrimSpace(expr)
	if strings.HasPrefix(trimmed, "return") || strings.Contains(trimmed, "\n") {
		return trimmed
	}
	return "return " + trimmed
}

func openLibs(L *glua.LState) error {
	libs := []struct {
		name string
		fn   glua.LGFunction
	}{
		{glua.BaseLibName, glua.OpenBase},
		{glua.TabLibName, glua.OpenTable},
		{glua.StringLibName, glua.OpenString},
		{glua.MathLibName, glua.OpenMath},
	}
	for _, lib := range libs {
		if err := L.CallByParam(glua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, glua.LString(lib.name)); err != nil {
			return fmt.Errorf("lua: open %s: %w", lib.name, err)
		}
	}
	for _, name := range unsafeGlobals {
		L.SetGlobal(name, glua.LNil)
	}
	return nil
}

// unsafeGlobals are base library functions that reach the file system, the
// module loader or stdout.
var unsafeGlobals = []string{
	"dofile", "loadfile", "load", "loadstring",
	"require", "module",
	"print", "_printregs",
	"collectgarbage",
}

func toLValue(L *glua.LState, v any) glua.LValue {
	switch t := v.(type) {
	case nil:
		return glua.LNil
	case string:
		return glua.LString(t)
	case bool:
		return glua.LBool(t)
	case int:
		return glua.LNumber(t)
	case int32:
		return glua.LNumber(t)
	case int64:
		return glua.LNumber(t)
	case float32:
		return glua.LNumber(t)
	case float64:
		return glua.LNumber(t)
	case []any:
		tbl := L.NewTable()
		for _, item := range t {
			tbl.Append(toLValue(L, item))
		}
		return tbl
	case []string:
		tbl := L.NewTable()
		for _, item := range t {
			tbl.Append(glua.LString(item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range t {
			tbl.RawSetString(k, toLValue(L, item))
		}
		return tbl
	default:
		return glua.LString(fmt.Sprint(t))
	}
}

func toText(v glua.LValue) string {
	switch t := v.(type) {
	case *glua.LNilType:
		return ""
	case glua.LBool:
		return strconv.FormatBool(bool(t))
	case glua.LNumber:
		return strconv.FormatFloat(float64(t), 'f', -1, 64)
	case glua.LString:
		return string(t)
	case *glua.LTable:
		var parts []string
		if t.Len() > 0 {
			for i := 1; i <= t.Len(); i++ {
				parts = append(parts, toText(t.RawGetInt(i)))
			}
			return strings.Join(parts, ",")
		}
		t.ForEach(func(k, val glua.LValue) {
			if glua.LVAsBool(val) {
				parts = append(parts, toText(k))
			}
		})
		sort.Strings(parts)
		return strings.Join(parts, ",")
	default:
		return v.String()
	}
}
