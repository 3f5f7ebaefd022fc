package definition_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chainflow/pkg/adapters/lua"
	"github.com/aretw0/chainflow/pkg/chain"
	"github.com/aretw0/chainflow/pkg/definition"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/registry"
)

func newCompiler() *definition.Compiler {
	reg := registry.NewRegistry()
	registry.RegisterBuiltins(reg, nil)
	reg.RegisterFunc("double", func(_ context.Context, args map[string]any) (any, error) {
		return args["x"].(int) * 2, nil
	})
	reg.RegisterFunc("square", func(_ context.Context, args map[string]any) (any, error) {
		x := args["x"].(int)
		return x * x, nil
	})
	return &definition.Compiler{Registry: reg, Engine: lua.New()}
}

func compile(t *testing.T, src string) *chain.Chain {
	t.Helper()
	def, err := definition.Parse([]byte(src), "yaml")
	require.NoError(t, err)
	r, err := newCompiler().Compile(def)
	require.NoError(t, err)
	return r.Core()
}

func TestCompile_SequentialSuspendResume(t *testing.T) {
	c := compile(t, `
id: greet
agents:
  - id: ask
    type: user
    with: {param: name}
  - id: hello
    type: template
    params:
      - name: name
        required: true
    with:
      text: "Hello, {{.name}}!"
nodes:
  - agent: ask
  - agent: hello
`)
	assert.Equal(t, "greet", c.Name())
	assert.Equal(t, chain.KindSequential, c.Kind())

	c.Execute(context.Background(), nil)
	require.Equal(t, domain.StatusPauseForInput, c.Status())
	assert.Equal(t, []string{"name"}, domain.ParameterNames(c.WaitInputParameters()))

	require.True(t, c.Resume(context.Background(), map[string]any{"name": "Ada"}))
	assert.Equal(t, "Hello, Ada!", c.Output().Value())
}

func TestCompile_ParallelCollect(t *testing.T) {
	c := compile(t, `
id: math
kind: parallel
reduce: collect
concurrency: 2
agents:
  - id: double
    type: double
    params: [{name: x, required: true}]
  - id: square
    type: square
    params: [{name: x, required: true}]
nodes:
  - agent: double
  - agent: square
`)
	out := c.Execute(context.Background(), map[string]any{"x": 3})
	assert.Equal(t, []any{6, 9}, out.Value())
}

func TestCompile_LoopMaxPasses(t *testing.T) {
	c := compile(t, `
id: ticker
kind: loop
agents:
  - id: tick
    type: constant
    with: {value: tick}
nodes:
  - agent: tick
    max_passes: 3
`)
	c.Execute(context.Background(), nil)
	assert.Equal(t, domain.StatusFinishedNormal, c.Status())
	assert.Equal(t, 3, c.Passes())
}

func TestCompile_RouterChainExpression(t *testing.T) {
	c := compile(t, `
id: lang
kind: router
route:
  expression: 'lang == "pt" and "pt" or "en"'
agents:
  - {id: pt, type: constant, with: {value: olá}}
  - {id: en, type: constant, with: {value: hello}}
nodes:
  - agent: pt
  - agent: en
`)
	out := c.Execute(context.Background(), map[string]any{"lang": "pt"})
	assert.Equal(t, "olá", out.Value())
}

func TestCompile_RouterNodeAndOutputs(t *testing.T) {
	c := compile(t, `
id: fan
agents:
  - {id: b, type: constant, with: {value: B}, outputs: [output]}
  - {id: c, type: constant, with: {value: C}, outputs: [output]}
nodes:
  - id: pick
    router:
      static: b,c
      strategy: all
      nodes:
        - {agent: b, outputs: {output: from_b}}
        - {agent: c, outputs: {output: from_c}}
`)
	out := c.Execute(context.Background(), nil)
	assert.Equal(t, domain.Output{"from_b": "B", "from_c": "C"}, out)
}

func TestCompile_NestedChainAndConditions(t *testing.T) {
	c := compile(t, `
id: outer
memory: {mode: quiet}
nodes:
  - chain:
      id: inner
      kind: parallel
      reduce: merge
      agents:
        - {id: loud, type: constant, with: {value: LOUD}, outputs: [output], mapping: {output: loud}}
        - {id: soft, type: constant, with: {value: soft}, outputs: [output], mapping: {output: soft}}
      nodes:
        - {agent: loud, when: 'mode == "loud"'}
        - {agent: soft, when: 'mode == "quiet"'}
  - agent: constant
    id: skipped
    skip: 'mode == "quiet"'
`)
	out := c.Execute(context.Background(), nil)
	assert.Equal(t, domain.Output{"soft": "soft"}, out)
	require.Len(t, c.Children(), 1)
	assert.Equal(t, "inner", c.Children()[0].Name())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown kind", "id: x\nkind: dag\nnodes: []"},
		{"unknown field", "id: x\nnodez: []"},
		{"unknown reducer", "id: x\nkind: parallel\nreduce: vote\nnodes: []"},
		{"router without route", "id: x\nkind: router\nnodes: []"},
		{"two targets", "id: x\nnodes:\n  - {id: n, agent: a, chain: {id: y, nodes: []}}"},
		{"router node without route", "id: x\nnodes:\n  - {id: r, router: {nodes: []}}"},
		{"unknown param type", "id: x\nagents:\n  - {id: a, type: user, params: [{name: n, type: uuid}]}\nnodes: []"},
		{"broken yaml", "id: [x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := definition.Parse([]byte(tt.src), "yaml")
			assert.ErrorIs(t, err, domain.ErrInvalidDefinition)
		})
	}
}

func TestCompile_UnknownAgent(t *testing.T) {
	def, err := definition.Parse([]byte("id: x\nnodes:\n  - agent: nope"), "yaml")
	require.NoError(t, err)

	_, err = newCompiler().Compile(def)
	assert.ErrorIs(t, err, domain.ErrUnknownAgent)
}

func TestCompile_DuplicateNodeIDs(t *testing.T) {
	def, err := definition.Parse([]byte("id: x\nnodes:\n  - agent: constant\n  - agent: constant"), "yaml")
	require.NoError(t, err)

	_, err = newCompiler().Compile(def)
	assert.ErrorIs(t, err, domain.ErrDuplicateID)
}

func TestParse_JSON(t *testing.T) {
	def, err := definition.Parse([]byte(`{"id":"j","kind":"sequential","nodes":[{"agent":"constant"}]}`), "json")
	require.NoError(t, err)
	assert.Equal(t, "j", def.ID)
	assert.Equal(t, "constant", def.Nodes[0].ID)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "first.yaml"), []byte("nodes:\n  - agent: constant\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "second.json"), []byte(`{"id":"named","nodes":[]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	defs, err := definition.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "named"}, definition.IDs(defs))
}
