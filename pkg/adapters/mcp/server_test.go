package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chainflow"
	"github.com/aretw0/chainflow/pkg/definition"
	"github.com/aretw0/chainflow/pkg/domain"
)

func newServer(t *testing.T) *Server {
	t.Helper()
	def, err := definition.Parse([]byte(`
id: greeter
agents:
  - id: ask
    type: user
    with: {param: name}
  - id: hello
    type: template
    params: [{name: name, required: true}]
    with: {text: "Hello, {{.name}}!"}
nodes:
  - agent: ask
  - agent: hello
`), "yaml")
	require.NoError(t, err)
	eng, err := chainflow.New(chainflow.WithDefinitions(def))
	require.NoError(t, err)
	return NewServer(eng)
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestServer_ExecuteResumeInspect(t *testing.T) {
	ctx := context.Background()
	s := newServer(t)

	started, err := s.handleExecute(ctx, mcp.CallToolRequest{}, map[string]interface{}{"chain": "greeter"})
	require.NoError(t, err)
	assert.True(t, started.Suspended)
	assert.Equal(t, []string{"name"}, started.Waiting)

	_, err = s.handleResume(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"run_id": started.Run.ID,
		"vars":   `{}`,
	})
	assert.ErrorIs(t, err, domain.ErrNotResumable)

	done, err := s.handleResume(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"run_id": started.Run.ID,
		"vars":   `{"name": "Ada"}`,
	})
	require.NoError(t, err)
	assert.False(t, done.Suspended)
	assert.Equal(t, "Hello, Ada!", done.Run.Output.Value())

	inspected, err := s.handleInspect(ctx, mcp.CallToolRequest{}, map[string]interface{}{"run_id": started.Run.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinishedNormal, inspected.Run.Status)

	res, err := s.handleListRuns(ctx, mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), started.Run.ID)
}

func TestServer_ExecuteErrors(t *testing.T) {
	ctx := context.Background()
	s := newServer(t)

	_, err := s.handleExecute(ctx, mcp.CallToolRequest{}, map[string]interface{}{})
	assert.Error(t, err)

	_, err = s.handleExecute(ctx, mcp.CallToolRequest{}, map[string]interface{}{"chain": "missing"})
	assert.ErrorIs(t, err, chainflow.ErrChainNotFound)

	_, err = s.handleExecute(ctx, mcp.CallToolRequest{}, map[string]interface{}{"chain": "greeter", "vars": "[1]"})
	assert.Error(t, err)
}

func TestServer_ListChainsAndResource(t *testing.T) {
	s := newServer(t)

	res, err := s.handleListChains(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.JSONEq(t, `["greeter"]`, resultText(t, res))

	text, err := s.chainsJSON()
	require.NoError(t, err)
	var defs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &defs))
	require.Len(t, defs, 1)
	assert.Equal(t, "greeter", defs[0]["id"])
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars(map[string]any{"a": "x\x07"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "x"}, vars)

	vars, err = parseVars("  ")
	require.NoError(t, err)
	assert.Nil(t, vars)

	_, err = parseVars(map[string]any{"a": strings.Repeat("x", 5000)})
	assert.Error(t, err)

	_, err = parseVars(42)
	assert.Error(t, err)
}
