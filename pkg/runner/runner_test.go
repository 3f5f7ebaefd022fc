package runner

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chainflow"
	"github.com/aretw0/chainflow/pkg/definition"
	"github.com/aretw0/chainflow/pkg/domain"
)

func newEngine(t *testing.T) *chainflow.Engine {
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
	return eng
}

func TestRunner_Run_PromptsUntilFinished(t *testing.T) {
	out := &bytes.Buffer{}
	r := NewRunner(WithInputHandler(NewTextHandler(strings.NewReader("Ada\n"), out)))

	snap, err := r.Run(context.Background(), newEngine(t), "greeter", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinishedNormal, snap.Status)
	assert.Contains(t, out.String(), "name > ")
	assert.Contains(t, out.String(), "Hello, Ada!")
}

func TestRunner_Run_EOFLeavesRunSuspended(t *testing.T) {
	eng := newEngine(t)
	r := NewRunner(WithInputHandler(NewTextHandler(strings.NewReader(""), &bytes.Buffer{})))

	snap, err := r.Run(context.Background(), eng, "greeter", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPauseForInput, snap.Status)

	stored, err := eng.Inspect(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.True(t, stored.Suspended())

	out := &bytes.Buffer{}
	r = NewRunner(WithInputHandler(NewTextHandler(strings.NewReader("Grace\n"), out)))
	snap, err = r.Continue(context.Background(), eng, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinishedNormal, snap.Status)
	assert.Contains(t, out.String(), "Hello, Grace!")
}

func TestRunner_Headless(t *testing.T) {
	r := NewRunner(WithHeadless(true), WithInputHandler(NewJSONHandler(strings.NewReader(""), &bytes.Buffer{})))

	snap, err := r.Run(context.Background(), newEngine(t), "greeter", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPauseForInput, snap.Status)
}

func TestRunner_JSONRetriesMissingValues(t *testing.T) {
	out := &bytes.Buffer{}
	in := strings.NewReader("{\"other\": \"x\"}\n{\"name\": \"Ada\"}\n")
	r := NewRunner(WithInputHandler(NewJSONHandler(in, out)))

	snap, err := r.Run(context.Background(), newEngine(t), "greeter", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinishedNormal, snap.Status)
	assert.Contains(t, out.String(), `"type":"system"`)
}
