package chainflow_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chainflow"
	"github.com/aretw0/chainflow/pkg/chain"
	"github.com/aretw0/chainflow/pkg/definition"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ids"
	"github.com/aretw0/chainflow/pkg/observability"
)

const greeterYAML = `
id: greeter
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
`

func greeterDef(t *testing.T) *definition.Definition {
	t.Helper()
	def, err := definition.Parse([]byte(greeterYAML), "yaml")
	require.NoError(t, err)
	return def
}

func TestEngine_StartResume(t *testing.T) {
	ctx := context.Background()
	eng, err := chainflow.New(
		chainflow.WithDefinitions(greeterDef(t)),
		chainflow.WithIDGenerator(ids.NewSequence("run")),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"greeter"}, eng.Definitions())

	snap, err := eng.Start(ctx, "greeter", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPauseForInput, snap.Status)
	assert.Equal(t, "greeter", snap.Name)
	assert.Equal(t, []string{"name"}, domain.ParameterNames(snap.WaitInputParameters))

	stored, err := eng.Inspect(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Status, stored.Status)

	_, err = eng.Resume(ctx, snap.ID, nil)
	assert.ErrorIs(t, err, domain.ErrNotResumable)

	done, err := eng.Resume(ctx, snap.ID, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, snap.ID, done.ID)
	assert.Equal(t, domain.StatusFinishedNormal, done.Status)
	assert.Equal(t, "Hello, Ada!", done.Output.Value())

	runs, err := eng.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	require.NoError(t, eng.Delete(ctx, snap.ID))
	_, err = eng.Inspect(ctx, snap.ID)
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestEngine_UnknownChain(t *testing.T) {
	eng, err := chainflow.New()
	require.NoError(t, err)

	_, err = eng.Start(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, chainflow.ErrChainNotFound)
}

func TestEngine_AddDefinitionRejectsDuplicates(t *testing.T) {
	eng, err := chainflow.New()
	require.NoError(t, err)

	require.NoError(t, eng.AddDefinition(greeterDef(t)))
	assert.ErrorIs(t, eng.AddDefinition(greeterDef(t)), domain.ErrDuplicateID)
	assert.ErrorIs(t, eng.AddDefinition(&definition.Definition{}), domain.ErrInvalidDefinition)
}

func TestEngine_LoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greeter.yaml"), []byte(greeterYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	eng, err := chainflow.New()
	require.NoError(t, err)
	require.NoError(t, eng.LoadDir(dir))

	def, err := eng.Definition("greeter")
	require.NoError(t, err)
	assert.Equal(t, definition.KindSequential, def.Kind)
}

func TestEngine_ListenersAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	var mu sync.Mutex
	var kinds []domain.EventKind
	eng, err := chainflow.New(
		chainflow.WithDefinitions(greeterDef(t)),
		chainflow.WithMetrics(metrics),
		chainflow.WithEventListener(func(ev domain.Event, _ *chain.Chain) {
			mu.Lock()
			defer mu.Unlock()
			kinds = append(kinds, ev.Kind)
		}),
	)
	require.NoError(t, err)

	_, err = eng.Start(context.Background(), "greeter", map[string]any{"name": "Ada"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, kinds, domain.EventChainStart)
	assert.Contains(t, kinds, domain.EventChainFinished)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
