package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore
// implementation adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	runID := "contract-test-run-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := &domain.Snapshot{
			ID:                  runID,
			Kind:                "sequential",
			Status:              domain.StatusPauseForInput,
			Memory:              map[string]any{"foo": "bar", "count": 42},
			WaitInputParameters: []domain.Parameter{domain.Required("p1")},
			Cursor:              1,
			LastResult:          domain.NewOutput("a"),
		}

		err := store.Save(ctx, runID, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, snap.ID, loaded.ID)
		assert.Equal(t, domain.StatusPauseForInput, loaded.Status)
		assert.Equal(t, 1, loaded.Cursor)
		assert.Equal(t, "bar", loaded.Memory["foo"])
		assert.Equal(t, "a", loaded.LastResult.Value())
		require.Len(t, loaded.WaitInputParameters, 1)
		assert.Equal(t, "p1", loaded.WaitInputParameters[0].Name)
		// JSON persistence may turn ints into float64; only check existence.
		assert.NotNil(t, loaded.Memory["count"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, runID, &domain.Snapshot{ID: runID, Status: domain.StatusReady})
		require.NoError(t, err)

		err = store.Delete(ctx, runID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		_ = store.Save(ctx, id1, &domain.Snapshot{ID: id1})
		_ = store.Save(ctx, id2, &domain.Snapshot{ID: id2})

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})
}
