package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chainflow/pkg/adapters/file"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ports"
)

var _ ports.SnapshotStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunSnapshotStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_ListEmptyDir(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "missing"))
	runs, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestFileStore_OverwriteAndIgnoreTemp(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := file.New(dir)

	require.NoError(t, store.Save(ctx, "run", &domain.Snapshot{ID: "run", Cursor: 1}))
	require.NoError(t, store.Save(ctx, "run", &domain.Snapshot{ID: "run", Cursor: 2}))

	// Leftover from an interrupted write.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tmp-run-123.json"), []byte("{"), 0o644))

	snap, err := store.Load(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Cursor)

	runs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run"}, runs)
}

func TestFileStore_RejectsPathTraversal(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"", "..", "../escape", `a\b`} {
		err := store.Save(ctx, id, &domain.Snapshot{})
		assert.ErrorIs(t, err, file.ErrInvalidRunID, id)
	}
}
