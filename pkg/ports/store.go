package ports

import (
	"context"

	"github.com/aretw0/chainflow/pkg/domain"
)

// SnapshotStore defines the interface for persisting chain runs.
// This allows for durable execution, enabling "Suspend & Resume" workflows
// across process restarts.
type SnapshotStore interface {
	// Save persists the snapshot of a given run ID.
	Save(ctx context.Context, runID string, snap *domain.Snapshot) error

	// Load retrieves the snapshot of a given run ID.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.Snapshot, error)

	// Delete removes the snapshot of a given run ID.
	Delete(ctx context.Context, runID string) error

	// List returns the IDs of all stored runs.
	List(ctx context.Context) ([]string, error)
}
