package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/aretw0/chainflow/internal/presentation/graph"
	"github.com/aretw0/chainflow/internal/presentation/tui"
	"github.com/aretw0/chainflow/pkg/definition"
	"github.com/aretw0/chainflow/pkg/domain"
)

// RunStore is the part of chainflow.Engine the session commands use.
type RunStore interface {
	Inspect(ctx context.Context, runID string) (*domain.Snapshot, error)
	Runs(ctx context.Context) ([]*domain.Snapshot, error)
	Delete(ctx context.Context, runID string) error
}

// ListRuns writes a table of persisted runs.
func ListRuns(ctx context.Context, store RunStore, w io.Writer) error {
	runs, err := store.Runs(ctx)
	if err != nil {
		return fmt.Errorf("error listing runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCHAIN\tSTATUS\tWAITING\tUPDATED")
	for _, snap := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			snap.ID,
			snap.Name,
			tui.StatusLabel(snap.Status),
			strings.Join(domain.ParameterNames(snap.WaitInputParameters), ","),
			snap.UpdatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return tw.Flush()
}

// InspectRun pretty prints the snapshot of runID.
func InspectRun(ctx context.Context, store RunStore, runID string, w io.Writer) error {
	snap, err := store.Inspect(ctx, runID)
	if err != nil {
		return fmt.Errorf("error loading run '%s': %w", runID, err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling run: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// RemoveRuns deletes every run in ids, reporting each outcome. The returned
// error joins the failures.
func RemoveRuns(ctx context.Context, store RunStore, ids []string, w io.Writer) error {
	var errs []error
	for _, id := range ids {
		if err := store.Delete(ctx, id); err != nil {
			fmt.Fprintf(w, "Error removing '%s': %v\n", id, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "Removed run '%s'\n", id)
	}
	return errors.Join(errs...)
}

// GraphSource resolves the definitions and runs rendered by Graph.
type GraphSource interface {
	Definition(name string) (*definition.Definition, error)
	Inspect(ctx context.Context, runID string) (*domain.Snapshot, error)
}

// Graph renders the Mermaid diagram of a chain, overlaid with the progress of
// runID when it is set. An empty name takes the chain of the run.
func Graph(ctx context.Context, src GraphSource, name, runID string) (string, error) {
	var snap *domain.Snapshot
	if runID != "" {
		var err error
		if snap, err = src.Inspect(ctx, runID); err != nil {
			return "", err
		}
		if name == "" {
			name = snap.Name
		}
	}

	def, err := src.Definition(name)
	if err != nil {
		return "", err
	}
	var overlay *graph.GraphOverlay
	if snap != nil {
		overlay = graph.FromSnapshot(def, snap)
	}
	return graph.GenerateMermaid(def, overlay), nil
}
