package runner

import (
	"context"

	"github.com/aretw0/chainflow/pkg/domain"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Output presents the run after a step: its output once finished, or the
	// parameters it waits for.
	Output(ctx context.Context, snap *domain.Snapshot) error

	// Input collects values for the waiting parameters.
	// It returns io.EOF when the user leaves the session.
	Input(ctx context.Context, params []domain.Parameter) (map[string]any, error)

	// SystemOutput presents a meta-message (status updates, retries).
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer transforms text before it is printed (e.g. markdown to ANSI).
type ContentRenderer func(string) (string, error)
