package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/chainflow/internal/logging"
	"github.com/aretw0/chainflow/pkg/domain"
)

// ErrInterrupted is returned when a signal arrives while the runner waits
// for input. The run stays suspended and can be resumed later.
var ErrInterrupted = errors.New("interrupted")

// Engine is the part of chainflow.Engine the runner drives.
type Engine interface {
	Start(ctx context.Context, name string, vars map[string]any) (*domain.Snapshot, error)
	Resume(ctx context.Context, runID string, vars map[string]any) (*domain.Snapshot, error)
	Inspect(ctx context.Context, runID string) (*domain.Snapshot, error)
}

// Runner drives a run to completion, asking for missing parameters each
// time it suspends. It uses an IOHandler strategy to abstract the interaction
// mode (Text vs JSON).
type Runner struct {
	Handler IOHandler

	// Logger is used for internal debug logging.
	Logger *slog.Logger

	// Headless stops at the first suspension instead of prompting.
	Headless bool

	// Input, Output and Renderer build the default TextHandler.
	Input    io.Reader
	Output   io.Writer
	Renderer ContentRenderer
}

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithInputHandler configures a custom IOHandler.
func WithInputHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithHeadless sets the runner to headless mode.
func WithHeadless(headless bool) Option {
	return func(r *Runner) {
		r.Headless = headless
	}
}

// WithRenderer configures the content renderer of the default text handler.
func WithRenderer(renderer ContentRenderer) Option {
	return func(r *Runner) {
		r.Renderer = renderer
	}
}

// NewRunner creates a Runner reading Stdin and writing Stdout by default.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		Input:  os.Stdin,
		Output: os.Stdout,
		Logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the named chain with vars and drives it.
func (r *Runner) Run(ctx context.Context, engine Engine, name string, vars map[string]any) (*domain.Snapshot, error) {
	snap, err := engine.Start(ctx, name, vars)
	if err != nil {
		return nil, err
	}
	return r.drive(ctx, engine, snap)
}

// Continue drives an existing run, prompting for what it waits for.
func (r *Runner) Continue(ctx context.Context, engine Engine, runID string) (*domain.Snapshot, error) {
	snap, err := engine.Inspect(ctx, runID)
	if err != nil {
		return nil, err
	}
	return r.drive(ctx, engine, snap)
}

func (r *Runner) drive(ctx context.Context, engine Engine, snap *domain.Snapshot) (*domain.Snapshot, error) {
	handler := r.resolveHandler()
	signals := NewSignalManager(ctx)
	defer signals.Stop()

	for {
		if err := handler.Output(ctx, snap); err != nil {
			return snap, fmt.Errorf("output error: %w", err)
		}
		if !snap.Suspended() || r.Headless {
			return snap, nil
		}

		vars, err := handler.Input(signals.Context(), snap.WaitInputParameters)
		if err != nil {
			signals.CheckRace()
			if signals.Context().Err() != nil {
				r.Logger.Debug("input interrupted", "run_id", snap.ID)
				_ = handler.SystemOutput(ctx, fmt.Sprintf("run %s stays suspended", snap.ID))
				return snap, ErrInterrupted
			}
			if errors.Is(err, io.EOF) {
				_ = handler.SystemOutput(ctx, fmt.Sprintf("run %s stays suspended", snap.ID))
				return snap, nil
			}
			return snap, fmt.Errorf("input error: %w", err)
		}

		next, err := engine.Resume(ctx, snap.ID, vars)
		if errors.Is(err, domain.ErrNotResumable) {
			if err := handler.SystemOutput(ctx, err.Error()); err != nil {
				return snap, err
			}
			continue
		}
		if err != nil {
			return snap, err
		}
		r.Logger.Debug("run resumed", "run_id", next.ID, "status", next.Status)
		snap = next
	}
}

// resolveHandler ensures a valid IOHandler is set.
func (r *Runner) resolveHandler() IOHandler {
	if r.Handler != nil {
		return r.Handler
	}
	r.Handler = NewTextHandler(r.Input, r.Output, WithTextHandlerRenderer(r.Renderer))
	return r.Handler
}
