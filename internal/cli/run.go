package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/chainflow"
	"github.com/aretw0/chainflow/internal/presentation/tui"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/runner"
)

// RunOptions contains the configuration of the run and resume commands.
type RunOptions struct {
	Config
	Chain    string
	RunID    string
	Vars     string // Raw JSON object
	Headless bool
	JSON     bool

	Stdin  io.Reader
	Stdout io.Writer
}

func (o RunOptions) streams() (io.Reader, io.Writer) {
	in, out := o.Stdin, o.Stdout
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return in, out
}

func (o RunOptions) quiet() bool {
	return o.JSON || o.Headless
}

// Execute starts opts.Chain and drives it until it finishes, the input ends or
// the user interrupts.
func Execute(ctx context.Context, opts RunOptions) (*domain.Snapshot, error) {
	vars, err := ParseVars(opts.Vars)
	if err != nil {
		return nil, err
	}
	return drive(ctx, opts, func(r *runner.Runner, eng *chainflow.Engine) (*domain.Snapshot, error) {
		return r.Run(ctx, eng, opts.Chain, vars)
	})
}

// Resume continues a persisted run. Vars, when given, are submitted first;
// the runner then prompts for anything still missing.
func Resume(ctx context.Context, opts RunOptions) (*domain.Snapshot, error) {
	vars, err := ParseVars(opts.Vars)
	if err != nil {
		return nil, err
	}
	return drive(ctx, opts, func(r *runner.Runner, eng *chainflow.Engine) (*domain.Snapshot, error) {
		if vars != nil {
			if _, err := eng.Resume(ctx, opts.RunID, vars); err != nil {
				return nil, err
			}
		}
		return r.Continue(ctx, eng, opts.RunID)
	})
}

func drive(ctx context.Context, opts RunOptions, fn func(*runner.Runner, *chainflow.Engine) (*domain.Snapshot, error)) (*domain.Snapshot, error) {
	logger := CreateLogger(opts.Debug)
	in, out := opts.streams()

	eng, closeStore, err := NewEngine(opts.Config, logger)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	if !opts.quiet() {
		tui.PrintBanner(out, chainflow.Version)
	}

	r := runner.NewRunner(newRunnerOptions(opts, in, out)...)
	snap, err := fn(r, eng)
	if snap != nil && !opts.quiet() && snap.Suspended() {
		printSystemMessage(out, "Run '%s' suspended. Resume with: chainflow resume %s", snap.ID, snap.ID)
	}
	if err != nil {
		return snap, handleExecutionError(fmt.Errorf("run failed: %w", err))
	}
	return snap, nil
}

// newRunnerOptions prepares the functional options for the Runner.
func newRunnerOptions(opts RunOptions, in io.Reader, out io.Writer) []runner.Option {
	ropts := []runner.Option{
		runner.WithLogger(CreateLogger(opts.Debug)),
		runner.WithHeadless(opts.Headless),
	}
	switch {
	case opts.JSON:
		ropts = append(ropts, runner.WithInputHandler(runner.NewJSONHandler(in, out)))
	case opts.Headless:
		ropts = append(ropts, runner.WithInputHandler(runner.NewTextHandler(in, out)))
	default:
		ropts = append(ropts, runner.WithInputHandler(runner.NewTextHandler(in, out,
			runner.WithTextHandlerRenderer(tui.NewRenderer()),
		)))
	}
	return ropts
}
