/*
Package runner implements the interactive loop that drives a run to completion.

Each time a run suspends, the runner asks its IOHandler for the waiting
parameters and resumes the run with them. TextHandler prompts on a terminal,
JSONHandler speaks JSON lines for scripted hosts. Interrupting a prompt
(Ctrl+C) leaves the run suspended in the store, ready to be resumed later.

# Usage

	r := runner.NewRunner(runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)))
	snap, err := r.Run(ctx, engine, "greeter", nil)
*/
package runner
