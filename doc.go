/*
Package chainflow is a resumable workflow engine that composes autonomous work
units ("agents") into chains.

Chains run sequentially, in parallel, in loops or through routers, and nest
inside each other. When an agent lacks an input parameter the run suspends:
its full state is captured in a JSON snapshot, persisted, and later restored
into a freshly built chain that resumes exactly where it stopped.

# Concept

Chains are declared in YAML definitions and compiled against an agent
registry, a Lua expression engine and an optional chat client. The Engine
owns those definitions and persists every run through a session manager, so
the same run can be started by one process and resumed by another.

# Usage

	eng, err := chainflow.New(chainflow.WithStore(file.New(".chainflow/runs")))
	if err != nil {
		log.Fatal(err)
	}
	if err := eng.LoadDir("./chains"); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	snap, err := eng.Start(ctx, "greeter", nil)
	if err != nil {
		log.Fatal(err)
	}

	if snap.Suspended() {
		// Ask the user for the missing parameters, then:
		snap, err = eng.Resume(ctx, snap.ID, map[string]any{"name": "Ada"})
	}

# Observability

Every built chain logs its events through the engine logger. WithMetrics adds
Prometheus counters, and WithEventListener receives every event, including
the ones bubbled up from nested chains.
*/
package chainflow
