// Package mcp exposes chainflow chains as Model Context Protocol tools.
//
// Clients list chains, start a run with execute_chain, and when the run
// suspends pass the waiting parameters to resume_chain. Runs are persisted by
// the engine, so a conversation can resume a run started in another session.
package mcp
