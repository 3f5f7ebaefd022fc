/*
Package domain contains the core data model of the chainflow engine.

It defines the values exchanged between agents, chains and hosts. This package
is kept pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Parameter: an input slot declared by an agent (name, type, required flag, default marker).
  - Output: the labeled result bag produced by agents and chains.
  - Status: the lifecycle state of a run (start, paused, finished ...).
  - Event: a notification delivered to listeners and bubbled to parent chains.
  - Snapshot: the externalized state of a run, used to suspend and resume across restarts.
*/
package domain
