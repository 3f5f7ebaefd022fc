/*
Package ports defines the driven ports (interfaces) of the chainflow engine.

These interfaces decouple the orchestration core from external implementations,
allowing chains to work with any agent, model client, expression language or
storage backend.

# Key Interfaces

  - Agent: a unit of work executed by chain nodes and invokers.
  - ChatClient: a model-chat collaborator used by chat agents and chat routers.
  - ExpressionEngine: evaluates routing and condition expressions.
  - SnapshotStore: persists and loads suspended runs.
  - DistributedLocker: provides distributed locking for concurrent run access.
*/
package ports
