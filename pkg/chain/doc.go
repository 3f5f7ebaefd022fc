// Package chain is the orchestration core: a Chain owns memory, status and
// listeners, and a strategy decides how its nodes or invokers run.
//
// Strategies:
//
//   - Sequential runs nodes in order and isolates node failures.
//   - Parallel fans out invokers on one input and reduces their results.
//   - Loop reruns invokers until something stops the chain.
//   - RouterChain runs the invokers a Router selects.
//
// A node that lacks required input calls WaitInput and the chain suspends.
// Snapshot externalizes the suspended state; a chain built by the same wiring
// can Restore it and Resume once the missing values are available.
//
// Errors never escape Execute or Resume. They surface as status
// (domain.StatusFinishedAbnormal), Err, and error events bubbled to parents.
package chain
