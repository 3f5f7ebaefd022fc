/*
Package session persists chain runs and serializes access to them.

A Manager starts chains, stores their snapshots and resumes them later in a
fresh chain built from the same wiring. Per-run local locks are reference
counted; an optional DistributedLocker coordinates replicas sharing a store.
*/
package session
