// Package redis provides Redis-backed persistence for chain runs: a
// SnapshotStore with optional TTL and a SET NX distributed locker.
package redis
