package domain

import (
	"errors"
	"fmt"
)

// ErrRunNotFound is returned when a run ID cannot be found in the store.
var ErrRunNotFound = errors.New("run not found")

// ErrDuplicateID is returned when two nodes or invokers of one chain share an ID.
var ErrDuplicateID = errors.New("duplicate id")

// ErrAlreadyAttached is returned when a chain is attached to a second parent.
var ErrAlreadyAttached = errors.New("chain already attached to a parent")

// ErrUnknownAgent is returned when a definition names an agent the registry does not know.
var ErrUnknownAgent = errors.New("unknown agent")

// ErrInvalidDefinition is returned when a chain definition cannot be compiled.
var ErrInvalidDefinition = errors.New("invalid chain definition")

// ErrSnapshotMismatch is returned when a snapshot does not fit the chain it is restored into.
var ErrSnapshotMismatch = errors.New("snapshot does not match chain")

// ErrNotResumable is returned by hosts when a run rejects a resume request.
var ErrNotResumable = errors.New("run is not resumable")

// NodeError wraps a failure raised while executing a node or invoker.
type NodeError struct {
	ChainID string
	NodeID  string
	Err     error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node '%s' in chain '%s' failed: %v", e.NodeID, e.ChainID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
