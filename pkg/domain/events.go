package domain

import (
	"strings"
	"time"
)

// EventKind identifies an event. Kinds are grouped in categories ("chain", "node")
// and listeners subscribe either to a single kind, to a category, or to EventAny.
type EventKind string

const (
	// EventAny is the catch-all subscription.
	EventAny EventKind = "*"

	EventChain         EventKind = "chain"
	EventChainStart    EventKind = "chain.start"
	EventChainResume   EventKind = "chain.resume"
	EventChainSuspend  EventKind = "chain.suspend"
	EventChainStop     EventKind = "chain.stop"
	EventChainError    EventKind = "chain.error"
	EventChainFinished EventKind = "chain.finished"

	EventNode         EventKind = "node"
	EventNodeStart    EventKind = "node.start"
	EventNodeFinish   EventKind = "node.finish"
	EventNodeError    EventKind = "node.error"
	EventRouteMatched EventKind = "node.route_matched"
	EventRouteMissed  EventKind = "node.route_missed"
)

// Category returns the category part of the kind ("chain" for "chain.start").
func (k EventKind) Category() EventKind {
	if i := strings.IndexByte(string(k), '.'); i >= 0 {
		return k[:i]
	}
	return k
}

// SatisfiedBy reports whether a listener subscribed to k receives an event of the given kind.
func (k EventKind) SatisfiedBy(kind EventKind) bool {
	return k == EventAny || k == kind || k == kind.Category()
}

// IsError reports whether the kind signals a failure.
func (k EventKind) IsError() bool {
	return k == EventChainError || k == EventNodeError
}

// Event is delivered synchronously to listeners and bubbled to parent chains.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
	ChainID   string    `json:"chain_id"`
	NodeID    string    `json:"node_id,omitempty"`
	Status    Status    `json:"status,omitempty"`
	Output    Output    `json:"output,omitempty"`
	Err       error     `json:"-"`

	// Parameters lists the missing inputs of a suspend event.
	Parameters []Parameter `json:"parameters,omitempty"`
}

// ErrorText returns the carried error message, or an empty string.
func (e Event) ErrorText() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}
