package domain

import "time"

// NodeInfo describes one node or invoker of a chain for introspection.
type NodeInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Kind string `json:"kind"`
}

// Snapshot is the externalized state of a chain run.
// A chain rebuilt from the same wiring and restored from a Snapshot resumes
// exactly where the original stopped.
type Snapshot struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Name   string `json:"name,omitempty"`
	Status Status `json:"status"`

	// Memory holds the chain's own entries (parents are snapshotted separately).
	Memory map[string]any `json:"memory"`

	// WaitInputParameters lists the parameters blocking the run.
	WaitInputParameters []Parameter `json:"wait_input_parameters,omitempty"`

	// Cursor is the position of the step that suspended the run.
	Cursor int `json:"cursor"`

	// Passes counts completed loop passes.
	Passes int `json:"passes,omitempty"`

	LastResult Output `json:"last_result,omitempty"`
	Output     Output `json:"output,omitempty"`

	// Error is the failure that ended the run, if any.
	Error string `json:"error,omitempty"`

	// State holds per-node progress (router matches, partial merges).
	State map[string]any `json:"state,omitempty"`

	Nodes    []NodeInfo           `json:"nodes,omitempty"`
	Children map[string]*Snapshot `json:"children,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Suspended reports whether the snapshot can be resumed.
func (s *Snapshot) Suspended() bool {
	return s.Status.IsPaused()
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Memory = CopyMap(s.Memory)
	out.LastResult = s.LastResult.Clone()
	out.Output = s.Output.Clone()
	out.State = CopyMap(s.State)
	if s.WaitInputParameters != nil {
		out.WaitInputParameters = append([]Parameter(nil), s.WaitInputParameters...)
	}
	if s.Nodes != nil {
		out.Nodes = append([]NodeInfo(nil), s.Nodes...)
	}
	if s.Children != nil {
		out.Children = make(map[string]*Snapshot, len(s.Children))
		for id, child := range s.Children {
			out.Children[id] = child.Clone()
		}
	}
	return &out
}
