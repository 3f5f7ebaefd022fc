package domain

import (
	"reflect"
)

// SnapshotDiff represents the changes between two snapshots of one run.
// It is designed to be serialized to JSON for partial updates on the client.
type SnapshotDiff struct {
	// RunID is always present to identify the target.
	RunID string `json:"run_id"`

	Status *Status `json:"status,omitempty"`
	Cursor *int    `json:"cursor,omitempty"`

	// Memory contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Memory map[string]any `json:"memory,omitempty"`

	// Waiting is set whenever the list of blocking parameters changed.
	Waiting []Parameter `json:"waiting,omitempty"`

	Output Output `json:"output,omitempty"`
}

// Diff calculates the difference between oldSnap and newSnap.
// If oldSnap is nil, it returns a diff representing the entire newSnap (initial load).
func Diff(oldSnap, newSnap *Snapshot) *SnapshotDiff {
	if newSnap == nil {
		return nil
	}

	diff := &SnapshotDiff{
		RunID: newSnap.ID,
	}

	if oldSnap == nil || oldSnap.Status != newSnap.Status {
		diff.Status = &newSnap.Status
	}
	if oldSnap == nil || oldSnap.Cursor != newSnap.Cursor {
		diff.Cursor = &newSnap.Cursor
	}

	diff.Memory = diffMemory(oldSnap, newSnap)

	if oldSnap == nil || !reflect.DeepEqual(oldSnap.WaitInputParameters, newSnap.WaitInputParameters) {
		diff.Waiting = newSnap.WaitInputParameters
	}
	if oldSnap == nil || !reflect.DeepEqual(oldSnap.Output, newSnap.Output) {
		diff.Output = newSnap.Output
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffMemory(old *Snapshot, new *Snapshot) map[string]any {
	delta := make(map[string]any)

	// If old is nil, everything in new is a delta
	if old == nil {
		for k, v := range new.Memory {
			delta[k] = v
		}
		if len(delta) == 0 {
			return nil
		}
		return delta
	}

	for k, newVal := range new.Memory {
		oldVal, exists := old.Memory[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	for k := range old.Memory {
		if _, exists := new.Memory[k]; !exists {
			delta[k] = nil
		}
	}

	// Return nil if delta is empty so omitempty can remove the key
	if len(delta) == 0 {
		return nil
	}
	return delta
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SnapshotDiff) IsEmpty() bool {
	return d.Status == nil &&
		d.Cursor == nil &&
		len(d.Memory) == 0 &&
		len(d.Waiting) == 0 &&
		len(d.Output) == 0
}
