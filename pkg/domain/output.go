package domain

// DefaultOutputKey stores the single-value convenience result of an Output.
const DefaultOutputKey = "output"

// Output is the labeled result bag produced by agents, nodes and chains.
type Output map[string]any

// NewOutput wraps a single value under DefaultOutputKey.
func NewOutput(v any) Output {
	return Output{DefaultOutputKey: v}
}

// Value returns the value stored under DefaultOutputKey, or nil.
func (o Output) Value() any {
	if o == nil {
		return nil
	}
	return o[DefaultOutputKey]
}

// Has reports whether the key is present.
func (o Output) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Clone returns a deep copy of the output.
func (o Output) Clone() Output {
	if o == nil {
		return nil
	}
	return Output(CopyMap(o))
}

// Merge returns a new Output holding o overlaid with other.
func (o Output) Merge(other Output) Output {
	out := make(Output, len(o)+len(other))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// CopyMap deep-copies nested maps and slices so snapshots stay isolated
// from the live chain memory.
func CopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CopyMap(t)
	case Output:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
