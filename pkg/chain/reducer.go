package chain

import "github.com/aretw0/chainflow/pkg/domain"

// Reducer builds the output of a Parallel chain from the branch results,
// ordered by invoker position. Branches that produced nothing are nil.
type Reducer func(results []domain.Output) domain.Output

// CollectValues gathers the default value of every branch into a list.
func CollectValues(results []domain.Output) domain.Output {
	values := make([]any, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		values = append(values, r.Value())
	}
	return domain.NewOutput(values)
}

// MergeAll overlays the branch outputs in order. Later branches win on conflicts.
func MergeAll(results []domain.Output) domain.Output {
	out := domain.Output{}
	for _, r := range results {
		out = out.Merge(r)
	}
	return out
}

// PickFirst returns the first branch that produced an output.
func PickFirst(results []domain.Output) domain.Output {
	for _, r := range results {
		if r != nil {
			return r
		}
	}
	return nil
}
