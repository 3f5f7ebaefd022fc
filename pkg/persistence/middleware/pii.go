package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ports"
)

// Mask replaces the value of every masked key.
const Mask = "***"

type piiMiddleware struct {
	next     ports.SnapshotStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values of memory and output
// keys matching any of the patterns before they reach the store. Loaded
// snapshots keep the mask.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid mask pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, runID string, snap *domain.Snapshot) error {
	return m.next.Save(ctx, runID, m.masked(snap))
}

// masked returns a copy so the chain's own snapshot stays intact.
func (m *piiMiddleware) masked(snap *domain.Snapshot) *domain.Snapshot {
	if snap == nil {
		return nil
	}
	out := *snap
	out.Memory = maskMap(deepCopyMap(snap.Memory), m.patterns)
	out.LastResult = domain.Output(maskMap(deepCopyMap(snap.LastResult), m.patterns))
	out.Output = domain.Output(maskMap(deepCopyMap(snap.Output), m.patterns))
	if snap.Children != nil {
		out.Children = make(map[string]*domain.Snapshot, len(snap.Children))
		for k, child := range snap.Children {
			out.Children[k] = m.masked(child)
		}
	}
	return &out
}

func (m *piiMiddleware) Load(ctx context.Context, runID string) (*domain.Snapshot, error) {
	return m.next.Load(ctx, runID)
}

func (m *piiMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(sub)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) map[string]any {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if sub, ok := v.(map[string]any); ok && !masked {
			maskMap(sub, patterns)
		}
	}
	return m
}
