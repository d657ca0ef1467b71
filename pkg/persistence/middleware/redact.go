package middleware

import (
	"context"
	"regexp"
	"slices"

	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/ports"
)

// Mask replaces redacted parameter values.
const Mask = "***"

type redactionMiddleware struct {
	next     ports.SnapshotStore
	patterns []*regexp.Regexp
}

// NewRedactionMiddleware creates a middleware that masks the values of node
// parameters whose names match one of the patterns before they are stored.
func NewRedactionMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &redactionMiddleware{next: next, patterns: patterns}
	}
}

func (m *redactionMiddleware) Save(ctx context.Context, graphID string, snap *domain.GraphSnapshot) error {
	// The engine keeps using snap, so mask a copy.
	cloned := *snap
	cloned.Spec.Nodes = slices.Clone(snap.Spec.Nodes)
	for i := range cloned.Spec.Nodes {
		cloned.Spec.Nodes[i].Params = m.masked(cloned.Spec.Nodes[i].Params)
	}
	cloned.State.Nodes = slices.Clone(snap.State.Nodes)
	for i := range cloned.State.Nodes {
		cloned.State.Nodes[i].Params = m.masked(cloned.State.Nodes[i].Params)
	}

	return m.next.Save(ctx, graphID, &cloned)
}

func (m *redactionMiddleware) Load(ctx context.Context, graphID string) (*domain.GraphSnapshot, error) {
	return m.next.Load(ctx, graphID)
}

func (m *redactionMiddleware) Delete(ctx context.Context, graphID string) error {
	return m.next.Delete(ctx, graphID)
}

func (m *redactionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *redactionMiddleware) masked(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := deepCopyMap(params)
	maskMap(out, m.patterns)
	return out
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if subMap, ok := v.(map[string]any); ok && !masked {
			maskMap(subMap, patterns)
		}
	}
}
