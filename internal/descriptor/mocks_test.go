package descriptor

import (
	"context"
	"fmt"

	"saged/internal/embedding"
)

// mockLookup is a scriptable Lookup. Tests set the func fields they
// care about; unset funcs return zero values.
type mockLookup struct {
	DistanceFunc  func(ctx context.Context, a, b string) (float64, error)
	NearestFunc   func(ctx context.Context, term string, pool []string) (embedding.Match, error)
	distanceCalls int
	nearestCalls  int
}

func (m *mockLookup) Distance(ctx context.Context, a, b string) (float64, error) {
	m.distanceCalls++
	if m.DistanceFunc != nil {
		return m.DistanceFunc(ctx, a, b)
	}
	return 0, nil
}

func (m *mockLookup) Nearest(ctx context.Context, term string, pool []string) (embedding.Match, error) {
	m.nearestCalls++
	if m.NearestFunc != nil {
		return m.NearestFunc(ctx, term, pool)
	}
	return embedding.Match{}, nil
}

// tableLookup scripts distances by "a|b" key and nearest matches by
// term. Unknown lookups error so tests notice unexpected calls.
func tableLookup(distances map[string]float64, nearest map[string]embedding.Match) *mockLookup {
	m := &mockLookup{}
	m.DistanceFunc = func(ctx context.Context, a, b string) (float64, error) {
		key := a + "|" + b
		d, ok := distances[key]
		if !ok {
			return 0, fmt.Errorf("no scripted distance for %q", key)
		}
		return d, nil
	}
	m.NearestFunc = func(ctx context.Context, term string, pool []string) (embedding.Match, error) {
		match, ok := nearest[term]
		if !ok {
			return embedding.Match{}, fmt.Errorf("no scripted match for %q", term)
		}
		return match, nil
	}
	return m
}
