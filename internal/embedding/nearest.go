package embedding

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"saged/internal/logging"
)

// =============================================================================
// TERM COMPARER
// =============================================================================

// Match is a candidate term scored by distance to a query term.
// Lower distance means more similar.
type Match struct {
	Term     string
	Distance float64
}

// Comparer answers term-level distance queries on top of an Engine.
// Embeddings are memoized per term, so repeated lookups against the same
// vocabulary pay for each term once.
type Comparer struct {
	engine Engine
	metric Metric

	mu    sync.Mutex
	cache map[string][]float32
}

// NewComparer wraps an engine with a distance metric and an embedding cache.
func NewComparer(engine Engine, metric Metric) (*Comparer, error) {
	if engine == nil {
		return nil, fmt.Errorf("comparer requires an engine")
	}
	if !metric.Valid() {
		return nil, fmt.Errorf("unknown distance metric: %q", metric)
	}
	return &Comparer{
		engine: engine,
		metric: metric,
		cache:  make(map[string][]float32),
	}, nil
}

// Metric returns the metric the comparer scores with.
func (c *Comparer) Metric() Metric { return c.metric }

// Distance embeds both terms and scores them under the comparer's metric.
func (c *Comparer) Distance(ctx context.Context, a, b string) (float64, error) {
	vecs, err := c.vectors(ctx, []string{a, b})
	if err != nil {
		return 0, err
	}
	return Distance(c.metric, vecs[a], vecs[b])
}

// Nearest returns the single closest candidate to term.
func (c *Comparer) Nearest(ctx context.Context, term string, pool []string) (Match, error) {
	matches, err := c.TopK(ctx, term, pool, 1)
	if err != nil {
		return Match{}, err
	}
	return matches[0], nil
}

// TopK returns up to k candidates from pool ranked by ascending distance to
// term. Empty and duplicate pool entries are skipped. Ties break on the
// candidate text so rankings are stable across runs.
func (c *Comparer) TopK(ctx context.Context, term string, pool []string, k int) ([]Match, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "Comparer.TopK")
	defer timer.Stop()

	if k <= 0 {
		return nil, nil
	}

	candidates := make([]string, 0, len(pool))
	seen := make(map[string]bool, len(pool))
	for _, t := range pool {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("empty candidate pool for term %q", term)
	}

	vecs, err := c.vectors(ctx, append([]string{term}, candidates...))
	if err != nil {
		return nil, err
	}

	query := vecs[term]
	matches := make([]Match, 0, len(candidates))
	skipped := 0
	for _, cand := range candidates {
		d, err := Distance(c.metric, query, vecs[cand])
		if err != nil {
			skipped++
			continue
		}
		matches = append(matches, Match{Term: cand, Distance: d})
	}
	if skipped > 0 {
		logging.EmbeddingWarn("Comparer.TopK: skipped %d candidates due to dimension mismatch", skipped)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no scorable candidates for term %q", term)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Term < matches[j].Term
	})

	if len(matches) > k {
		matches = matches[:k]
	}

	logging.EmbeddingDebug("Comparer.TopK: term=%q pool=%d -> %d matches (best=%q at %.4f)",
		term, len(pool), len(matches), matches[0].Term, matches[0].Distance)
	return matches, nil
}

// vectors resolves embeddings for terms, consulting the cache first and
// batching every miss into a single engine call.
func (c *Comparer) vectors(ctx context.Context, terms []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(terms))
	var misses []string

	c.mu.Lock()
	for _, t := range terms {
		if _, ok := out[t]; ok {
			continue
		}
		if vec, ok := c.cache[t]; ok {
			out[t] = vec
			continue
		}
		misses = append(misses, t)
		out[t] = nil
	}
	c.mu.Unlock()

	if len(misses) == 0 {
		return out, nil
	}

	logging.EmbeddingDebug("Comparer: embedding %d uncached terms (%d cached)", len(misses), len(out)-len(misses))
	vecs, err := c.engine.EmbedBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(misses) {
		return nil, fmt.Errorf("engine returned %d embeddings for %d terms", len(vecs), len(misses))
	}

	c.mu.Lock()
	for i, t := range misses {
		c.cache[t] = vecs[i]
		out[t] = vecs[i]
	}
	c.mu.Unlock()
	return out, nil
}
