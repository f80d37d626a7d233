package descriptor

import (
	"context"
	"errors"
	"math"
	"time"

	"saged/internal/benchmark"
	"saged/internal/config"
	"saged/internal/embedding"
	"saged/internal/logging"
)

var errNoLookup = errors.New("no embedding lookup configured")

// Lookup is the slice of the embedding comparer the resolver needs.
// *embedding.Comparer satisfies it.
type Lookup interface {
	Distance(ctx context.Context, a, b string) (float64, error)
	Nearest(ctx context.Context, term string, pool []string) (embedding.Match, error)
}

// Options bound the resolver's embedding traffic.
type Options struct {
	Timeout time.Duration // per embedding call, 0 leaves calls unbounded
	Retries int           // extra attempts after a failed call
	Backoff time.Duration // first retry delay, doubled per attempt
}

// DefaultBackoff is the first retry delay when Options leaves it unset.
const DefaultBackoff = 500 * time.Millisecond

// PairDiagnostic is the per-pair resolution outcome. Aliased from the
// benchmark package so build results can carry diagnostics without an
// import cycle.
type PairDiagnostic = benchmark.PairDiagnostic

// Resolver completes manual descriptors into the catalog that branching
// consumes, deriving replacements by embedding similarity when the
// config requires full coverage.
type Resolver struct {
	lookup Lookup
	opts   Options
}

// NewResolver returns a resolver over the given embedding lookup. The
// lookup may be nil when descriptors are never derived.
func NewResolver(lookup Lookup, opts Options) *Resolver {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	return &Resolver{lookup: lookup, opts: opts}
}

// Resolve builds the descriptor catalog for a branching run.
//
// With replacement_descriptor_require false the manual descriptors come
// back conflict-cleaned but otherwise untouched. With it true, every
// selected pair (manual pairs for "not_all", the ordered cross-product
// of concepts for "all") gets derived replacements: each stem-vocabulary
// keyword without a manual rule takes its nearest term in the branch
// vocabulary, accepted when the distance fits the resolved threshold.
//
// Pair failures stay inside the diagnostics; the returned error is
// reserved for invalid specs and cancellation.
func (r *Resolver) Resolve(ctx context.Context, manual []config.DescriptorSpec, cfg config.BranchingConfig, concepts []string, vocab map[string][]string) (*Catalog, []PairDiagnostic, error) {
	timer := logging.StartTimer(logging.CategoryDescriptor, "Resolver.Resolve")
	defer timer.StopWithInfo()

	if err := ValidateSpecs(manual); err != nil {
		return nil, nil, benchmark.NewConfigValidationError("replacement descriptors: %v", err)
	}
	base := FromSpecs(manual)

	if !cfg.DescriptorRequire {
		for _, set := range base.Pairs() {
			set.Clean()
		}
		logging.Descriptor("Resolved %d manual descriptor pairs", base.Len())
		return base, nil, nil
	}

	keys := selectPairs(cfg.Pairs, base, concepts)
	resolved := NewCatalog()
	diags := make([]PairDiagnostic, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, diags, err
		}
		set, ok := base.Get(key.Stem, key.Branch)
		if !ok {
			set = &Set{Stem: key.Stem, Branch: key.Branch}
		}
		diag := r.resolvePair(ctx, set, cfg, vocab)
		diags = append(diags, diag)
		if diag.Err != nil {
			if diag.Err.Kind == benchmark.KindCancelled {
				return nil, diags, ctx.Err()
			}
			continue
		}
		set.Clean()
		resolved.Add(set)
	}

	logging.Descriptor("Resolved %d/%d descriptor pairs", resolved.Len(), len(keys))
	return resolved, diags, nil
}

// selectPairs picks which pairs branching will cover. "not_all" keeps
// the manually configured pairs in their configured order; "all" walks
// the ordered cross-product of the domain's concepts.
func selectPairs(mode string, base *Catalog, concepts []string) []PairKey {
	if mode != "all" {
		keys := make([]PairKey, 0, base.Len())
		for _, set := range base.Pairs() {
			keys = append(keys, set.Key())
		}
		return keys
	}
	var keys []PairKey
	for _, stem := range concepts {
		for _, branch := range concepts {
			if stem == branch {
				continue
			}
			keys = append(keys, PairKey{Stem: stem, Branch: branch})
		}
	}
	return keys
}

// resolvePair derives replacements for one pair. The pair fails closed:
// any error leaves it out of the catalog entirely.
func (r *Resolver) resolvePair(ctx context.Context, set *Set, cfg config.BranchingConfig, vocab map[string][]string) PairDiagnostic {
	start := time.Now()
	diag := PairDiagnostic{Stem: set.Stem, Branch: set.Branch}

	threshold, berr := r.resolveThreshold(ctx, set, cfg.DescriptorThreshold)
	if berr != nil {
		diag.Err = berr
		logging.DescriptorWarn("Pair %s: %v", set.Key(), berr)
		return diag
	}
	diag.Threshold = threshold

	pool := vocab[set.Branch]
	if len(pool) == 0 {
		logging.DescriptorDebug("Pair %s: no branch vocabulary, keeping manual entries only", set.Key())
		return diag
	}

	for _, keyword := range vocab[set.Stem] {
		if set.Has(keyword) || overlaps(keyword, set.Stem) {
			continue
		}
		match, err := r.nearest(ctx, keyword, pool)
		if err != nil {
			if ctx.Err() != nil {
				diag.Err = benchmark.NewCancelledError(set.Stem, ctx.Err())
			} else {
				diag.Err = benchmark.NewEmbeddingServiceError(set.Stem, set.Branch, err)
				logging.DescriptorError("Pair %s: lookup for %q failed: %v", set.Key(), keyword, err)
			}
			return diag
		}
		if match.Distance <= threshold {
			if set.Add(Entry{Keyword: keyword, Replacement: match.Term, Derived: true, Distance: match.Distance}) {
				diag.Derived++
			}
		}
	}

	logging.Audit().DescriptorResolve(set.Stem, set.Branch, len(set.Entries), time.Since(start).Milliseconds())
	logging.DescriptorDebug("Pair %s: threshold %.4f, %d derived entries", set.Key(), threshold, diag.Derived)
	return diag
}

// resolveThreshold turns the configured threshold into a number for one
// pair. An unset threshold means Auto, matching the config default.
func (r *Resolver) resolveThreshold(ctx context.Context, set *Set, t config.Threshold) (float64, *benchmark.BuildError) {
	if t.IsSet() && !t.Auto {
		return t.Value, nil
	}

	if len(set.Entries) == 0 {
		return 0, benchmark.NewThresholdDerivationError(set.Stem, set.Branch, "no manual replacement pairs to derive a threshold from")
	}
	distances := make([]float64, 0, len(set.Entries))
	for _, e := range set.Entries {
		d, err := r.distance(ctx, e.Keyword, e.Replacement)
		if err != nil {
			if ctx.Err() != nil {
				return 0, benchmark.NewCancelledError(set.Stem, ctx.Err())
			}
			return 0, benchmark.NewEmbeddingServiceError(set.Stem, set.Branch, err)
		}
		distances = append(distances, d)
	}
	return autoThreshold(distances), nil
}

// autoThreshold is the derived bound: the mean of the manual-pair
// distances plus one sample standard deviation. A single distance
// yields itself.
func autoThreshold(distances []float64) float64 {
	var mean float64
	for _, d := range distances {
		mean += d
	}
	mean /= float64(len(distances))
	if len(distances) == 1 {
		return mean
	}
	var variance float64
	for _, d := range distances {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(distances) - 1)
	return mean + math.Sqrt(variance)
}

func (r *Resolver) nearest(ctx context.Context, term string, pool []string) (embedding.Match, error) {
	var match embedding.Match
	err := r.withRetry(ctx, func(callCtx context.Context) error {
		m, err := r.lookup.Nearest(callCtx, term, pool)
		if err != nil {
			return err
		}
		match = m
		return nil
	})
	return match, err
}

func (r *Resolver) distance(ctx context.Context, a, b string) (float64, error) {
	var dist float64
	err := r.withRetry(ctx, func(callCtx context.Context) error {
		d, err := r.lookup.Distance(callCtx, a, b)
		if err != nil {
			return err
		}
		dist = d
		return nil
	})
	return dist, err
}

// withRetry runs fn under the per-call timeout, retrying with
// exponential backoff. Parent cancellation stops the retry loop and is
// returned as-is so callers can tell it apart from service failures.
func (r *Resolver) withRetry(ctx context.Context, fn func(context.Context) error) error {
	if r.lookup == nil {
		return errNoLookup
	}
	var lastErr error
	for i := 0; i <= r.opts.Retries; i++ {
		if i > 0 {
			logging.DescriptorDebug("Retrying embedding lookup (attempt %d/%d): %v", i, r.opts.Retries, lastErr)
			select {
			case <-time.After(r.opts.Backoff << uint(i-1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := func() error {
			callCtx := ctx
			if r.opts.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
				defer cancel()
			}
			return fn(callCtx)
		}()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}
