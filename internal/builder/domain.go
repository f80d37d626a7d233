package builder

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"saged/internal/benchmark"
	"saged/internal/branching"
	"saged/internal/config"
	"saged/internal/descriptor"
	"saged/internal/embedding"
	"saged/internal/keywords"
	"saged/internal/llm"
	"saged/internal/logging"
)

// DomainBuilder executes build requests end to end. The client and
// engine are optional: a concept whose configuration needs a missing
// collaborator fails on its own, and descriptor derivation without an
// engine fails closed per pair.
type DomainBuilder struct {
	cfg    *config.Config
	client llm.Client
	engine embedding.Engine
}

// NewDomainBuilder wires a builder over its collaborators.
func NewDomainBuilder(cfg *config.Config, client llm.Client, engine embedding.Engine) *DomainBuilder {
	return &DomainBuilder{cfg: cfg, client: client, engine: engine}
}

// Build runs the full pipeline for one build request: every concept
// assembles concurrently, the descriptor catalog is resolved across
// the domain, branches are generated, and the survivors merge into the
// returned benchmark. Failed concepts come back in SkippedConcepts.
//
// The build itself fails only on invalid configuration, cancellation,
// or a merge where no concept produced a usable record.
func (d *DomainBuilder) Build(ctx context.Context, dc *config.DomainConfig) (*benchmark.DomainBenchmark, error) {
	start := time.Now()
	buildID := uuid.NewString()
	blog := logging.WithRequestID(logging.CategoryBuilder, buildID)

	dc.ApplyDefaults()
	effective, err := config.NewResolver().Resolve(dc)
	if err != nil {
		return nil, err
	}

	logging.Audit().BuildStart(buildID, dc.Domain, len(dc.Concepts))
	blog.Info("Building domain %s: %d concepts", dc.Domain, len(dc.Concepts))

	results, vocab := d.assembleAll(ctx, buildID, dc, effective)
	if err := ctx.Err(); err != nil {
		logging.Audit().BuildComplete(buildID, dc.Domain, 0, time.Since(start).Milliseconds(), false)
		return nil, err
	}

	var orphans []benchmark.PairDiagnostic
	if dc.Branching != nil {
		orphans, err = d.branchAll(ctx, buildID, dc, results, vocab)
		if err != nil {
			logging.Audit().BuildComplete(buildID, dc.Domain, 0, time.Since(start).Milliseconds(), false)
			return nil, err
		}
	}

	merger := &DomainMerger{Domain: dc.Domain, BuildID: buildID}
	bench, err := merger.Merge(results)
	if err != nil {
		logging.Audit().BuildComplete(buildID, dc.Domain, 0, time.Since(start).Milliseconds(), false)
		return nil, err
	}
	bench.PairDiagnostics = append(bench.PairDiagnostics, orphans...)

	logging.Audit().BuildComplete(buildID, dc.Domain, bench.Len(), time.Since(start).Milliseconds(), true)
	blog.Info("Build complete: %d records, %d skipped concepts", bench.Len(), len(bench.SkippedConcepts))
	return bench, nil
}

// assembleAll runs the per-concept pipeline for every concept in
// parallel. Results come back indexed by concept position so the merge
// order matches the config order regardless of completion order. The
// vocabulary map holds the keywords of every concept that assembled.
func (d *DomainBuilder) assembleAll(ctx context.Context, buildID string, dc *config.DomainConfig, effective map[string]config.EffectiveConceptConfig) ([]benchmark.ConceptBuildResult, map[string][]string) {
	finder := keywords.NewFinder(d.client, d.keywordComparer())
	cb := NewConceptBuilder(finder, d.client, dc.Domain, buildID, dc.MaxBenchmarkLength)

	results := make([]benchmark.ConceptBuildResult, len(dc.Concepts))
	vocab := make(map[string][]string, len(dc.Concepts))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	n := d.cfg.Build.Concurrency
	if n <= 0 {
		n = runtime.NumCPU()
	}
	eg.SetLimit(n)
	timeout := d.cfg.GetConceptTimeout()

	for i, concept := range dc.Concepts {
		eff := effective[concept]
		eg.Go(func() error {
			cctx := egCtx
			if timeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(egCtx, timeout)
				defer cancel()
			}
			result, kws := cb.Build(cctx, eff)
			mu.Lock()
			results[i] = result
			if !result.Failed() {
				vocab[concept] = kws
			}
			mu.Unlock()
			return nil
		})
	}

	// Concept failures live in their result slot. The goroutines never
	// return errors, so one bad concept cannot cancel the rest.
	_ = eg.Wait()
	return results, vocab
}

// branchAll resolves the descriptor catalog across the domain and
// generates counterfactual branches for every surviving concept.
//
// Each pair diagnostic lands on the concept its stem names. A pair
// that exhausted its embedding retries takes that concept down with
// it; a pair that could not derive a threshold is dropped alone and
// the concept's assembled prompts survive unbranched. Descriptor files
// may name stems outside the domain; those diagnostics are returned
// for the merged benchmark since no concept can carry them.
func (d *DomainBuilder) branchAll(ctx context.Context, buildID string, dc *config.DomainConfig, results []benchmark.ConceptBuildResult, vocab map[string][]string) ([]benchmark.PairDiagnostic, error) {
	specs, err := descriptor.CollectSpecs(*dc.Branching, d.cfg.Build.DescriptorDir)
	if err != nil {
		return nil, benchmark.NewConfigValidationError("collecting replacement descriptors: %v", err)
	}

	resolver := descriptor.NewResolver(d.descriptorLookup(dc.Branching), descriptor.Options{
		Timeout: d.cfg.GetEmbeddingTimeout(),
		Retries: d.cfg.Build.EmbedRetries,
	})
	catalog, diags, err := resolver.Resolve(ctx, specs, *dc.Branching, dc.Concepts, vocab)
	if err != nil {
		return nil, err
	}

	slot := make(map[string]int, len(results))
	for i, r := range results {
		slot[r.Concept] = i
	}

	var orphans []benchmark.PairDiagnostic
	for _, diag := range diags {
		i, ok := slot[diag.Stem]
		if !ok {
			orphans = append(orphans, diag)
			continue
		}
		results[i].PairDiagnostics = append(results[i].PairDiagnostics, diag)
		if diag.Err != nil && diag.Err.Kind == benchmark.KindEmbeddingService && !results[i].Failed() {
			results[i].Err = benchmark.WrapConceptError(diag.Stem, diag.Err)
			results[i].Tier = benchmark.TierFailed
			logging.Audit().ConceptFailed(buildID, diag.Stem, results[i].Err)
			logging.BuilderWarn("Concept %s failed: pair %s->%s exhausted embedding retries",
				diag.Stem, diag.Stem, diag.Branch)
		}
	}

	engine := branching.NewEngine(*dc.Branching)
	for i := range results {
		if results[i].Failed() {
			continue
		}
		branches := engine.Branch(results[i].Concept, results[i].Prompts, catalog)
		if len(branches) == 0 {
			continue
		}
		results[i].Branches = branches
		if results[i].Tier.CanTransition(benchmark.TierBranched) {
			logging.Audit().TierTransition(buildID, results[i].Concept, string(results[i].Tier), string(benchmark.TierBranched))
			results[i].Tier = benchmark.TierBranched
		}
	}
	return orphans, nil
}

// keywordComparer serves keyword expansion, which always ranks by
// cosine distance. Nil without an engine; the finder reports the gap
// per concept that needs it.
func (d *DomainBuilder) keywordComparer() *embedding.Comparer {
	if d.engine == nil {
		return nil
	}
	c, err := embedding.NewComparer(d.engine, embedding.MetricCosine)
	if err != nil {
		logging.BuilderWarn("Keyword comparer unavailable: %v", err)
		return nil
	}
	return c
}

// descriptorLookup builds the embedding lookup for descriptor
// resolution under the build request's distance metric. A nil return
// keeps resolution manual-only and derived pairs fail closed.
func (d *DomainBuilder) descriptorLookup(br *config.BranchingConfig) descriptor.Lookup {
	if d.engine == nil {
		return nil
	}
	c, err := embedding.NewComparer(d.engine, embedding.Metric(br.DescriptorDistance))
	if err != nil {
		logging.BuilderWarn("Descriptor lookup unavailable: %v", err)
		return nil
	}
	return c
}
