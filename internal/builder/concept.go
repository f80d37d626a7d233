// Package builder orchestrates benchmark builds end to end. Concepts
// run their sentence-to-prompt pipeline in parallel worker goroutines,
// the descriptor catalog is resolved once over the whole domain's
// keywords, branches are generated per surviving concept, and the
// results are merged into one domain benchmark.
//
// Failures are contained at the smallest scope that can absorb them: a
// bad descriptor pair is dropped with a diagnostic, a bad concept is
// recorded and skipped at merge, and only invalid configuration,
// cancellation, or a merge with nothing to keep fail the build itself.
package builder

import (
	"context"

	"saged/internal/assemble"
	"saged/internal/benchmark"
	"saged/internal/config"
	"saged/internal/keywords"
	"saged/internal/llm"
	"saged/internal/logging"
	"saged/internal/source"
)

// ConceptBuilder runs the per-concept pipeline: collect source
// sentences, expand keywords, assemble prompts. Branching needs the
// whole domain's keywords and happens later in the DomainBuilder.
//
// Safe for concurrent use; all fields are read-only after construction.
type ConceptBuilder struct {
	finder     *keywords.Finder
	client     llm.Client
	domain     string
	buildID    string
	maxPrompts int
}

// NewConceptBuilder wires a concept builder for one build. The client
// may be nil when no configured method consults a language model.
func NewConceptBuilder(finder *keywords.Finder, client llm.Client, domain, buildID string, maxPrompts int) *ConceptBuilder {
	return &ConceptBuilder{
		finder:     finder,
		client:     client,
		domain:     domain,
		buildID:    buildID,
		maxPrompts: maxPrompts,
	}
}

// Build runs concept through the pipeline and returns its result plus
// the keyword list its sentences answer to. The keywords feed
// descriptor resolution once every concept has assembled.
//
// Errors never escape: a failed concept comes back at the failed tier
// with its error attached, so one concept cannot sink its siblings.
// A source that yields no sentences is not a failure; the concept
// assembles to zero prompts and merges empty.
func (b *ConceptBuilder) Build(ctx context.Context, eff config.EffectiveConceptConfig) (benchmark.ConceptBuildResult, []string) {
	concept := eff.Concept
	result := benchmark.ConceptBuildResult{Concept: concept, Tier: benchmark.TierPending}

	timer := logging.StartTimer(logging.CategoryBuilder, "build concept "+concept)
	defer timer.Stop()

	provider, err := source.NewProvider(eff.Source)
	if err != nil {
		return b.fail(result, benchmark.NewSourceUnavailableError(concept, err)), nil
	}

	// First pass with the concept as the only keyword. Its sentences
	// double as the candidate vocabulary for keyword expansion.
	sentences, err := provider.Sentences(ctx, concept, []string{concept})
	if err != nil {
		return b.fail(result, sourceError(ctx, concept, err)), nil
	}
	result = b.advance(result, benchmark.TierScraped)

	kws, err := b.finder.Find(ctx, concept, b.domain, eff.Keywords, sentenceTexts(sentences))
	if err != nil {
		return b.fail(result, err), nil
	}

	// Expanded keywords widen the sentence filter, so collect again
	// whenever expansion found anything beyond the concept term.
	if len(kws) > 1 {
		sentences, err = provider.Sentences(ctx, concept, kws)
		if err != nil {
			return b.fail(result, sourceError(ctx, concept, err)), nil
		}
	}

	prompts, err := assemble.NewTransformer(eff.Prompt, b.client).Assemble(ctx, sentences, kws, b.maxPrompts)
	if err != nil {
		return b.fail(result, err), nil
	}
	result.Prompts = prompts
	result = b.advance(result, benchmark.TierAssembled)

	logging.Builder("Concept %s assembled: %d sentences -> %d prompts (%d keywords)",
		concept, len(sentences), len(prompts), len(kws))
	return result, kws
}

func (b *ConceptBuilder) advance(r benchmark.ConceptBuildResult, next benchmark.Tier) benchmark.ConceptBuildResult {
	if !r.Tier.CanTransition(next) {
		return r
	}
	logging.Audit().TierTransition(b.buildID, r.Concept, string(r.Tier), string(next))
	r.Tier = next
	return r
}

func (b *ConceptBuilder) fail(r benchmark.ConceptBuildResult, err error) benchmark.ConceptBuildResult {
	r.Err = benchmark.WrapConceptError(r.Concept, err)
	r.Tier = benchmark.TierFailed
	logging.Audit().ConceptFailed(b.buildID, r.Concept, r.Err)
	logging.BuilderWarn("Concept %s failed: %v", r.Concept, r.Err)
	return r
}

// sourceError classifies a failed sentence collection: cancellation is
// cancellation, everything else means the source is unavailable.
func sourceError(ctx context.Context, concept string, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return benchmark.NewCancelledError(concept, cerr)
	}
	return benchmark.NewSourceUnavailableError(concept, err)
}

func sentenceTexts(sentences []benchmark.SentenceRecord) []string {
	texts := make([]string, len(sentences))
	for i, s := range sentences {
		texts[i] = s.Text
	}
	return texts
}
