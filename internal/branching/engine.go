// Package branching turns assembled prompts into counterfactual
// variants by substituting concept keywords under resolved descriptor
// rules. Forward branching rewrites a stem concept's prompts toward a
// branch concept; backward branching runs the rules in reverse over the
// branch concept's prompts.
package branching

import (
	"saged/internal/benchmark"
	"saged/internal/config"
	"saged/internal/descriptor"
	"saged/internal/logging"
)

// Engine applies descriptor substitution to one concept's prompts at a
// time. It is stateless across calls and safe to share.
type Engine struct {
	direction    benchmark.Direction
	keepBaseline bool
}

// NewEngine builds an engine from the branching config. An invalid or
// empty direction falls back to forward.
func NewEngine(cfg config.BranchingConfig) *Engine {
	direction := benchmark.Direction(cfg.Direction)
	if !direction.Valid() {
		direction = benchmark.DirectionForward
	}
	return &Engine{direction: direction, keepBaseline: cfg.KeepBaseline}
}

// Branch produces the branched records for one concept's prompts.
//
// For each configured direction, the catalog supplies the pairs the
// concept participates in: forward takes the sets whose stem is the
// concept, backward takes the sets whose branch is the concept with
// their rules reversed. A prompt that matches no rule of a pair yields
// no record for that pair. With baselines enabled, the first branch a
// prompt produces also emits one verbatim copy sharing its lineage;
// later branches of the same prompt never add another.
func (e *Engine) Branch(concept string, prompts []benchmark.PromptRecord, catalog *descriptor.Catalog) []benchmark.BranchedPromptRecord {
	if catalog == nil || catalog.Len() == 0 || len(prompts) == 0 {
		return nil
	}
	timer := logging.StartTimer(logging.CategoryBranching, "Engine.Branch")
	defer timer.Stop()

	var out []benchmark.BranchedPromptRecord
	baselined := make(map[string]bool)

	for _, direction := range e.direction.Expand() {
		for _, set := range e.setsFor(direction, concept, catalog) {
			rules := compileRules(set.Entries)
			for _, prompt := range prompts {
				text, hits := applyRules(prompt.Text, rules)
				if hits == 0 {
					continue
				}

				if e.keepBaseline && !baselined[prompt.ID] {
					baselined[prompt.ID] = true
					out = append(out, benchmark.BranchedPromptRecord{
						ID:          benchmark.BaselineID(prompt.ID),
						Concept:     prompt.Concept,
						SourceTag:   prompt.SourceTag,
						Text:        prompt.Text,
						RootKeyword: prompt.RootKeyword,
						LineageID:   prompt.ID,
						Direction:   direction,
						IsBaseline:  true,
					})
				}

				root, _ := applyRules(prompt.RootKeyword, rules)
				out = append(out, benchmark.BranchedPromptRecord{
					ID:          benchmark.BranchID(prompt.ID, set.Branch, direction),
					Concept:     set.Branch,
					SourceTag:   benchmark.BranchedSourceTag(prompt.SourceTag, prompt.Concept),
					Text:        text,
					RootKeyword: root,
					LineageID:   prompt.ID,
					Direction:   direction,
					IsBaseline:  false,
				})
			}
		}
	}

	logging.Branching("Concept %s: %d branched records from %d prompts", concept, len(out), len(prompts))
	return out
}

// setsFor returns the descriptor sets that apply to the concept in the
// given direction, already oriented for substitution.
func (e *Engine) setsFor(direction benchmark.Direction, concept string, catalog *descriptor.Catalog) []*descriptor.Set {
	if direction == benchmark.DirectionBackward {
		var reversed []*descriptor.Set
		for _, set := range catalog.ForBranch(concept) {
			reversed = append(reversed, set.Reversed())
		}
		return reversed
	}
	return catalog.ForStem(concept)
}
