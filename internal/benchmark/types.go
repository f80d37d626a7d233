// Package benchmark defines the data model for bias benchmark builds.
//
// A benchmark is a table of prompts derived from source text, labeled by
// concept, and optionally expanded into counterfactual variants by
// substituting concept-defining keywords. Records flow through tiers:
// sentences are scraped, assembled into prompts, branched into
// counterfactuals, and merged into one domain benchmark.
//
// Record IDs are deterministic functions of provenance (concept, source
// tag, position) so two builds over identical inputs produce identical
// IDs. Only the build ID of the merged artifact is random.
package benchmark

import (
	"fmt"
	"time"
)

// Tier represents the furthest pipeline stage a concept's benchmark
// has successfully reached.
type Tier string

const (
	TierPending   Tier = "pending"   // No work done yet
	TierScraped   Tier = "scraped"   // Source sentences collected
	TierAssembled Tier = "assembled" // Sentences transformed into prompts
	TierBranched  Tier = "branched"  // Counterfactual variants generated
	TierMerged    Tier = "merged"    // Folded into the domain benchmark
	TierFailed    Tier = "failed"    // Terminal failure, see ConceptBuildResult.Err
)

// tierRank orders tiers by pipeline progress. Failed has no rank.
var tierRank = map[Tier]int{
	TierPending:   0,
	TierScraped:   1,
	TierAssembled: 2,
	TierBranched:  3,
	TierMerged:    4,
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	if t == TierFailed {
		return true
	}
	_, ok := tierRank[t]
	return ok
}

// Terminal reports whether no further transitions are possible.
func (t Tier) Terminal() bool {
	return t == TierMerged || t == TierFailed
}

// CanTransition reports whether the tier state machine permits moving
// from t to next. Any non-terminal tier may move to Failed. Branching
// may be skipped, so Assembled can move straight to Merged.
func (t Tier) CanTransition(next Tier) bool {
	if t.Terminal() {
		return false
	}
	if next == TierFailed {
		return true
	}
	switch t {
	case TierPending:
		return next == TierScraped
	case TierScraped:
		return next == TierAssembled
	case TierAssembled:
		return next == TierBranched || next == TierMerged
	case TierBranched:
		return next == TierMerged
	}
	return false
}

// AtLeast reports whether t has progressed at least as far as other.
// Failed is never "at least" any working tier.
func (t Tier) AtLeast(other Tier) bool {
	tr, ok1 := tierRank[t]
	or, ok2 := tierRank[other]
	return ok1 && ok2 && tr >= or
}

// Direction controls which way keyword substitution runs for a
// (stem, branch) concept pair.
type Direction string

const (
	DirectionForward  Direction = "forward"  // stem -> branch on stem prompts
	DirectionBackward Direction = "backward" // branch -> stem on branch prompts
	DirectionBoth     Direction = "both"     // forward and backward independently
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionForward || d == DirectionBackward || d == DirectionBoth
}

// Expand resolves DirectionBoth into its two concrete directions.
// Concrete directions expand to themselves.
func (d Direction) Expand() []Direction {
	if d == DirectionBoth {
		return []Direction{DirectionForward, DirectionBackward}
	}
	return []Direction{d}
}

// PromptMethod selects how sentences are transformed into prompts.
type PromptMethod string

const (
	MethodSplitSentences PromptMethod = "split_sentences" // Split at the first verb-anchored break
	MethodQuestions      PromptMethod = "questions"       // Rewrite as a keyword-preserving question
)

// Valid reports whether m is a known transformation method.
func (m PromptMethod) Valid() bool {
	return m == MethodSplitSentences || m == MethodQuestions
}

// SentenceRecord is one raw source sentence attributed to a concept.
// Position is a monotonic index within its source, used for stable ordering.
type SentenceRecord struct {
	Concept   string `json:"concept"`
	SourceTag string `json:"source_tag"`
	Text      string `json:"text"`
	Position  int    `json:"position"`
}

// ID returns the sentence's deterministic identifier.
func (s SentenceRecord) ID() string {
	return SentenceID(s.SourceTag, s.Position)
}

// PromptRecord is one benchmark prompt. Immutable once created.
// RootKeyword is the concept term detected in Text, if any.
type PromptRecord struct {
	ID               string `json:"id"`
	Concept          string `json:"concept"`
	SourceTag        string `json:"source_tag"`
	Text             string `json:"text"`
	RootKeyword      string `json:"root_keyword,omitempty"`
	OriginSentenceID string `json:"origin_sentence_id"`
}

// BranchedPromptRecord is a counterfactual variant of a PromptRecord.
// LineageID points at the prompt it was derived from. A record with
// IsBaseline true is a verbatim copy of its lineage prompt, tagged for
// paired comparison downstream.
type BranchedPromptRecord struct {
	ID          string    `json:"id"`
	Concept     string    `json:"concept"`
	SourceTag   string    `json:"source_tag"`
	Text        string    `json:"text"`
	RootKeyword string    `json:"root_keyword,omitempty"`
	LineageID   string    `json:"lineage_id"`
	Direction   Direction `json:"direction"`
	IsBaseline  bool      `json:"is_baseline"`
}

// PairDiagnostic records the outcome of resolving one stem->branch
// descriptor pair. A failed pair keeps its error here without failing
// the concepts around it.
type PairDiagnostic struct {
	Stem      string      `json:"stem"`
	Branch    string      `json:"branch"`
	Threshold float64     `json:"threshold,omitempty"`
	Derived   int         `json:"derived"`
	Err       *BuildError `json:"error,omitempty"`
}

// Failed reports whether the pair resolved with an error.
func (d PairDiagnostic) Failed() bool {
	return d.Err != nil
}

// ConceptBuildResult is the terminal value of one concept's build task.
// Err is set only when Tier is Failed. PairDiagnostics holds the
// outcomes of the descriptor pairs stemming from this concept.
type ConceptBuildResult struct {
	Concept         string                 `json:"concept"`
	Tier            Tier                   `json:"tier"`
	Prompts         []PromptRecord         `json:"prompts"`
	Branches        []BranchedPromptRecord `json:"branches"`
	Err             *BuildError            `json:"error,omitempty"`
	PairDiagnostics []PairDiagnostic       `json:"pair_diagnostics,omitempty"`
}

// Failed reports whether the concept's build ended in failure.
func (r ConceptBuildResult) Failed() bool {
	return r.Tier == TierFailed
}

// SkippedConcept records a concept excluded from the merged benchmark.
type SkippedConcept struct {
	Concept string    `json:"concept"`
	Kind    ErrorKind `json:"kind"`
	Reason  string    `json:"reason,omitempty"`
}

// DomainBenchmark is the merged artifact of one build: the ordered union
// of every non-failed concept's prompts and branches, plus the concepts
// that were skipped and why. Created once per build request, immutable
// after merge. Rebuilding produces a new instance with a new BuildID.
type DomainBenchmark struct {
	BuildID         string                 `json:"build_id"`
	Domain          string                 `json:"domain"`
	GeneratedAt     time.Time              `json:"generated_at"`
	Prompts         []PromptRecord         `json:"prompts"`
	Branches        []BranchedPromptRecord `json:"branches"`
	SkippedConcepts []SkippedConcept       `json:"skipped_concepts"`
	PairDiagnostics []PairDiagnostic       `json:"pair_diagnostics,omitempty"`
}

// Len returns the total number of records (prompts plus branches).
func (b *DomainBenchmark) Len() int {
	return len(b.Prompts) + len(b.Branches)
}

// Empty reports whether the benchmark holds no records at all.
func (b *DomainBenchmark) Empty() bool {
	return b.Len() == 0
}

// Row is the flat persisted representation of one benchmark record.
// BranchOf carries the lineage ID for branched rows and is empty for
// assembled rows.
type Row struct {
	Concept     string    `json:"concept"`
	SourceTag   string    `json:"source_tag"`
	PromptText  string    `json:"prompt_text"`
	RootKeyword string    `json:"root_keyword,omitempty"`
	BranchOf    string    `json:"branch_of,omitempty"`
	Direction   Direction `json:"direction,omitempty"`
	IsBaseline  bool      `json:"is_baseline"`
	Tier        Tier      `json:"tier"`
}

// Rows flattens the benchmark into its persisted table form:
// assembled rows first in prompt order, then branched rows.
func (b *DomainBenchmark) Rows() []Row {
	rows := make([]Row, 0, b.Len())
	for _, p := range b.Prompts {
		rows = append(rows, Row{
			Concept:     p.Concept,
			SourceTag:   p.SourceTag,
			PromptText:  p.Text,
			RootKeyword: p.RootKeyword,
			Tier:        TierAssembled,
		})
	}
	for _, br := range b.Branches {
		rows = append(rows, Row{
			Concept:     br.Concept,
			SourceTag:   br.SourceTag,
			PromptText:  br.Text,
			RootKeyword: br.RootKeyword,
			BranchOf:    br.LineageID,
			Direction:   br.Direction,
			IsBaseline:  br.IsBaseline,
			Tier:        TierBranched,
		})
	}
	return rows
}

// SentenceID builds the deterministic identifier for a source sentence.
func SentenceID(sourceTag string, position int) string {
	return fmt.Sprintf("%s:%d", sourceTag, position)
}

// PromptID builds the deterministic identifier for a prompt. Part
// distinguishes the two halves a sentence split can produce (0 for the
// setup half or an unsplit prompt, 1 for the continuation half).
func PromptID(concept, sentenceID string, part int) string {
	return fmt.Sprintf("%s/%s#%d", concept, sentenceID, part)
}

// BranchID builds the deterministic identifier for a branched prompt.
func BranchID(lineageID, branchConcept string, direction Direction) string {
	return fmt.Sprintf("%s=>%s@%s", lineageID, branchConcept, direction)
}

// BaselineID builds the deterministic identifier for a baseline copy.
// One baseline exists per lineage regardless of how many branches
// triggered it.
func BaselineID(lineageID string) string {
	return lineageID + "=>baseline"
}

// BranchedSourceTag derives the provenance tag for a branched record
// from the original tag and the stem concept the text came from.
// Baseline copies keep their original tag.
func BranchedSourceTag(original, stemConcept string) string {
	return fmt.Sprintf("br_%s_cat_%s", original, stemConcept)
}
