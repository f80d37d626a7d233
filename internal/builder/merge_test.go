package builder

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"saged/internal/benchmark"
)

func assembledResult(concept string, texts ...string) benchmark.ConceptBuildResult {
	r := benchmark.ConceptBuildResult{Concept: concept, Tier: benchmark.TierAssembled}
	for i, text := range texts {
		r.Prompts = append(r.Prompts, benchmark.PromptRecord{
			ID:               fmt.Sprintf("%s/static:%d#0", concept, i),
			Concept:          concept,
			SourceTag:        "static",
			Text:             text,
			RootKeyword:      concept,
			OriginSentenceID: fmt.Sprintf("static:%d", i),
		})
	}
	return r
}

func failedResult(concept string, err *benchmark.BuildError) benchmark.ConceptBuildResult {
	return benchmark.ConceptBuildResult{Concept: concept, Tier: benchmark.TierFailed, Err: err}
}

func TestMergeUnionsInResultOrder(t *testing.T) {
	solar := assembledResult("solar", "Solar farms are spreading.", "Solar output doubled.")
	wind := assembledResult("wind", "Wind turbines line the ridge.")
	wind.Branches = []benchmark.BranchedPromptRecord{{
		ID:        "wind/static:0#0|br:solar:forward",
		Concept:   "solar",
		Text:      "Solar turbines line the ridge.",
		LineageID: "wind/static:0#0",
		Direction: benchmark.DirectionForward,
	}}
	results := []benchmark.ConceptBuildResult{solar, wind}

	m := &DomainMerger{Domain: "energy", BuildID: "b-1"}
	bench, err := m.Merge(results)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if bench.BuildID != "b-1" || bench.Domain != "energy" {
		t.Errorf("identity = %s/%s, want b-1/energy", bench.BuildID, bench.Domain)
	}
	if bench.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not stamped")
	}

	var ids []string
	for _, p := range bench.Prompts {
		ids = append(ids, p.ID)
	}
	want := []string{"solar/static:0#0", "solar/static:1#0", "wind/static:0#0"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("prompt order mismatch (-want +got):\n%s", diff)
	}
	if len(bench.Branches) != 1 {
		t.Errorf("got %d branches, want 1", len(bench.Branches))
	}

	for _, r := range results {
		if r.Tier != benchmark.TierMerged {
			t.Errorf("concept %s left at tier %s", r.Concept, r.Tier)
		}
	}
}

func TestMergeReportsFailedConceptsAsSkipped(t *testing.T) {
	broken := failedResult("broken", benchmark.NewSourceUnavailableError("broken", errors.New("no such file")))
	// A concept can fail after assembling, so its records must not
	// leak into the union.
	broken.Prompts = []benchmark.PromptRecord{{ID: "broken/static:0#0", Concept: "broken"}}

	results := []benchmark.ConceptBuildResult{
		assembledResult("solar", "Solar farms are spreading."),
		broken,
	}

	m := &DomainMerger{Domain: "energy", BuildID: "b-2"}
	bench, err := m.Merge(results)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	for _, p := range bench.Prompts {
		if p.Concept == "broken" {
			t.Errorf("failed concept's prompt leaked: %s", p.ID)
		}
	}
	if len(bench.SkippedConcepts) != 1 {
		t.Fatalf("got %d skipped concepts, want 1", len(bench.SkippedConcepts))
	}
	sc := bench.SkippedConcepts[0]
	if sc.Concept != "broken" || sc.Kind != benchmark.KindSourceUnavailable {
		t.Errorf("skipped = %+v", sc)
	}
	if sc.Reason == "" {
		t.Error("skipped concept has no reason")
	}
	if results[1].Tier != benchmark.TierFailed {
		t.Errorf("failed concept's tier changed to %s", results[1].Tier)
	}
}

func TestMergeAllFailedIsConflict(t *testing.T) {
	results := []benchmark.ConceptBuildResult{
		failedResult("solar", benchmark.NewSourceUnavailableError("solar", errors.New("gone"))),
		failedResult("wind", benchmark.NewSourceUnavailableError("wind", errors.New("gone"))),
	}

	m := &DomainMerger{Domain: "energy"}
	bench, err := m.Merge(results)
	if err == nil {
		t.Fatal("expected a conflict when every concept failed")
	}
	if bench != nil {
		t.Errorf("got a benchmark alongside the error: %+v", bench)
	}
	if kind := benchmark.KindOf(err); kind != benchmark.KindMergeConflict {
		t.Errorf("error kind = %s, want %s", kind, benchmark.KindMergeConflict)
	}
}

func TestMergeNoResultsIsConflict(t *testing.T) {
	m := &DomainMerger{Domain: "energy"}
	if _, err := m.Merge(nil); benchmark.KindOf(err) != benchmark.KindMergeConflict {
		t.Errorf("Merge(nil) error = %v, want a merge conflict", err)
	}
}

func TestMergeEmptySurvivorsIsConflict(t *testing.T) {
	// Assembled but with zero prompts: the concept survived, yet there
	// is nothing to put in the benchmark.
	results := []benchmark.ConceptBuildResult{assembledResult("solar")}

	m := &DomainMerger{Domain: "energy"}
	_, err := m.Merge(results)
	if benchmark.KindOf(err) != benchmark.KindMergeConflict {
		t.Errorf("error = %v, want a merge conflict", err)
	}
}

func TestMergeGeneratesBuildIDWhenUnset(t *testing.T) {
	m := &DomainMerger{Domain: "energy"}

	first, err := m.Merge([]benchmark.ConceptBuildResult{assembledResult("solar", "Solar farms are spreading.")})
	if err != nil {
		t.Fatalf("first Merge failed: %v", err)
	}
	second, err := m.Merge([]benchmark.ConceptBuildResult{assembledResult("solar", "Solar farms are spreading.")})
	if err != nil {
		t.Fatalf("second Merge failed: %v", err)
	}

	if first.BuildID == "" || second.BuildID == "" {
		t.Fatal("merge left the build ID empty")
	}
	if first.BuildID == second.BuildID {
		t.Error("independent merges shared a build ID")
	}
}

func TestMergeTwiceIsStable(t *testing.T) {
	results := []benchmark.ConceptBuildResult{
		assembledResult("solar", "Solar farms are spreading."),
		failedResult("broken", benchmark.NewSourceUnavailableError("broken", errors.New("gone"))),
	}

	m := &DomainMerger{Domain: "energy", BuildID: "b-7"}
	first, err := m.Merge(results)
	if err != nil {
		t.Fatalf("first Merge failed: %v", err)
	}
	second, err := m.Merge(results)
	if err != nil {
		t.Fatalf("second Merge failed: %v", err)
	}

	if diff := cmp.Diff(first.Prompts, second.Prompts); diff != "" {
		t.Errorf("prompts changed on remerge (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.SkippedConcepts, second.SkippedConcepts); diff != "" {
		t.Errorf("skipped concepts changed on remerge (-first +second):\n%s", diff)
	}
	if first.BuildID != second.BuildID {
		t.Errorf("build ID changed on remerge: %s then %s", first.BuildID, second.BuildID)
	}
}

func TestMergeRoundTripPreservesRecords(t *testing.T) {
	solar := assembledResult("solar", "Solar farms are spreading.", "Solar output doubled.")
	solar.Branches = []benchmark.BranchedPromptRecord{{
		ID:        "solar/static:0#0|br:wind:forward",
		Concept:   "wind",
		Text:      "Wind farms are spreading.",
		LineageID: "solar/static:0#0",
		Direction: benchmark.DirectionForward,
	}}
	wind := assembledResult("wind", "Wind turbines line the ridge.")
	results := []benchmark.ConceptBuildResult{solar, wind}

	var wantPrompts []benchmark.PromptRecord
	var wantBranches []benchmark.BranchedPromptRecord
	for _, r := range results {
		wantPrompts = append(wantPrompts, r.Prompts...)
		wantBranches = append(wantBranches, r.Branches...)
	}

	m := &DomainMerger{Domain: "energy", BuildID: "b-3"}
	bench, err := m.Merge(results)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if diff := cmp.Diff(wantPrompts, bench.Prompts); diff != "" {
		t.Errorf("merged prompts differ from the input union (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantBranches, bench.Branches); diff != "" {
		t.Errorf("merged branches differ from the input union (-want +got):\n%s", diff)
	}
}

func TestMergeSkipReasonFallsBackToWrappedError(t *testing.T) {
	results := []benchmark.ConceptBuildResult{
		assembledResult("solar", "Solar farms are spreading."),
		failedResult("broken", &benchmark.BuildError{
			Kind:    benchmark.KindUnknown,
			Concept: "broken",
			Wrapped: errors.New("boom"),
		}),
	}

	m := &DomainMerger{Domain: "energy"}
	bench, err := m.Merge(results)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(bench.SkippedConcepts) != 1 {
		t.Fatalf("got %d skipped concepts, want 1", len(bench.SkippedConcepts))
	}
	if reason := bench.SkippedConcepts[0].Reason; reason != "boom" {
		t.Errorf("reason = %q, want the wrapped error text", reason)
	}
}

func TestMergeCarriesPairDiagnosticsFromAllResults(t *testing.T) {
	solar := failedResult("solar", benchmark.NewEmbeddingServiceError("solar", "wind", errors.New("offline")))
	solar.PairDiagnostics = []benchmark.PairDiagnostic{{
		Stem: "solar", Branch: "wind",
		Err: benchmark.NewEmbeddingServiceError("solar", "wind", errors.New("offline")),
	}}
	wind := assembledResult("wind", "Wind turbines line the ridge.")
	wind.PairDiagnostics = []benchmark.PairDiagnostic{{Stem: "wind", Branch: "solar", Threshold: 0.3, Derived: 2}}

	m := &DomainMerger{Domain: "energy"}
	bench, err := m.Merge([]benchmark.ConceptBuildResult{solar, wind})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if len(bench.PairDiagnostics) != 2 {
		t.Fatalf("got %d pair diagnostics, want both results' entries", len(bench.PairDiagnostics))
	}
	if bench.PairDiagnostics[0].Stem != "solar" || bench.PairDiagnostics[1].Stem != "wind" {
		t.Errorf("diagnostics out of order: %+v", bench.PairDiagnostics)
	}
}
