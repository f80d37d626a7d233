package builder

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"saged/internal/benchmark"
	"saged/internal/logging"
)

// DomainMerger folds per-concept build results into one domain
// benchmark. A zero BuildID merges under a fresh random one.
type DomainMerger struct {
	Domain  string
	BuildID string
}

// Merge unions every non-failed concept's records in result order and
// reports the failed ones as skipped, each with its error kind and
// reason. Pair diagnostics are carried over from all results, failed
// concepts included. Surviving results advance to the merged tier in
// place; merging the same results again yields the same records.
//
// Merging fails only when no concept produced a single usable record.
func (m *DomainMerger) Merge(results []benchmark.ConceptBuildResult) (*benchmark.DomainBenchmark, error) {
	if len(results) == 0 {
		return nil, benchmark.NewMergeConflictError("no concept results to merge")
	}

	buildID := m.BuildID
	if buildID == "" {
		buildID = uuid.NewString()
	}

	bench := &benchmark.DomainBenchmark{
		BuildID:     buildID,
		Domain:      m.Domain,
		GeneratedAt: time.Now().UTC(),
	}

	merged := 0
	for i := range results {
		r := &results[i]
		bench.PairDiagnostics = append(bench.PairDiagnostics, r.PairDiagnostics...)
		if r.Failed() {
			sc := skipRecord(r)
			bench.SkippedConcepts = append(bench.SkippedConcepts, sc)
			logging.Merge("Skipping concept %s: %s (%s)", sc.Concept, sc.Reason, sc.Kind)
			continue
		}
		bench.Prompts = append(bench.Prompts, r.Prompts...)
		bench.Branches = append(bench.Branches, r.Branches...)
		if r.Tier.CanTransition(benchmark.TierMerged) {
			logging.Audit().TierTransition(buildID, r.Concept, string(r.Tier), string(benchmark.TierMerged))
			r.Tier = benchmark.TierMerged
		}
		merged++
	}

	if merged == 0 {
		return nil, benchmark.NewMergeConflictError(fmt.Sprintf("all %d concepts failed", len(results)))
	}
	if bench.Empty() {
		return nil, benchmark.NewMergeConflictError("no concept produced any records")
	}

	logging.Merge("Merged %d/%d concepts for %s: %d prompts, %d branches, %d skipped",
		merged, len(results), m.Domain, len(bench.Prompts), len(bench.Branches), len(bench.SkippedConcepts))
	return bench, nil
}

// skipRecord condenses a failed result into its skipped-concept entry.
func skipRecord(r *benchmark.ConceptBuildResult) benchmark.SkippedConcept {
	sc := benchmark.SkippedConcept{Concept: r.Concept, Kind: benchmark.KindUnknown}
	if r.Err != nil {
		sc.Kind = r.Err.Kind
		sc.Reason = r.Err.Reason
		if sc.Reason == "" && r.Err.Wrapped != nil {
			sc.Reason = r.Err.Wrapped.Error()
		}
	}
	return sc
}
